package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"Replaya/internal/capture"
	"Replaya/internal/config"
	"Replaya/internal/logging"
	"Replaya/internal/rewrite"
	"Replaya/internal/rules"
)

func main() {
	input := flag.String("in", "", "input capture file (pcap or pcapng)")
	output := flag.String("out", "", "output pcap file")
	rulesPath := flag.String("rules", "", "YAML rule file")
	analyze := flag.Bool("analyze", false, "analyze the input instead of rewriting")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logging.Init(config.LogConfig{Level: *logLevel}); err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	if *analyze {
		runAnalyze(*input)
		return
	}

	if *output == "" || *rulesPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	rs, err := rules.ParseFile(*rulesPath)
	if err != nil {
		logrus.Fatalf("Failed to parse rules: %v", err)
	}

	processor := capture.NewProcessor(rewrite.NewEngine())
	result, err := processor.RewriteFile(*input, *output, rs)
	if err != nil {
		logrus.Fatalf("Rewrite failed: %v", err)
	}

	fmt.Printf("Processed %d packets (%d modified) from %s to %s\n",
		result.PacketsProcessed, result.PacketsModified, *input, *output)
	for _, e := range result.Errors {
		fmt.Printf("  warning: %s\n", e)
	}
}

func runAnalyze(input string) {
	cfg := config.Default()
	analyzer := capture.NewAnalyzer(cfg.Analysis.MaxPackets, cfg.Analysis.PerformanceLimit)
	analysis, err := analyzer.Analyze(input)
	if err != nil {
		logrus.Fatalf("Analysis failed: %v", err)
	}

	fmt.Printf("File:      %s (%d bytes, %s)\n", analysis.FilePath, analysis.FileSize, analysis.Format)
	fmt.Printf("Packets:   %d\n", analysis.PacketCount)
	fmt.Printf("Duration:  %.3fs\n", analysis.Duration)
	fmt.Printf("Protocols: %v\n", analysis.Protocols)
	fmt.Printf("IPs:       %v\n", analysis.UniqueIPs)
	fmt.Printf("MACs:      %v\n", analysis.UniqueMACs)
	fmt.Printf("Ports:     %v\n", analysis.UniquePorts)
	if len(analysis.VLANTags) > 0 {
		fmt.Printf("VLANs:     %v\n", analysis.VLANTags)
	}
	if analysis.Limited {
		fmt.Printf("Note:      %s\n", analysis.LimitReason)
	}
}
