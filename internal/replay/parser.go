package replay

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// tcpreplay final summary, e.g.
// "Actual: 2809 packets (1588752 bytes) sent in 20.47 seconds"
var actualRe = regexp.MustCompile(`Actual:\s+(\d+)\s+packets\s+\((\d+)\s+bytes\)\s+sent\s+in\s+([\d.]+)\s+seconds`)

// "Rated: 77648.8 Bps, 0.62 Mbps, 137.25 pps"
var ratedRe = regexp.MustCompile(`([\d.]+)\s+pps`)

type summaryStats struct {
	Packets  int64
	Bytes    int64
	Duration float64
}

func parseSummaryLine(line string) (summaryStats, bool) {
	m := actualRe.FindStringSubmatch(line)
	if m == nil {
		return summaryStats{}, false
	}
	packets, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return summaryStats{}, false
	}
	bytes, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return summaryStats{}, false
	}
	duration, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return summaryStats{}, false
	}
	return summaryStats{Packets: packets, Bytes: bytes, Duration: duration}, true
}

func parseRatedLine(line string) (float64, bool) {
	if !strings.Contains(line, "Rated:") {
		return 0, false
	}
	m := ratedRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pps, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pps, true
}

// heuristicProgress estimates completion from wall clock against an assumed
// replay duration. It is a UI hint only and never reports done on its own.
func heuristicProgress(elapsed, assumed time.Duration) int {
	if assumed <= 0 {
		return 0
	}
	pct := int(elapsed * 100 / assumed)
	if pct > 90 {
		pct = 90
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
