package replay

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// UtilityInfo describes the resolved tcpreplay binary.
type UtilityInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// buildArgs assembles the tcpreplay argument vector for a request. Speed is
// rendered as an integer for pps and with two decimals for the multiplier.
func buildArgs(req Request) []string {
	args := []string{"-i", req.Interface}
	if req.SpeedUnit == SpeedUnitPPS {
		args = append(args, "--pps", strconv.Itoa(int(req.Speed)))
	} else {
		args = append(args, "--multiplier", fmt.Sprintf("%.2f", req.Speed))
	}
	args = append(args, "--timer", "select", "--quiet", req.File)
	return args
}

// CheckUtility resolves the replay binary and asks it for its version.
// A missing or broken binary is reported, not returned as an error.
func CheckUtility(path string) UtilityInfo {
	if path == "" {
		path = "tcpreplay"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return UtilityInfo{Error: fmt.Sprintf("tcpreplay not found: %v", err)}
	}

	info := UtilityInfo{Available: true, Path: resolved}
	out, err := exec.Command(resolved, "--version").CombinedOutput()
	if err != nil && len(out) == 0 {
		info.Error = fmt.Sprintf("version probe failed: %v", err)
		return info
	}
	if lines := strings.SplitN(strings.TrimSpace(string(out)), "\n", 2); len(lines) > 0 {
		info.Version = strings.TrimSpace(lines[0])
	}
	return info
}
