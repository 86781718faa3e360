package sysinfo

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"Replaya/internal/replay"
)

var startTime = time.Now()

// Interface is one replay-capable NIC.
type Interface struct {
	Name      string   `json:"name"`
	Addresses []string `json:"addresses"`
	MAC       string   `json:"mac,omitempty"`
	Up        bool     `json:"up"`
	MTU       int      `json:"mtu"`
	SpeedMbps int      `json:"speed_mbps,omitempty"`
}

// HostStatus is a point-in-time view of the host and the replay utility.
type HostStatus struct {
	Status        string             `json:"status"`
	Uptime        string             `json:"uptime"`
	CPUPercent    float64            `json:"cpu_usage_percent"`
	MemoryPercent float64            `json:"memory_usage_percent"`
	MemoryTotal   uint64             `json:"memory_total_bytes"`
	DiskPercent   float64            `json:"disk_usage_percent"`
	Tcpreplay     replay.UtilityInfo `json:"tcpreplay"`
}

// Interfaces lists non-loopback NICs, sorted by name.
func Interfaces() ([]Interface, error) {
	stats, err := gnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}

	out := make([]Interface, 0, len(stats))
	for _, st := range stats {
		if hasFlag(st.Flags, "loopback") {
			continue
		}
		iface := Interface{
			Name: st.Name,
			MAC:  st.HardwareAddr,
			Up:   hasFlag(st.Flags, "up"),
			MTU:  st.MTU,
		}
		for _, addr := range st.Addrs {
			iface.Addresses = append(iface.Addresses, addr.Addr)
		}
		iface.SpeedMbps = linkSpeed(st.Name)
		out = append(out, iface)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Status gathers host utilization plus the tcpreplay probe.
func Status(tcpreplayPath string) (*HostStatus, error) {
	status := &HostStatus{
		Status:    "running",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Tcpreplay: replay.CheckUtility(tcpreplayPath),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		status.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemoryPercent = vm.UsedPercent
		status.MemoryTotal = vm.Total
	}
	if du, err := disk.Usage("/"); err == nil {
		status.DiskPercent = du.UsedPercent
	}
	return status, nil
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

// linkSpeed reads the NIC speed from sysfs. Zero means unknown.
func linkSpeed(name string) int {
	data, err := os.ReadFile("/sys/class/net/" + name + "/speed")
	if err != nil {
		return 0
	}
	speed, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || speed < 0 {
		return 0
	}
	return speed
}
