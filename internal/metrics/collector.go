package metrics

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Collector struct {
	procRoot       string
	hostname       func() (string, error)
	now            func() time.Time
	prevCPUStats   []cpuStats
	prevNetStats   map[string]netStats
	prevSampleTime time.Time
	initialized    bool
}

type cpuStats struct {
	user    uint64
	nice    uint64
	system  uint64
	idle    uint64
	iowait  uint64
	irq     uint64
	softirq uint64
	steal   uint64
}

func (s cpuStats) total() uint64 {
	return s.user + s.nice + s.system + s.idle + s.iowait + s.irq + s.softirq + s.steal
}

func (s cpuStats) idleTotal() uint64 {
	return s.idle + s.iowait
}

type netStats struct {
	rxBytes uint64
	txBytes uint64
}

type CollectorOption func(*Collector)

// WithProcRoot points the collector at an alternate procfs mount.
func WithProcRoot(root string) CollectorOption {
	return func(c *Collector) {
		c.procRoot = root
	}
}

func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		c.now = now
	}
}

func WithHostname(hostname func() (string, error)) CollectorOption {
	return func(c *Collector) {
		c.hostname = hostname
	}
}

func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		procRoot:     "/proc",
		hostname:     os.Hostname,
		now:          time.Now,
		prevNetStats: make(map[string]netStats),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Primed reports whether a previous sample exists to compute deltas against.
func (c *Collector) Primed() bool {
	return c.initialized
}

// Collect takes one sample. CPU usage and network rates are deltas against
// the previous call, so the first sample reports zero for both.
func (c *Collector) Collect() (Snapshot, error) {
	now := c.now()
	snap := Snapshot{Timestamp: UnixMilli(now.UnixMilli())}

	if name, err := c.hostname(); err == nil && name != "" {
		snap.Hostname = &name
	}

	total, perCore, err := c.collectCPU()
	if err != nil {
		return snap, fmt.Errorf("cpu: %w", err)
	}
	snap = snap.WithCPUUsage(total)
	snap.CPUPerCoreUsagePct = perCore
	snap.CPULogicalCores = len(perCore)

	memInfo, err := c.collectMemory()
	if err != nil {
		return snap, fmt.Errorf("memory: %w", err)
	}
	snap.MemTotalMB = kibToMB(memInfo.total)
	snap.MemAvailableMB = kibToMB(memInfo.available)
	snap.MemUsedMB = kibToMB(memInfo.total - memInfo.available)
	snap.SwapTotalMB = kibToMB(memInfo.swapTotal)
	snap.SwapUsedMB = kibToMB(memInfo.swapTotal - memInfo.swapFree)
	snap.SwapFreeMB = snap.SwapTotalMB - snap.SwapUsedMB

	if load, err := c.collectLoad(); err == nil {
		snap.LoadAvgOne = &load[0]
		snap.LoadAvgFive = &load[1]
		snap.LoadAvgFifteen = &load[2]
	}

	if uptime, err := c.collectUptime(); err == nil {
		snap.UptimeSeconds = uptime
	}

	network, err := c.collectNetwork(now)
	if err != nil {
		return snap, fmt.Errorf("network: %w", err)
	}
	snap.Network = network

	c.prevSampleTime = now
	c.initialized = true

	return snap, nil
}

func (c *Collector) path(name string) string {
	return filepath.Join(c.procRoot, name)
}

func (c *Collector) collectCPU() (float64, []float64, error) {
	file, err := os.Open(c.path("stat"))
	if err != nil {
		return 0, nil, err
	}
	defer file.Close()

	var stats []cpuStats
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		if len(fields) < 8 {
			return 0, nil, fmt.Errorf("invalid %s line", fields[0])
		}
		stats = append(stats, parseCPUFields(fields))
	}
	if err := scanner.Err(); err != nil {
		return 0, nil, err
	}
	if len(stats) == 0 {
		return 0, nil, fmt.Errorf("no cpu lines in stat")
	}

	usages := make([]float64, len(stats))
	if c.initialized && len(c.prevCPUStats) == len(stats) {
		for i := range stats {
			usages[i] = cpuUsage(c.prevCPUStats[i], stats[i])
		}
	}
	c.prevCPUStats = stats

	return usages[0], usages[1:], nil
}

func parseCPUFields(fields []string) cpuStats {
	var stats cpuStats
	stats.user, _ = strconv.ParseUint(fields[1], 10, 64)
	stats.nice, _ = strconv.ParseUint(fields[2], 10, 64)
	stats.system, _ = strconv.ParseUint(fields[3], 10, 64)
	stats.idle, _ = strconv.ParseUint(fields[4], 10, 64)
	stats.iowait, _ = strconv.ParseUint(fields[5], 10, 64)
	stats.irq, _ = strconv.ParseUint(fields[6], 10, 64)
	stats.softirq, _ = strconv.ParseUint(fields[7], 10, 64)
	if len(fields) > 8 {
		stats.steal, _ = strconv.ParseUint(fields[8], 10, 64)
	}
	return stats
}

func cpuUsage(prev, curr cpuStats) float64 {
	totalDelta := curr.total() - prev.total()
	idleDelta := curr.idleTotal() - prev.idleTotal()

	if curr.total() <= prev.total() || idleDelta > totalDelta {
		return 0.0
	}

	return (1.0 - float64(idleDelta)/float64(totalDelta)) * 100.0
}

type memoryInfo struct {
	total     uint64
	available uint64
	swapTotal uint64
	swapFree  uint64
}

func (c *Collector) collectMemory() (memoryInfo, error) {
	file, err := os.Open(c.path("meminfo"))
	if err != nil {
		return memoryInfo{}, err
	}
	defer file.Close()

	fieldsByKey := map[string]*uint64{}
	var info memoryInfo
	fieldsByKey["MemTotal:"] = &info.total
	fieldsByKey["MemAvailable:"] = &info.available
	fieldsByKey["SwapTotal:"] = &info.swapTotal
	fieldsByKey["SwapFree:"] = &info.swapFree

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if dst, ok := fieldsByKey[fields[0]]; ok {
			*dst, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	if err := scanner.Err(); err != nil {
		return memoryInfo{}, err
	}

	if info.total == 0 {
		return memoryInfo{}, fmt.Errorf("could not read MemTotal")
	}
	if info.available == 0 || info.available > info.total {
		info.available = info.total
	}
	if info.swapFree > info.swapTotal {
		info.swapFree = info.swapTotal
	}

	return info, nil
}

func (c *Collector) collectLoad() ([3]float64, error) {
	var load [3]float64

	data, err := os.ReadFile(c.path("loadavg"))
	if err != nil {
		return load, err
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return load, fmt.Errorf("invalid loadavg")
	}
	for i := range load {
		if load[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return load, fmt.Errorf("invalid loadavg: %w", err)
		}
	}
	return load, nil
}

func (c *Collector) collectUptime() (uint64, error) {
	data, err := os.ReadFile(c.path("uptime"))
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty uptime")
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid uptime: %w", err)
	}
	return uint64(seconds), nil
}

func (c *Collector) collectNetwork(now time.Time) ([]NetworkInterfaceUsage, error) {
	file, err := os.Open(c.path("net/dev"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	deltaTime := 0.0
	if c.initialized && !c.prevSampleTime.IsZero() {
		deltaTime = now.Sub(c.prevSampleTime).Seconds()
		if deltaTime <= 0 {
			deltaTime = 1.0
		}
	}

	var usage []NetworkInterfaceUsage
	current := make(map[string]netStats)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) < 9 {
			continue
		}

		name = strings.TrimSpace(name)
		rxBytes, _ := strconv.ParseUint(fields[0], 10, 64)
		txBytes, _ := strconv.ParseUint(fields[8], 10, 64)
		current[name] = netStats{rxBytes: rxBytes, txBytes: txBytes}

		iface := NetworkInterfaceUsage{
			Name:                  name,
			ReceivedTotalBytes:    rxBytes,
			TransmittedTotalBytes: txBytes,
		}

		if prev, seen := c.prevNetStats[name]; seen && deltaTime > 0 {
			if rxBytes >= prev.rxBytes {
				iface.ReceivedKbps = bytesToKbps(rxBytes-prev.rxBytes, deltaTime)
			}
			if txBytes >= prev.txBytes {
				iface.TransmittedKbps = bytesToKbps(txBytes-prev.txBytes, deltaTime)
			}
		}

		usage = append(usage, iface)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	c.prevNetStats = current
	return usage, nil
}

func kibToMB(kib uint64) uint64 {
	return uint64(math.Round(float64(kib) / 1024.0))
}

// bytesToKbps converts a byte delta over seconds into kilobits per second.
func bytesToKbps(bytes uint64, seconds float64) float64 {
	return float64(bytes) * 8.0 / (seconds * 1024.0)
}
