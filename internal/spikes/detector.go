package spikes

import (
	"sync"
	"time"

	"system-snapshot/internal/config"
	"system-snapshot/internal/metrics"
)

const (
	MetricCPU     = "cpu"
	MetricMemory  = "memory"
	MetricNetwork = "network"
)

type Detector struct {
	cfg       config.Spikes
	window    time.Duration
	now       func() time.Time
	lastFired map[string]time.Time
	mu        sync.Mutex
}

func NewDetector(cfg *config.Config) *Detector {
	return &Detector{
		cfg:       cfg.Spikes,
		window:    cfg.DebounceWindow(),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
}

// Detect returns the metrics that spiked between previous and current. A zero
// previous snapshot only allows absolute thresholds to fire.
func (d *Detector) Detect(current, previous metrics.Snapshot) []string {
	var spikes []string

	if d.cfg.CPU.Enabled && exceeds(d.cfg.CPU, current.CPUUsagePct, previous.CPUUsagePct) {
		spikes = append(spikes, MetricCPU)
	}

	if d.cfg.Memory.Enabled && exceeds(d.cfg.Memory, current.MemUsedPercent(), previous.MemUsedPercent()) {
		spikes = append(spikes, MetricMemory)
	}

	if d.cfg.Network.Enabled && d.networkSpike(current, previous) {
		spikes = append(spikes, MetricNetwork)
	}

	return spikes
}

// Debounce filters spikeTypes down to those not reported within the window
// and marks them as reported.
func (d *Detector) Debounce(spikeTypes []string) []string {
	if len(spikeTypes) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var fresh []string
	for _, spikeType := range spikeTypes {
		lastTime, exists := d.lastFired[spikeType]
		if !exists || now.Sub(lastTime) >= d.window {
			d.lastFired[spikeType] = now
			fresh = append(fresh, spikeType)
		}
	}

	return fresh
}

// networkSpike compares the non-loopback interface totals in kbps.
func (d *Detector) networkSpike(current, previous metrics.Snapshot) bool {
	cfg := d.cfg.Network
	rx, tx := current.NetworkKbps()
	prevRx, prevTx := previous.NetworkKbps()

	if cfg.RxKbpsThreshold > 0 && rx >= cfg.RxKbpsThreshold {
		return true
	}

	if cfg.TxKbpsThreshold > 0 && tx >= cfg.TxKbpsThreshold {
		return true
	}

	if cfg.RelativeThreshold > 0 {
		if relativeChange(rx, prevRx) >= cfg.RelativeThreshold {
			return true
		}
		if relativeChange(tx, prevTx) >= cfg.RelativeThreshold {
			return true
		}
	}

	return false
}

// relativeChange is the percent increase over previous, or 0 when previous
// is not positive.
func relativeChange(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return ((current - previous) / previous) * 100.0
}

func exceeds(t config.Threshold, current, previous float64) bool {
	if t.AbsoluteThreshold > 0 && current >= t.AbsoluteThreshold {
		return true
	}

	if previous > 0 && t.RelativeThreshold > 0 {
		if relativeChange(current, previous) >= t.RelativeThreshold {
			return true
		}
	}

	return false
}
