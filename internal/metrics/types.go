package metrics

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// History is the on-disk snapshot document. Snapshots is nil when the key is
// absent or null, and empty when the list is.
type History struct {
	Snapshots []Snapshot `json:"snapshots"`
}

type Snapshot struct {
	Timestamp          Timestamp               `json:"timestamp"`
	Hostname           *string                 `json:"hostname,omitempty"`
	UptimeSeconds      uint64                  `json:"uptime_seconds"`
	CPUUsagePct        float64                 `json:"cpu_usage_pct"`
	LoadAvgOne         *float64                `json:"load_avg_one,omitempty"`
	LoadAvgFive        *float64                `json:"load_avg_five,omitempty"`
	LoadAvgFifteen     *float64                `json:"load_avg_fifteen,omitempty"`
	MemUsedMB          uint64                  `json:"mem_used_mb"`
	MemTotalMB         uint64                  `json:"mem_total_mb"`
	MemAvailableMB     uint64                  `json:"mem_available_mb"`
	Network            []NetworkInterfaceUsage `json:"network"`
	CPUPerCoreUsagePct []float64               `json:"cpu_per_core_usage_pct"`
	CPULogicalCores    int                     `json:"cpu_logical_cores"`
	SwapTotalMB        uint64                  `json:"swap_total_mb"`
	SwapUsedMB         uint64                  `json:"swap_used_mb"`
	SwapFreeMB         uint64                  `json:"swap_free_mb"`

	hasCPUUsage bool
}

type NetworkInterfaceUsage struct {
	Name                  string  `json:"name"`
	ReceivedTotalBytes    uint64  `json:"received_total_bytes"`
	TransmittedTotalBytes uint64  `json:"transmitted_total_bytes"`
	ReceivedKbps          float64 `json:"received_kbps"`
	TransmittedKbps       float64 `json:"transmitted_kbps"`
}

// MemUsedPercent is derived rather than stored.
func (s Snapshot) MemUsedPercent() float64 {
	if s.MemTotalMB == 0 {
		return 0
	}
	return float64(s.MemUsedMB) / float64(s.MemTotalMB) * 100.0
}

// NetworkKbps sums receive and transmit rates over every interface except
// loopback.
func (s Snapshot) NetworkKbps() (rx, tx float64) {
	for _, iface := range s.Network {
		if iface.Name == "lo" {
			continue
		}
		rx += iface.ReceivedKbps
		tx += iface.TransmittedKbps
	}
	return rx, tx
}

// HasTimestamp reports whether a non-null timestamp was present.
func (s Snapshot) HasTimestamp() bool {
	return !s.Timestamp.IsZero()
}

// HasCPUUsage reports whether cpu_usage_pct was present when decoded, or set
// by the collector.
func (s Snapshot) HasCPUUsage() bool {
	return s.hasCPUUsage
}

// WithCPUUsage returns a copy carrying pct as its CPU usage.
func (s Snapshot) WithCPUUsage(pct float64) Snapshot {
	s.CPUUsagePct = pct
	s.hasCPUUsage = true
	return s
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	aux := struct {
		*plain
		CPUUsagePct *float64 `json:"cpu_usage_pct"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.hasCPUUsage = aux.CPUUsagePct != nil
	if aux.CPUUsagePct != nil {
		s.CPUUsagePct = *aux.CPUUsagePct
	}
	return nil
}

// Timestamp keeps the raw JSON token of a capture time. It is never parsed,
// only echoed back.
type Timestamp struct {
	raw json.RawMessage
}

func UnixMilli(ms int64) Timestamp {
	return Timestamp{raw: strconv.AppendInt(nil, ms, 10)}
}

func StringTimestamp(s string) Timestamp {
	raw, _ := json.Marshal(s)
	return Timestamp{raw: raw}
}

func (t Timestamp) IsZero() bool {
	return len(t.raw) == 0
}

// String returns string timestamps unquoted and anything else in its source
// form.
func (t Timestamp) String() string {
	if len(t.raw) > 0 && t.raw[0] == '"' {
		var s string
		if err := json.Unmarshal(t.raw, &s); err == nil {
			return s
		}
	}
	return string(t.raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if len(t.raw) == 0 {
		return []byte("null"), nil
	}
	return t.raw, nil
}

// UnmarshalJSON treats a JSON null like an absent key.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.raw = nil
		return nil
	}
	t.raw = append(t.raw[:0], data...)
	return nil
}
