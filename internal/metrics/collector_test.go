package metrics

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time {
	return f.t
}

func newTestCollector(clock *fakeClock) *Collector {
	return NewCollector(
		WithProcRoot(filepath.Join("testdata", "proc1")),
		WithClock(clock.now),
		WithHostname(func() (string, error) { return "testbox", nil }),
	)
}

func TestCollectFirstSamplePrimes(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	c := newTestCollector(clock)
	assert.False(t, c.Primed())

	snap, err := c.Collect()
	require.NoError(t, err)
	assert.True(t, c.Primed())

	assert.Equal(t, "1700000000000", snap.Timestamp.String())
	assert.True(t, snap.HasCPUUsage())
	assert.Equal(t, 0.0, snap.CPUUsagePct)
	assert.Equal(t, []float64{0, 0}, snap.CPUPerCoreUsagePct)
	assert.Equal(t, 2, snap.CPULogicalCores)

	require.NotNil(t, snap.Hostname)
	assert.Equal(t, "testbox", *snap.Hostname)

	assert.Equal(t, uint64(8192), snap.MemTotalMB)
	assert.Equal(t, uint64(2048), snap.MemAvailableMB)
	assert.Equal(t, uint64(6144), snap.MemUsedMB)
	assert.InDelta(t, 75.0, snap.MemUsedPercent(), 1e-9)
	assert.Equal(t, uint64(2048), snap.SwapTotalMB)
	assert.Equal(t, uint64(512), snap.SwapUsedMB)
	assert.Equal(t, uint64(1536), snap.SwapFreeMB)

	require.NotNil(t, snap.LoadAvgOne)
	assert.Equal(t, 0.52, *snap.LoadAvgOne)
	assert.Equal(t, 0.58, *snap.LoadAvgFive)
	assert.Equal(t, 0.59, *snap.LoadAvgFifteen)
	assert.Equal(t, uint64(12345), snap.UptimeSeconds)

	require.Len(t, snap.Network, 2)
	assert.Equal(t, "lo", snap.Network[0].Name)
	assert.Equal(t, "eth0", snap.Network[1].Name)
	assert.Equal(t, uint64(2048000), snap.Network[1].ReceivedTotalBytes)
	assert.Equal(t, uint64(1024000), snap.Network[1].TransmittedTotalBytes)
	assert.Zero(t, snap.Network[1].ReceivedKbps)
}

func TestCollectComputesDeltas(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	c := newTestCollector(clock)

	_, err := c.Collect()
	require.NoError(t, err)

	c.procRoot = filepath.Join("testdata", "proc2")
	clock.t = clock.t.Add(time.Second)

	snap, err := c.Collect()
	require.NoError(t, err)

	assert.InDelta(t, 30.0, snap.CPUUsagePct, 1e-9)
	require.Len(t, snap.CPUPerCoreUsagePct, 2)
	assert.InDelta(t, 40.0, snap.CPUPerCoreUsagePct[0], 1e-9)
	assert.InDelta(t, 20.0, snap.CPUPerCoreUsagePct[1], 1e-9)

	require.Len(t, snap.Network, 2)
	assert.Zero(t, snap.Network[0].ReceivedKbps)
	assert.InDelta(t, 1000.0, snap.Network[1].ReceivedKbps, 1e-9)
	assert.InDelta(t, 500.0, snap.Network[1].TransmittedKbps, 1e-9)
}

func TestCollectMissingProc(t *testing.T) {
	c := NewCollector(WithProcRoot(t.TempDir()))

	_, err := c.Collect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cpu")
	assert.False(t, c.Primed())
}

func TestCollectWithoutHostname(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewCollector(
		WithProcRoot(filepath.Join("testdata", "proc1")),
		WithClock(clock.now),
		WithHostname(func() (string, error) { return "", errors.New("no hostname") }),
	)

	snap, err := c.Collect()
	require.NoError(t, err)
	assert.Nil(t, snap.Hostname)
}

func TestCPUUsage(t *testing.T) {
	prev := cpuStats{user: 100, system: 100, idle: 800}

	assert.InDelta(t, 50.0, cpuUsage(prev, cpuStats{user: 200, system: 200, idle: 1000}), 1e-9)
	assert.Equal(t, 0.0, cpuUsage(prev, prev), "no ticks elapsed")
	assert.Equal(t, 0.0, cpuUsage(prev, cpuStats{user: 50}), "counter reset")
}
