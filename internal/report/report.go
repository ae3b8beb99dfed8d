package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"system-snapshot/internal/metrics"
)

// RecentCount is how many of the newest snapshots get a CPU line.
const RecentCount = 5

var (
	ErrEmptyHistory = errors.New("snapshot history is empty")
	ErrMissingField = errors.New("snapshot is missing a required field")
)

type Summary struct {
	Total  int
	First  metrics.Timestamp
	Last   metrics.Timestamp
	Recent []metrics.Snapshot
}

// Summarize resolves every value the report prints, so rendering cannot fail
// halfway through.
func Summarize(history metrics.History) (Summary, error) {
	snaps := history.Snapshots
	if len(snaps) == 0 {
		return Summary{}, ErrEmptyHistory
	}

	first, last := snaps[0], snaps[len(snaps)-1]
	if !first.HasTimestamp() {
		return Summary{}, fmt.Errorf("%w: snapshot 0 has no timestamp", ErrMissingField)
	}
	if !last.HasTimestamp() {
		return Summary{}, fmt.Errorf("%w: snapshot %d has no timestamp", ErrMissingField, len(snaps)-1)
	}

	start := max(len(snaps)-RecentCount, 0)
	recent := snaps[start:]
	for i, snap := range recent {
		if !snap.HasCPUUsage() {
			return Summary{}, fmt.Errorf("%w: snapshot %d has no cpu_usage_pct", ErrMissingField, start+i)
		}
		if !snap.HasTimestamp() {
			return Summary{}, fmt.Errorf("%w: snapshot %d has no timestamp", ErrMissingField, start+i)
		}
	}

	return Summary{
		Total:  len(snaps),
		First:  first.Timestamp,
		Last:   last.Timestamp,
		Recent: recent,
	}, nil
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Toplam snapshot: %d\n", s.Total)
	fmt.Fprintf(&b, "⏰ İlk timestamp: %s\n", s.First)
	fmt.Fprintf(&b, "⏰ Son timestamp: %s\n", s.Last)
	fmt.Fprintf(&b, "\n📈 Son %d snapshot'ın CPU kullanımı:\n", RecentCount)
	for i, snap := range s.Recent {
		fmt.Fprintf(&b, "  %d. %.2f%% (timestamp: %s)\n", i+1, snap.CPUUsagePct, snap.Timestamp)
	}
	return b.String()
}

// Write summarizes history and prints the report to w.
func Write(w io.Writer, history metrics.History) error {
	summary, err := Summarize(history)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, summary.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
