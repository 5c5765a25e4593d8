package status

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/stepmigrate/internal/store"
)

// Status display constants
const (
	defaultHistoryLimit = 10 // Default number of history entries to show
)

// Source is the part of a store status is read from.
type Source interface {
	CurrentVersion(ctx context.Context) (int, error)
	ListApplied(ctx context.Context) ([]int, error)
	ListRuns(ctx context.Context) ([]store.Run, error)
}

// HistoryItem is a single execution record of a migration step.
// RanAt is an RFC3339 timestamp in UTC. Phase and Message are empty for
// successful runs.
type HistoryItem struct {
	ID          int64
	Version     int
	Description string
	Status      string
	Phase       string
	Message     string
	RanAt       string
}

// Failed reports whether the run did not succeed.
func (h HistoryItem) Failed() bool {
	return h.Status != "" && h.Status != "succeeded"
}

// Info aggregates status information: current version, applied list, and run history.
type Info struct {
	Version int
	Applied []int
	History []HistoryItem
}

// FromStore collects status information from an opened store.
func FromStore(ctx context.Context, st Source) (Info, error) {
	cur, err := st.CurrentVersion(ctx)
	if err != nil {
		return Info{}, err
	}
	applied, err := st.ListApplied(ctx)
	if err != nil {
		return Info{}, err
	}
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return Info{}, err
	}
	items := make([]HistoryItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, HistoryItem{
			ID:          r.ID,
			Version:     r.Version,
			Description: r.Description,
			Status:      r.Status,
			Phase:       r.Phase,
			Message:     r.Message,
			RanAt:       r.RanAt,
		})
	}
	if applied == nil {
		applied = []int{}
	}
	return Info{Version: cur, Applied: applied, History: items}, nil
}

// FromConfig opens a store using cfg, collects status, and closes it.
func FromConfig(ctx context.Context, cfg store.Config) (Info, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = st.Close() }()
	return FromStore(ctx, st)
}

// FormatHuman returns a human-friendly multiline string for CLI output.
// history=false prints only current version and applied list;
// history=true additionally appends every run oldest-first.
func (i Info) FormatHuman(history bool) string {
	base := fmt.Sprintf("current: %d\napplied: %v\n", i.Version, i.Applied)
	if !history {
		return base
	}
	return base + formatHistory(i.History)
}

// FormatHumanWithLimit prints status like FormatHuman, but when history=true it prints
// newest-first up to the provided limit. If all=true, the entire history is printed
// newest-first and limit is ignored. Default behavior when limit<=0 is 10.
func (i Info) FormatHumanWithLimit(history bool, limit int, all bool) string {
	base := fmt.Sprintf("current: %d\napplied: %v\n", i.Version, i.Applied)
	if !history {
		return base
	}
	// reverse copy to make newest-first (underlying history is oldest-first)
	rev := make([]HistoryItem, len(i.History))
	for idx := range i.History {
		rev[len(i.History)-1-idx] = i.History[idx]
	}
	items := rev
	if !all {
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		if len(items) > limit {
			items = items[:limit]
		}
	}
	return base + formatHistory(items)
}

func formatHistory(items []HistoryItem) string {
	if len(items) == 0 {
		return "history: \n"
	}
	var b strings.Builder
	b.WriteString("history:\n")
	for _, h := range items {
		fmt.Fprintf(&b, "#%d v=%d status=%s at=%s", h.ID, h.Version, h.Status, h.RanAt)
		if h.Failed() {
			fmt.Fprintf(&b, " phase=%s error=%q", h.Phase, h.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}
