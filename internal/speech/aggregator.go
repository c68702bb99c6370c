package speech

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"screenguide/internal/domain"
)

// aggregator rebuilds the full transcript from provider segments: finalized
// segments in recognition order, then the current provisional segment.
type aggregator struct {
	finals  []string
	partial string
	last    string
}

func newAggregator() *aggregator {
	return &aggregator{}
}

// Add folds one provider event in and reports the new snapshot and whether it
// differs from the previous one.
func (a *aggregator) Add(event domain.TranscriptEvent) (string, bool) {
	text := strings.TrimSpace(event.Text)
	switch event.Kind {
	case domain.TranscriptKindFinal:
		if text != "" {
			a.finals = append(a.finals, text)
		}
		a.partial = ""
	default:
		a.partial = text
	}

	snapshot := a.Snapshot()
	if snapshot == a.last {
		return snapshot, false
	}
	a.last = snapshot
	return snapshot, true
}

func (a *aggregator) Snapshot() string {
	segments := lo.Compact(append(slices.Clone(a.finals), a.partial))
	return strings.Join(segments, " ")
}
