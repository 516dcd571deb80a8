package report

import (
	"time"

	"github.com/buckleypaul/simmatrix/internal/orchestrator"
	"github.com/buckleypaul/simmatrix/internal/store"
)

// HistoryRecord converts a finished run into its persisted form.
func HistoryRecord(id, document, logDir string, started time.Time, r orchestrator.Run) store.RunRecord {
	rec := store.RunRecord{
		ID:          id,
		Timestamp:   started,
		Document:    document,
		Duration:    r.Duration.Round(time.Millisecond).String(),
		Planned:     r.Planned,
		Passed:      r.Passed,
		Failed:      r.Failed,
		Interrupted: r.Interrupted,
		LogDir:      logDir,
	}
	for _, o := range r.Outcomes {
		vr := store.VariantRecord{
			Index:      o.Index + 1,
			Device:     o.Variant.Device,
			Peripheral: o.Variant.Peripheral,
			Family:     o.Variant.Family.String(),
			Pin:        o.Variant.PinDescription(),
			Success:    o.Passed,
			Endpoint:   o.Endpoint,
			Duration:   o.Duration.Round(time.Millisecond).String(),
		}
		for _, s := range o.FailedStages() {
			vr.FailedStages = append(vr.FailedStages, string(s))
		}
		rec.Variants = append(rec.Variants, vr)
	}
	return rec
}
