package orchestrator

import "github.com/buckleypaul/simmatrix/internal/matrix"

// Observer receives progress as the matrix runs. Calls are made from the
// orchestrator's goroutine, in order.
type Observer interface {
	RunStarted(plan []matrix.Variant)
	PrepareFinished(err error)
	VariantStarted(index, total int, v matrix.Variant)
	StageFinished(index int, r StageResult)
	VariantFinished(o VariantOutcome)
	RunFinished(r Run)
}

// NopObserver ignores every event. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) RunStarted([]matrix.Variant)             {}
func (NopObserver) PrepareFinished(error)                   {}
func (NopObserver) VariantStarted(int, int, matrix.Variant) {}
func (NopObserver) StageFinished(int, StageResult)          {}
func (NopObserver) VariantFinished(VariantOutcome)          {}
func (NopObserver) RunFinished(Run)                         {}

type multiObserver []Observer

// Multi fans events out to every non-nil observer.
func Multi(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) RunStarted(plan []matrix.Variant) {
	for _, o := range m {
		o.RunStarted(plan)
	}
}

func (m multiObserver) PrepareFinished(err error) {
	for _, o := range m {
		o.PrepareFinished(err)
	}
}

func (m multiObserver) VariantStarted(index, total int, v matrix.Variant) {
	for _, o := range m {
		o.VariantStarted(index, total, v)
	}
}

func (m multiObserver) StageFinished(index int, r StageResult) {
	for _, o := range m {
		o.StageFinished(index, r)
	}
}

func (m multiObserver) VariantFinished(out VariantOutcome) {
	for _, o := range m {
		o.VariantFinished(out)
	}
}

func (m multiObserver) RunFinished(r Run) {
	for _, o := range m {
		o.RunFinished(r)
	}
}
