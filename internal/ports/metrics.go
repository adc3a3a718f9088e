package ports

import "time"

// Metrics receives operational counters from the engine. Implementations
// must be cheap: these are called from the reconciliation loop.
type Metrics interface {
	ObserveCycle(d time.Duration)
	IncSubmission(action string, accepted bool)
	IncFill()
	IncCloseBy()
	IncReprice()
	SetDonorsConnected(n int)
	SetLinkedPositions(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveCycle(time.Duration)       {}
func (NopMetrics) IncSubmission(string, bool)       {}
func (NopMetrics) IncFill()                         {}
func (NopMetrics) IncCloseBy()                      {}
func (NopMetrics) IncReprice()                      {}
func (NopMetrics) SetDonorsConnected(int)           {}
func (NopMetrics) SetLinkedPositions(int)           {}
