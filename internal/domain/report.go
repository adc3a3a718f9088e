package domain

import "time"

// LinkRow is one live correspondence rendered for reporting.
type LinkRow struct {
	SourceID     string
	DonorTicket  int64
	ClientTicket int64
	Symbol       string
	Direction    Direction
	Volume       float64
	DonorPrice   float64
	ClientPrice  float64
	Profit       float64
}

// CycleReport summarizes one reconciliation cycle for the notifier and the
// journal.
type CycleReport struct {
	Cycle          int64
	At             time.Time
	Duration       time.Duration
	DonorsOnline   int
	DonorPositions int
	Links          []LinkRow
	OpenInFlight   int
	CloseInFlight  int
	MirroredOrders int

	NewCopies   int
	ClosedLinks int
	Fills       int
	CloseBys    int
	Reprices    int
	Cancels     int
	Warnings    []string
}

// Quiet reports whether the cycle took no action worth printing.
func (r CycleReport) Quiet() bool {
	return r.NewCopies == 0 && r.ClosedLinks == 0 && r.Fills == 0 &&
		r.CloseBys == 0 && r.Reprices == 0 && r.Cancels == 0 && len(r.Warnings) == 0
}
