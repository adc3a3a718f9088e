package domain

import "time"

// CopyEventKind classifies entries in the trade journal.
type CopyEventKind string

const (
	EventOpenPlaced   CopyEventKind = "open_placed"
	EventOpenFilled   CopyEventKind = "open_filled"
	EventOpenCancel   CopyEventKind = "open_cancelled"
	EventClosePlaced  CopyEventKind = "close_placed"
	EventCloseBy      CopyEventKind = "close_by"
	EventMarketOpen   CopyEventKind = "market_open"
	EventMarketClose  CopyEventKind = "market_close"
	EventMirrorPlaced CopyEventKind = "mirror_placed"
	EventMirrorCancel CopyEventKind = "mirror_cancelled"
	EventReprice      CopyEventKind = "reprice"
	EventSymbolSkip   CopyEventKind = "symbol_skipped"
)

// CopyEvent is one journal entry: something the engine did or observed that
// changed the correspondence map.
type CopyEvent struct {
	ID           string
	SessionID    string
	At           time.Time
	Kind         CopyEventKind
	Symbol       string
	SourceID     string
	DonorTicket  int64
	ClientTicket int64
	Volume       float64
	Price        float64
	Detail       string
}

// SessionSummary aggregates one engine run for the journal.
type SessionSummary struct {
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Cycles     int64
	Copies     int64
	Closes     int64
	CloseBys   int64
	Reprices   int64
}
