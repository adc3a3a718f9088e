package domain

import "time"

// DonorPosition is an open position observed on a donor account. Identity is
// (SourceID, Ticket); the feeds in use assign globally unique tickets per
// source, so Ticket alone keys the correspondence map.
type DonorPosition struct {
	Ticket       int64
	Symbol       string
	Direction    Direction
	Volume       float64
	PriceOpen    float64
	PriceCurrent float64
	Profit       float64
	OpenedAt     time.Time
	SourceID     string
	Magic        *int64
	Comment      string
	SL           float64
	TP           float64
}

// DonorPendingOrder is a pending order observed on a donor account.
type DonorPendingOrder struct {
	Ticket    int64
	Symbol    string
	Kind      OrderKind
	Volume    float64
	Price     float64
	TimeSetup time.Time
	SourceID  string
	SL        float64
	TP        float64
}

// ClientPosition is an open position on the client account.
type ClientPosition struct {
	Ticket       int64
	Symbol       string
	Direction    Direction
	Volume       float64
	PriceOpen    float64
	PriceCurrent float64
	Profit       float64
	OpenedAt     time.Time
	Magic        int64
	Comment      string
}

// ClientPendingOrder is a live pending order on the client account.
type ClientPendingOrder struct {
	Ticket        int64
	Symbol        string
	Kind          OrderKind
	VolumeInitial float64
	VolumeCurrent float64
	Price         float64
	TimeSetup     time.Time
}

// Tick is a single quote for a symbol.
type Tick struct {
	Bid    float64
	Ask    float64
	Last   float64
	Volume int64
	Time   time.Time
}

// Ref returns the market reference price for a limit order kind: ask for
// buy limits, bid for sell limits.
func (t Tick) Ref(kind OrderKind) float64 {
	if kind.Direction() == Buy {
		return t.Ask
	}
	return t.Bid
}

// SymbolInfo is broker metadata for a tradable symbol.
type SymbolInfo struct {
	Name       string
	Digits     int
	Point      float64
	TradeMode  int
	VolumeMin  float64
	VolumeMax  float64
	VolumeStep float64
}

// AccountInfo describes a broker account.
type AccountInfo struct {
	Login        int64
	Balance      float64
	Equity       float64
	MarginFree   float64
	Currency     string
	Server       string
	TradeAllowed bool
	TradeExpert  bool
}
