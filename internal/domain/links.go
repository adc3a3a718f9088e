package domain

import "time"

// PositionLink is one live donor→client correspondence, with enough of both
// sides' open snapshot to re-verify the pairing after a restart.
type PositionLink struct {
	ClientTicket    int64
	Symbol          string
	Direction       Direction
	DonorPriceOpen  float64
	ClientPriceOpen float64
	DonorTime       time.Time
	ClientTime      time.Time
	DonorMagic      *int64
	ClientMagic     int64
	DonorComment    string
	ClientComment   string
}

// OpenOrderLink tracks a limit order placed to open a copy, keyed by the
// client order ticket.
type OpenOrderLink struct {
	DonorTicket   int64
	Symbol        string
	Kind          OrderKind
	OriginalPrice float64
}

// CloseOrderInfo tracks a limit order placed to close a copy, keyed by the
// client order ticket.
type CloseOrderInfo struct {
	DonorTicket          int64
	Symbol               string
	Kind                 OrderKind
	OriginalClosePrice   float64
	ClientPositionTicket int64
}

// CorrespondenceMap is the engine's whole memory of which client activity
// mirrors which donor activity. Keys are broker tickets. It is owned by the
// reconciliation loop and never shared across goroutines.
type CorrespondenceMap struct {
	Positions      map[int64]PositionLink    // donor position ticket → link
	OpenOrders     map[int64]OpenOrderLink   // client order ticket → open in flight
	CloseOrders    map[int64]int64           // donor position ticket → client close-order ticket
	CloseDetails   map[int64]CloseOrderInfo  // client close-order ticket → details
	PendingOrders  map[int64]int64           // donor order ticket → client order ticket
	SkippedSymbols map[string]struct{}       // symbols unavailable on the client
}

// NewCorrespondenceMap returns an empty map.
func NewCorrespondenceMap() *CorrespondenceMap {
	return &CorrespondenceMap{
		Positions:      make(map[int64]PositionLink),
		OpenOrders:     make(map[int64]OpenOrderLink),
		CloseOrders:    make(map[int64]int64),
		CloseDetails:   make(map[int64]CloseOrderInfo),
		PendingOrders:  make(map[int64]int64),
		SkippedSymbols: make(map[string]struct{}),
	}
}

// ClientTicketLinked reports whether a client position ticket already backs
// some donor link. Position links are injective over client tickets.
func (m *CorrespondenceMap) ClientTicketLinked(clientTicket int64) bool {
	for _, link := range m.Positions {
		if link.ClientTicket == clientTicket {
			return true
		}
	}
	return false
}

// DonorBusy reports whether a donor ticket is already accounted for, either
// as a live link, an opening order in flight, or a close in flight.
func (m *CorrespondenceMap) DonorBusy(donorTicket int64) bool {
	if _, ok := m.Positions[donorTicket]; ok {
		return true
	}
	if _, ok := m.CloseOrders[donorTicket]; ok {
		return true
	}
	for _, o := range m.OpenOrders {
		if o.DonorTicket == donorTicket {
			return true
		}
	}
	return false
}

// OpenOrderForDonor finds the in-flight opening order for a donor ticket.
func (m *CorrespondenceMap) OpenOrderForDonor(donorTicket int64) (clientOrderTicket int64, link OpenOrderLink, ok bool) {
	for t, o := range m.OpenOrders {
		if o.DonorTicket == donorTicket {
			return t, o, true
		}
	}
	return 0, OpenOrderLink{}, false
}

// DropDonor removes every trace of a donor ticket: its position link, any
// opening order, and any close in flight.
func (m *CorrespondenceMap) DropDonor(donorTicket int64) {
	delete(m.Positions, donorTicket)
	if t, _, ok := m.OpenOrderForDonor(donorTicket); ok {
		delete(m.OpenOrders, t)
	}
	if closeTicket, ok := m.CloseOrders[donorTicket]; ok {
		delete(m.CloseDetails, closeTicket)
		delete(m.CloseOrders, donorTicket)
	}
}

// Skip marks a symbol as unavailable on the client for this session.
func (m *CorrespondenceMap) Skip(symbol string) {
	m.SkippedSymbols[symbol] = struct{}{}
}

// Skipped reports whether a symbol is in the negative cache.
func (m *CorrespondenceMap) Skipped(symbol string) bool {
	_, ok := m.SkippedSymbols[symbol]
	return ok
}
