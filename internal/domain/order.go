package domain

import "fmt"

// Direction is the side of a market position.
type Direction int

const (
	Buy Direction = iota
	Sell
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

func (d Direction) String() string {
	if d == Buy {
		return "BUY"
	}
	return "SELL"
}

// OrderKind identifies a pending order type.
type OrderKind int

const (
	BuyLimit OrderKind = iota
	SellLimit
	BuyStop
	SellStop
	BuyStopLimit
	SellStopLimit
)

func (k OrderKind) String() string {
	switch k {
	case BuyLimit:
		return "BUY_LIMIT"
	case SellLimit:
		return "SELL_LIMIT"
	case BuyStop:
		return "BUY_STOP"
	case SellStop:
		return "SELL_STOP"
	case BuyStopLimit:
		return "BUY_STOP_LIMIT"
	case SellStopLimit:
		return "SELL_STOP_LIMIT"
	}
	return fmt.Sprintf("OrderKind(%d)", int(k))
}

// Direction returns the side a pending order opens when filled.
func (k OrderKind) Direction() Direction {
	switch k {
	case BuyLimit, BuyStop, BuyStopLimit:
		return Buy
	default:
		return Sell
	}
}

// LimitKindFor returns the limit order kind that opens the given side.
func LimitKindFor(d Direction) OrderKind {
	if d == Buy {
		return BuyLimit
	}
	return SellLimit
}

// Wire type codes shared by the MT4 and MT5 feed agents: 0/1 are open
// positions, 2..7 are pending order kinds.
const (
	wireBuy           = 0
	wireSell          = 1
	wireBuyLimit      = 2
	wireSellLimit     = 3
	wireBuyStop       = 4
	wireSellStop      = 5
	wireBuyStopLimit  = 6
	wireSellStopLimit = 7
)

// DirectionFromWire decodes a position type code.
func DirectionFromWire(code int) (Direction, error) {
	switch code {
	case wireBuy:
		return Buy, nil
	case wireSell:
		return Sell, nil
	}
	return 0, fmt.Errorf("domain.DirectionFromWire: unknown position type %d", code)
}

// OrderKindFromWire decodes a pending order type code.
func OrderKindFromWire(code int) (OrderKind, error) {
	switch code {
	case wireBuyLimit:
		return BuyLimit, nil
	case wireSellLimit:
		return SellLimit, nil
	case wireBuyStop:
		return BuyStop, nil
	case wireSellStop:
		return SellStop, nil
	case wireBuyStopLimit:
		return BuyStopLimit, nil
	case wireSellStopLimit:
		return SellStopLimit, nil
	}
	return 0, fmt.Errorf("domain.OrderKindFromWire: unknown order type %d", code)
}

// WireCode encodes a direction as a feed type code.
func (d Direction) WireCode() int {
	if d == Buy {
		return wireBuy
	}
	return wireSell
}

// WireCode encodes an order kind as a feed type code.
func (k OrderKind) WireCode() int {
	return int(k) + wireBuyLimit
}

// TradeAction selects what a trade request does at the broker.
type TradeAction int

const (
	ActionDeal    TradeAction = iota // immediate market execution
	ActionPending                    // place a pending order
	ActionModify                     // change a pending order's price
	ActionRemove                     // delete a pending order
	ActionCloseBy                    // net two opposing positions
)

func (a TradeAction) String() string {
	switch a {
	case ActionDeal:
		return "deal"
	case ActionPending:
		return "pending"
	case ActionModify:
		return "modify"
	case ActionRemove:
		return "remove"
	case ActionCloseBy:
		return "close_by"
	}
	return fmt.Sprintf("TradeAction(%d)", int(a))
}

// TradeRequest is a single order submission. Fields are interpreted per
// Action: deals use Symbol/Direction/Volume/Price (and Position when closing),
// pendings use Kind, modify/remove address OrderTicket, close-by nets
// Position against ByPosition.
type TradeRequest struct {
	Action      TradeAction
	Symbol      string
	Direction   Direction
	Kind        OrderKind
	Volume      float64
	Price       float64
	SL          float64
	TP          float64
	Magic       int64
	Comment     string
	Position    int64 // ticket of the position being closed or netted
	ByPosition  int64 // opposing ticket for close-by
	OrderTicket int64 // pending order addressed by modify/remove
}

// Broker return codes for order submissions.
const (
	RetDone         = 10009 // executed
	RetPlaced       = 10008 // pending order accepted
	RetRequote      = 10004
	RetInvalidPrice = 10015
	RetInvalidStops = 10016
	RetOffQuotes    = 10018
)

// SubmitResult is the broker's answer to a trade request.
type SubmitResult struct {
	RetCode int
	Deal    int64
	Order   int64
	Volume  float64
	Price   float64
	Comment string
}

// Accepted reports whether the broker took the request.
func (r SubmitResult) Accepted() bool {
	return r.RetCode == RetDone || r.RetCode == RetPlaced
}

// Retryable reports whether the failure is the transient kind that the
// placement loop answers by widening the offset one point.
func (r SubmitResult) Retryable() bool {
	switch r.RetCode {
	case RetRequote, RetInvalidPrice, RetInvalidStops, RetOffQuotes:
		return true
	}
	return false
}

// Deal is an executed trade from broker history, used to locate the
// position that a filled pending order produced.
type Deal struct {
	Ticket         int64
	OrderTicket    int64
	PositionTicket int64
	Symbol         string
	Volume         float64
	Price          float64
}
