package ports

import (
	"time"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

// TerminalSession is the raw broker-library surface for one logged-in
// terminal. Implementations are not safe for concurrent use; a session must
// only ever be driven by its owning gateway worker.
type TerminalSession interface {
	// Positions returns every open position on the account.
	Positions() ([]domain.ClientPosition, error)
	// PositionsBySymbol returns open positions for one symbol.
	PositionsBySymbol(symbol string) ([]domain.ClientPosition, error)
	// PositionByTicket returns one position, or ErrNotFound.
	PositionByTicket(ticket int64) (domain.ClientPosition, error)
	// Orders returns every live pending order.
	Orders() ([]domain.ClientPendingOrder, error)
	// OrderByTicket returns one pending order, or ErrNotFound.
	OrderByTicket(ticket int64) (domain.ClientPendingOrder, error)
	// DealByOrder searches deal history for the execution of an order, or
	// ErrNotFound if nothing filled it in the window.
	DealByOrder(orderTicket int64, from, to time.Time) (domain.Deal, error)
	// OrderSend submits a trade request.
	OrderSend(req domain.TradeRequest) (domain.SubmitResult, error)
	// SymbolSelect adds a symbol to the terminal's watch list.
	SymbolSelect(symbol string) error
	// SymbolInfo returns metadata for a symbol, or ErrSymbolUnavailable.
	SymbolInfo(symbol string) (domain.SymbolInfo, error)
	// Tick returns the latest quote for a symbol.
	Tick(symbol string) (domain.Tick, error)
	// AccountInfo returns the logged-in account's details.
	AccountInfo() (domain.AccountInfo, error)
	// Close shuts the terminal connection down.
	Close() error
}
