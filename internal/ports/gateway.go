package ports

import (
	"context"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

// ClientGateway is the engine's view of the client account. All calls are
// serialized through one worker that owns the broker session, so every
// mutation against the account is totally ordered. Read calls carry a short
// deadline, submissions a longer one; a deadline miss surfaces as ErrTimeout
// and means the outcome is unknown.
//
// Position and order listings are filtered to the engine's magic tag unless
// the gateway was built with no tag, in which case everything is visible.
type ClientGateway interface {
	ListPositions(ctx context.Context) ([]domain.ClientPosition, error)
	PositionByTicket(ctx context.Context, ticket int64) (domain.ClientPosition, error)
	PositionsBySymbol(ctx context.Context, symbol string) ([]domain.ClientPosition, error)
	ListOrders(ctx context.Context) ([]domain.ClientPendingOrder, error)
	OrderByTicket(ctx context.Context, ticket int64) (domain.ClientPendingOrder, error)
	// DealByOrder looks back windowSeconds into deal history for the
	// execution produced by an order.
	DealByOrder(ctx context.Context, orderTicket int64, windowSeconds int) (domain.Deal, error)
	Submit(ctx context.Context, req domain.TradeRequest) (domain.SubmitResult, error)
	Tick(ctx context.Context, symbol string) (domain.Tick, error)
	// SymbolCheck selects the symbol on the terminal, fetches its metadata
	// and confirms it quotes; ErrSymbolUnavailable if any step fails.
	SymbolCheck(ctx context.Context, symbol string) (domain.SymbolInfo, error)
	AccountInfo(ctx context.Context) (domain.AccountInfo, error)
	Close() error
}

// DonorGateway is the read-only subset served against a donor's terminal.
type DonorGateway interface {
	ListPositions(ctx context.Context) ([]domain.ClientPosition, error)
	AccountInfo(ctx context.Context) (domain.AccountInfo, error)
	Close() error
}
