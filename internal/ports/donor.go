package ports

import (
	"context"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

// DonorSource supplies one logical donor's positions and pending orders.
// Snapshot reads never block on the transport: socket variants return the
// last frame received, terminal variants do a bounded round-trip.
type DonorSource interface {
	ID() string
	AccountNumber() int64
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Positions() ([]domain.DonorPosition, error)
	Orders() ([]domain.DonorPendingOrder, error)
	AccountInfo() (domain.AccountInfo, error)
}

// DonorFeed is the aggregated view over every configured donor source that
// the reconciliation loop consumes each cycle.
type DonorFeed interface {
	// AllPositions unions positions across connected sources, each tagged
	// with its source id. A failing source is skipped, not fatal.
	AllPositions() []domain.DonorPosition
	// AllOrders unions pending orders across connected sources.
	AllOrders() []domain.DonorPendingOrder
	// Balance returns the last known balance of one source's account.
	Balance(sourceID string) (float64, bool)
	// ConnectedCount is the number of sources currently online.
	ConnectedCount() int
}
