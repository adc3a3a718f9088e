package ports

import (
	"context"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

// Journal records what the engine did, for after-the-fact inspection.
// Journal failures are logged and swallowed by callers: bookkeeping must
// never block trading.
type Journal interface {
	RecordEvent(ctx context.Context, ev domain.CopyEvent) error
	SaveSessionSummary(ctx context.Context, s domain.SessionSummary) error
	Close() error
}
