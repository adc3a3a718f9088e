package ports

import (
	"context"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

// Notifier receives the per-cycle report for presentation.
type Notifier interface {
	Notify(ctx context.Context, report domain.CycleReport) error
}
