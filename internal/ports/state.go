package ports

import "github.com/alejandrodnm/tradecopier/internal/domain"

// StateStore persists the correspondence map across restarts. Save must be
// atomic: a crash mid-write may lose the newest state but never leaves a
// partially written file behind.
type StateStore interface {
	Save(m *domain.CorrespondenceMap) error
	// Load returns the persisted map, or (nil, nil) when no state exists yet.
	Load() (*domain.CorrespondenceMap, error)
}
