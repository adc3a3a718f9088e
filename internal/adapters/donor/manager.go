package donor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// Manager owns every configured donor source and unions their streams for
// the engine. A source that fails mid-cycle is skipped, not fatal: its
// positions simply disappear from the aggregate until it recovers, and the
// engine treats that as the donor closing them.
type Manager struct {
	sources []ports.DonorSource

	mu       sync.Mutex
	balances map[string]float64 // last good balance per source id
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{balances: make(map[string]float64)}
}

// Add connects a source and adopts it. A source that refuses to connect is
// not kept.
func (m *Manager) Add(ctx context.Context, s ports.DonorSource) error {
	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("donor.Manager: add %s: %w", s.ID(), err)
	}
	m.sources = append(m.sources, s)
	return nil
}

// Sources returns the adopted sources.
func (m *Manager) Sources() []ports.DonorSource {
	return m.sources
}

// ConnectedCount is the number of sources currently online.
func (m *Manager) ConnectedCount() int {
	n := 0
	for _, s := range m.sources {
		if s.Connected() {
			n++
		}
	}
	return n
}

// AllPositions unions positions across connected sources.
func (m *Manager) AllPositions() []domain.DonorPosition {
	var all []domain.DonorPosition
	for _, s := range m.sources {
		if !s.Connected() {
			continue
		}
		positions, err := s.Positions()
		if err != nil {
			slog.Error("donor: positions unavailable, skipping source this cycle", "source", s.ID(), "err", err)
			continue
		}
		all = append(all, positions...)
	}
	return all
}

// AllOrders unions pending orders across connected sources.
func (m *Manager) AllOrders() []domain.DonorPendingOrder {
	var all []domain.DonorPendingOrder
	for _, s := range m.sources {
		if !s.Connected() {
			continue
		}
		orders, err := s.Orders()
		if err != nil {
			slog.Error("donor: orders unavailable, skipping source this cycle", "source", s.ID(), "err", err)
			continue
		}
		all = append(all, orders...)
	}
	return all
}

// Balance returns the last known balance of a source's account, refreshing
// it when the source is reachable.
func (m *Manager) Balance(sourceID string) (float64, bool) {
	for _, s := range m.sources {
		if s.ID() != sourceID {
			continue
		}
		if s.Connected() {
			if info, err := s.AccountInfo(); err == nil {
				m.mu.Lock()
				m.balances[sourceID] = info.Balance
				m.mu.Unlock()
				return info.Balance, true
			}
		}
		m.mu.Lock()
		b, ok := m.balances[sourceID]
		m.mu.Unlock()
		return b, ok
	}
	return 0, false
}

// DisconnectAll tears every source down, in reverse connection order.
func (m *Manager) DisconnectAll() {
	for i := len(m.sources) - 1; i >= 0; i-- {
		s := m.sources[i]
		if err := s.Disconnect(); err != nil {
			slog.Error("donor: disconnect failed", "source", s.ID(), "err", err)
		}
	}
	m.sources = nil
}

var _ ports.DonorFeed = (*Manager)(nil)
