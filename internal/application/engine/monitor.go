package engine

import "github.com/alejandrodnm/tradecopier/internal/domain"

// volumeEpsilon is the smallest lot change worth reporting.
const volumeEpsilon = 0.001

// VolumeChange is a per-ticket lot delta between two snapshots.
type VolumeChange struct {
	Ticket int64
	Old    float64
	New    float64
}

// DonorDelta is what changed on the donor side between two cycles.
type DonorDelta struct {
	// New positions, never seen before.
	New []domain.DonorPosition
	// Closed positions, with their last observed snapshot.
	Closed []domain.DonorPosition
	// VolumeChanges on surviving positions.
	VolumeChanges []VolumeChange
}

// Monitor diffs successive donor and client snapshots. Price and SL/TP
// drift are deliberately ignored: only appearance, disappearance and volume
// changes are actionable.
type Monitor struct {
	tracked    map[int64]struct{}
	last       map[int64]domain.DonorPosition
	lastClient map[int64]float64
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		tracked:    make(map[int64]struct{}),
		last:       make(map[int64]domain.DonorPosition),
		lastClient: make(map[int64]float64),
	}
}

// Track seeds a ticket as already known, so it will not be reported as new.
// Used at startup for positions that are linked or deliberately not copied.
func (m *Monitor) Track(p domain.DonorPosition) {
	m.tracked[p.Ticket] = struct{}{}
	m.last[p.Ticket] = p
}

// Forget drops a ticket so that, if still present in the next snapshot, it
// is reported as new again. Used when an adoption or open attempt has to be
// abandoned and the copy should be retried from scratch.
func (m *Monitor) Forget(ticket int64) {
	delete(m.tracked, ticket)
	delete(m.last, ticket)
}

// Tracked reports whether a ticket is currently known.
func (m *Monitor) Tracked(ticket int64) bool {
	_, ok := m.tracked[ticket]
	return ok
}

// LastKnown returns the last observed snapshot for a ticket.
func (m *Monitor) LastKnown(ticket int64) (domain.DonorPosition, bool) {
	p, ok := m.last[ticket]
	return p, ok
}

// ObserveDonor ingests a snapshot and emits the delta against the previous
// one.
func (m *Monitor) ObserveDonor(current []domain.DonorPosition) DonorDelta {
	var delta DonorDelta

	seen := make(map[int64]struct{}, len(current))
	for _, p := range current {
		seen[p.Ticket] = struct{}{}
		if _, ok := m.tracked[p.Ticket]; !ok {
			delta.New = append(delta.New, p)
			m.tracked[p.Ticket] = struct{}{}
			m.last[p.Ticket] = p
			continue
		}
		if prev, ok := m.last[p.Ticket]; ok {
			if diff := p.Volume - prev.Volume; diff > volumeEpsilon || diff < -volumeEpsilon {
				delta.VolumeChanges = append(delta.VolumeChanges, VolumeChange{
					Ticket: p.Ticket,
					Old:    prev.Volume,
					New:    p.Volume,
				})
			}
		}
		m.last[p.Ticket] = p
	}

	for ticket := range m.tracked {
		if _, ok := seen[ticket]; ok {
			continue
		}
		if prev, ok := m.last[ticket]; ok {
			delta.Closed = append(delta.Closed, prev)
		}
		delete(m.tracked, ticket)
		delete(m.last, ticket)
	}

	return delta
}

// ObserveClient ingests a client snapshot and reports volume changes on
// surviving positions. Report-only: nothing on the client side triggers
// trades, but a partial close made by hand is worth surfacing.
func (m *Monitor) ObserveClient(current []domain.ClientPosition) []VolumeChange {
	var changes []VolumeChange

	seen := make(map[int64]struct{}, len(current))
	for _, p := range current {
		seen[p.Ticket] = struct{}{}
		if prev, ok := m.lastClient[p.Ticket]; ok {
			if diff := p.Volume - prev; diff > volumeEpsilon || diff < -volumeEpsilon {
				changes = append(changes, VolumeChange{Ticket: p.Ticket, Old: prev, New: p.Volume})
			}
		}
		m.lastClient[p.Ticket] = p.Volume
	}

	for ticket := range m.lastClient {
		if _, ok := seen[ticket]; !ok {
			delete(m.lastClient, ticket)
		}
	}
	return changes
}
