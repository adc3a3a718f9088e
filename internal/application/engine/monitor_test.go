package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

func snap(ticket int64, volume float64) domain.DonorPosition {
	return domain.DonorPosition{
		Ticket: ticket, Symbol: "EURUSD", Direction: domain.Buy,
		Volume: volume, PriceOpen: 1.10000, OpenedAt: time.Now(), SourceID: "alpha",
	}
}

func TestMonitor_NewPositions(t *testing.T) {
	m := NewMonitor()

	delta := m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1), snap(2, 0.2)})
	require.Len(t, delta.New, 2)
	assert.Empty(t, delta.Closed)

	// the same snapshot again is quiet
	delta = m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1), snap(2, 0.2)})
	assert.Empty(t, delta.New)
	assert.Empty(t, delta.Closed)
}

func TestMonitor_ClosedCarriesLastSnapshot(t *testing.T) {
	m := NewMonitor()
	m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1)})

	delta := m.ObserveDonor(nil)
	require.Len(t, delta.Closed, 1)
	assert.Equal(t, int64(1), delta.Closed[0].Ticket)
	assert.Equal(t, "EURUSD", delta.Closed[0].Symbol)

	// a closed ticket is forgotten, not re-reported
	delta = m.ObserveDonor(nil)
	assert.Empty(t, delta.Closed)
}

func TestMonitor_VolumeChange(t *testing.T) {
	m := NewMonitor()
	m.ObserveDonor([]domain.DonorPosition{snap(1, 0.2)})

	delta := m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1)})
	require.Len(t, delta.VolumeChanges, 1)
	assert.Equal(t, int64(1), delta.VolumeChanges[0].Ticket)
	assert.InDelta(t, 0.2, delta.VolumeChanges[0].Old, 1e-9)
	assert.InDelta(t, 0.1, delta.VolumeChanges[0].New, 1e-9)

	// sub-epsilon jitter is ignored
	delta = m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1005)})
	assert.Empty(t, delta.VolumeChanges)
}

func TestMonitor_TrackSeedsSilently(t *testing.T) {
	m := NewMonitor()
	m.Track(snap(1, 0.1))

	delta := m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1)})
	assert.Empty(t, delta.New)
	assert.True(t, m.Tracked(1))
}

func TestMonitor_ForgetRefires(t *testing.T) {
	m := NewMonitor()
	m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1)})

	m.Forget(1)
	delta := m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1)})
	require.Len(t, delta.New, 1)
	assert.Equal(t, int64(1), delta.New[0].Ticket)
}

func csnap(ticket int64, volume float64) domain.ClientPosition {
	return domain.ClientPosition{
		Ticket: ticket, Symbol: "EURUSD", Direction: domain.Buy,
		Volume: volume, PriceOpen: 1.10010, OpenedAt: time.Now(), Magic: 777,
	}
}

func TestMonitor_ClientVolumeChange(t *testing.T) {
	m := NewMonitor()

	// first sight seeds without reporting
	changes := m.ObserveClient([]domain.ClientPosition{csnap(9, 0.2)})
	assert.Empty(t, changes)

	changes = m.ObserveClient([]domain.ClientPosition{csnap(9, 0.1)})
	require.Len(t, changes, 1)
	assert.Equal(t, int64(9), changes[0].Ticket)
	assert.InDelta(t, 0.2, changes[0].Old, 1e-9)
	assert.InDelta(t, 0.1, changes[0].New, 1e-9)

	// sub-epsilon jitter is ignored
	changes = m.ObserveClient([]domain.ClientPosition{csnap(9, 0.1005)})
	assert.Empty(t, changes)
}

func TestMonitor_ClientCloseForgotten(t *testing.T) {
	m := NewMonitor()
	m.ObserveClient([]domain.ClientPosition{csnap(9, 0.2)})

	// a vanished ticket is dropped, so a reused ticket seeds fresh
	changes := m.ObserveClient(nil)
	assert.Empty(t, changes)
	changes = m.ObserveClient([]domain.ClientPosition{csnap(9, 0.5)})
	assert.Empty(t, changes)
}

func TestMonitor_LastKnown(t *testing.T) {
	m := NewMonitor()
	m.ObserveDonor([]domain.DonorPosition{snap(1, 0.1)})

	p, ok := m.LastKnown(1)
	require.True(t, ok)
	assert.InDelta(t, 0.1, p.Volume, 1e-9)

	_, ok = m.LastKnown(2)
	assert.False(t, ok)
}
