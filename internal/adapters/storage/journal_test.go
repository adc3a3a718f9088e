package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradecopier/internal/adapters/storage"
	"github.com/alejandrodnm/tradecopier/internal/domain"
)

func newTestJournal(t *testing.T) *storage.SQLiteJournal {
	t.Helper()
	j, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSQLiteJournal_RecordAndReadBack(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	session := uuid.NewString()

	first := domain.CopyEvent{
		ID:           uuid.NewString(),
		SessionID:    session,
		At:           time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Kind:         domain.EventOpenPlaced,
		Symbol:       "EURUSD",
		SourceID:     "alpha",
		DonorTicket:  111,
		ClientTicket: 601,
		Volume:       0.01,
		Price:        1.10000,
	}
	second := domain.CopyEvent{
		ID:           uuid.NewString(),
		SessionID:    session,
		At:           first.At.Add(time.Second),
		Kind:         domain.EventOpenFilled,
		Symbol:       "EURUSD",
		SourceID:     "alpha",
		DonorTicket:  111,
		ClientTicket: 501,
		Volume:       0.01,
		Price:        1.10000,
		Detail:       "filled after 1 cycle",
	}
	require.NoError(t, j.RecordEvent(ctx, first))
	require.NoError(t, j.RecordEvent(ctx, second))

	// Un evento de otra sesión no debe colarse en la consulta.
	require.NoError(t, j.RecordEvent(ctx, domain.CopyEvent{
		ID: uuid.NewString(), SessionID: uuid.NewString(),
		At: first.At, Kind: domain.EventReprice, Symbol: "GBPUSD",
	}))

	events, err := j.EventsBySession(ctx, session)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventOpenPlaced, events[0].Kind)
	assert.Equal(t, domain.EventOpenFilled, events[1].Kind)
	assert.Equal(t, "filled after 1 cycle", events[1].Detail)
	assert.Equal(t, int64(111), events[0].DonorTicket)
}

func TestSQLiteJournal_EmptySession(t *testing.T) {
	j := newTestJournal(t)
	events, err := j.EventsBySession(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteJournal_SessionSummaryUpsert(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	summary := domain.SessionSummary{
		SessionID: uuid.NewString(),
		StartedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Cycles:    10,
		Copies:    2,
	}
	require.NoError(t, j.SaveSessionSummary(ctx, summary))

	// Guardar de nuevo con totales actualizados reemplaza la fila en vez de
	// fallar por la clave primaria.
	summary.FinishedAt = summary.StartedAt.Add(time.Minute)
	summary.Cycles = 120
	summary.Closes = 2
	summary.CloseBys = 1
	require.NoError(t, j.SaveSessionSummary(ctx, summary))
	require.NoError(t, j.SaveSessionSummary(ctx, summary))
}

func TestSQLiteJournal_DuplicateEventIDRejected(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	ev := domain.CopyEvent{
		ID: "fixed-id", SessionID: "s", At: time.Now(),
		Kind: domain.EventMarketOpen, Symbol: "EURUSD",
	}
	require.NoError(t, j.RecordEvent(ctx, ev))
	assert.Error(t, j.RecordEvent(ctx, ev))
}
