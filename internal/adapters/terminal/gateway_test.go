package terminal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradecopier/internal/adapters/terminal"
	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// fakeSession scripts the raw broker surface. It tracks the order of calls
// so tests can assert the worker serializes them.
type fakeSession struct {
	positions []domain.ClientPosition
	orders    []domain.ClientPendingOrder
	account   domain.AccountInfo
	ticks     map[string]domain.Tick
	symbols   map[string]domain.SymbolInfo

	sent      []domain.TradeRequest
	calls     []string
	slow      time.Duration
	closed    bool
	selectErr error
}

func (s *fakeSession) stall() {
	if s.slow > 0 {
		time.Sleep(s.slow)
	}
}

func (s *fakeSession) Positions() ([]domain.ClientPosition, error) {
	s.calls = append(s.calls, "positions")
	s.stall()
	return append([]domain.ClientPosition(nil), s.positions...), nil
}

func (s *fakeSession) PositionsBySymbol(symbol string) ([]domain.ClientPosition, error) {
	var out []domain.ClientPosition
	for _, p := range s.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeSession) PositionByTicket(ticket int64) (domain.ClientPosition, error) {
	for _, p := range s.positions {
		if p.Ticket == ticket {
			return p, nil
		}
	}
	return domain.ClientPosition{}, ports.ErrNotFound
}

func (s *fakeSession) Orders() ([]domain.ClientPendingOrder, error) {
	return append([]domain.ClientPendingOrder(nil), s.orders...), nil
}

func (s *fakeSession) OrderByTicket(ticket int64) (domain.ClientPendingOrder, error) {
	for _, o := range s.orders {
		if o.Ticket == ticket {
			return o, nil
		}
	}
	return domain.ClientPendingOrder{}, ports.ErrNotFound
}

func (s *fakeSession) DealByOrder(orderTicket int64, from, to time.Time) (domain.Deal, error) {
	return domain.Deal{}, ports.ErrNotFound
}

func (s *fakeSession) OrderSend(req domain.TradeRequest) (domain.SubmitResult, error) {
	s.calls = append(s.calls, "send")
	s.stall()
	s.sent = append(s.sent, req)
	return domain.SubmitResult{RetCode: domain.RetPlaced, Order: int64(600 + len(s.sent))}, nil
}

func (s *fakeSession) SymbolSelect(symbol string) error {
	s.calls = append(s.calls, "select:"+symbol)
	return s.selectErr
}

func (s *fakeSession) SymbolInfo(symbol string) (domain.SymbolInfo, error) {
	s.calls = append(s.calls, "info:"+symbol)
	info, ok := s.symbols[symbol]
	if !ok {
		return domain.SymbolInfo{}, ports.ErrSymbolUnavailable
	}
	return info, nil
}

func (s *fakeSession) Tick(symbol string) (domain.Tick, error) {
	s.calls = append(s.calls, "tick:"+symbol)
	tick, ok := s.ticks[symbol]
	if !ok {
		return domain.Tick{}, ports.ErrSymbolUnavailable
	}
	return tick, nil
}

func (s *fakeSession) AccountInfo() (domain.AccountInfo, error) {
	return s.account, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func clientPos(ticket, magic int64, symbol string) domain.ClientPosition {
	return domain.ClientPosition{
		Ticket: ticket, Symbol: symbol, Direction: domain.Buy,
		Volume: 0.01, PriceOpen: 1.10000, OpenedAt: time.Now(), Magic: magic,
	}
}

func TestGateway_MagicFilter(t *testing.T) {
	session := &fakeSession{positions: []domain.ClientPosition{
		clientPos(1, 777, "EURUSD"),
		clientPos(2, 999, "EURUSD"),
		clientPos(3, 777, "GBPUSD"),
	}}
	magic := int64(777)
	g := terminal.NewGateway(session, terminal.Options{Magic: &magic, Label: "test"})
	defer g.Close()

	positions, err := g.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	for _, p := range positions {
		assert.Equal(t, int64(777), p.Magic)
	}

	bySymbol, err := g.PositionsBySymbol(context.Background(), "EURUSD")
	require.NoError(t, err)
	require.Len(t, bySymbol, 1)
	assert.Equal(t, int64(1), bySymbol[0].Ticket)

	// a foreign-magic position exists but is invisible by ticket too
	_, err = g.PositionByTicket(context.Background(), 2)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestGateway_NilMagicSeesEverything(t *testing.T) {
	session := &fakeSession{positions: []domain.ClientPosition{
		clientPos(1, 777, "EURUSD"),
		clientPos(2, 999, "EURUSD"),
	}}
	g := terminal.NewGateway(session, terminal.Options{Label: "test"})
	defer g.Close()

	positions, err := g.ListPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, positions, 2)
}

func TestGateway_ReadTimeoutIsUnknownOutcome(t *testing.T) {
	session := &fakeSession{slow: 200 * time.Millisecond}
	g := terminal.NewGateway(session, terminal.Options{
		Label:       "test",
		ReadTimeout: 20 * time.Millisecond,
	})
	defer g.Close()

	_, err := g.ListPositions(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	assert.True(t, terminal.IsUnknownOutcome(err))
}

func TestGateway_SymbolCheckSequence(t *testing.T) {
	session := &fakeSession{
		symbols: map[string]domain.SymbolInfo{
			"EURUSD": {Name: "EURUSD", Digits: 5, Point: 0.00001, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01},
		},
		ticks: map[string]domain.Tick{
			"EURUSD": {Bid: 1.10020, Ask: 1.10025, Time: time.Now()},
		},
	}
	g := terminal.NewGateway(session, terminal.Options{Label: "test"})
	defer g.Close()

	info, err := g.SymbolCheck(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 5, info.Digits)
	assert.Equal(t, []string{"select:EURUSD", "info:EURUSD", "tick:EURUSD"}, session.calls)
}

func TestGateway_SymbolCheckUnknownSymbol(t *testing.T) {
	session := &fakeSession{selectErr: errors.New("no such symbol")}
	g := terminal.NewGateway(session, terminal.Options{Label: "test"})
	defer g.Close()

	_, err := g.SymbolCheck(context.Background(), "XAUUSD")
	assert.ErrorIs(t, err, ports.ErrSymbolUnavailable)
}

func TestGateway_SubmitSerialized(t *testing.T) {
	session := &fakeSession{}
	g := terminal.NewGateway(session, terminal.Options{Label: "test", SubmitRate: 1000, SubmitBurst: 10})
	defer g.Close()

	for i := 0; i < 3; i++ {
		res, err := g.Submit(context.Background(), domain.TradeRequest{
			Action: domain.ActionPending, Symbol: "EURUSD",
			Kind: domain.BuyLimit, Volume: 0.01, Price: 1.10000, Magic: 777,
		})
		require.NoError(t, err)
		assert.True(t, res.Accepted())
	}
	require.Len(t, session.sent, 3)
}

func TestGateway_VerifyTrading(t *testing.T) {
	ok := &fakeSession{account: domain.AccountInfo{Login: 5001, TradeAllowed: true, TradeExpert: true}}
	g := terminal.NewGateway(ok, terminal.Options{Label: "test"})
	info, err := g.VerifyTrading(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5001), info.Login)
	g.Close()

	refused := &fakeSession{account: domain.AccountInfo{Login: 5002, TradeAllowed: true, TradeExpert: false}}
	g = terminal.NewGateway(refused, terminal.Options{Label: "test"})
	_, err = g.VerifyTrading(context.Background())
	assert.Error(t, err)
	g.Close()
}

func TestGateway_CloseShutsSession(t *testing.T) {
	session := &fakeSession{}
	g := terminal.NewGateway(session, terminal.Options{Label: "test"})
	require.NoError(t, g.Close())
	assert.True(t, session.closed)

	_, err := g.ListPositions(context.Background())
	assert.ErrorIs(t, err, ports.ErrGatewayClosed)
}

func TestDriverRegistry(t *testing.T) {
	_, err := terminal.Open("no-such-driver", terminal.SessionConfig{})
	assert.Error(t, err)
}
