package donor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// TerminalSource reads a donor account through an in-process broker
// gateway. Queries are synchronous round-trips under the gateway's read
// timeout. Pending orders are not tracked on this transport; the socket
// agents exist for that.
type TerminalSource struct {
	id        string
	account   int64
	gw        ports.DonorGateway
	connected bool
	balance   float64
}

// NewTerminalSource builds a source over an already-opened donor gateway.
func NewTerminalSource(id string, account int64, gw ports.DonorGateway) *TerminalSource {
	return &TerminalSource{id: id, account: account, gw: gw}
}

// ID returns the configured donor id.
func (s *TerminalSource) ID() string { return s.id }

// AccountNumber returns the donor account this source mirrors.
func (s *TerminalSource) AccountNumber() int64 { return s.account }

// Connected reports whether the source confirmed its account.
func (s *TerminalSource) Connected() bool { return s.connected }

// Connect confirms the gateway is logged into the expected account.
func (s *TerminalSource) Connect(ctx context.Context) error {
	info, err := s.gw.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("donor %s: account info: %w", s.id, err)
	}
	if s.account != 0 && info.Login != s.account {
		return fmt.Errorf("donor %s: terminal is logged into %d, expected %d", s.id, info.Login, s.account)
	}
	s.balance = info.Balance
	s.connected = true
	slog.Info("donor: connected", "source", s.id, "platform", "terminal", "account", info.Login, "balance", info.Balance)
	return nil
}

// Disconnect closes the underlying gateway.
func (s *TerminalSource) Disconnect() error {
	s.connected = false
	return s.gw.Close()
}

// Positions does a gateway round-trip and re-tags the result as donor
// positions.
func (s *TerminalSource) Positions() ([]domain.DonorPosition, error) {
	if !s.connected {
		return nil, nil
	}
	raw, err := s.gw.ListPositions(context.Background())
	if err != nil {
		return nil, fmt.Errorf("donor %s: positions: %w", s.id, err)
	}
	out := make([]domain.DonorPosition, 0, len(raw))
	for _, p := range raw {
		magic := p.Magic
		out = append(out, domain.DonorPosition{
			Ticket:       p.Ticket,
			Symbol:       p.Symbol,
			Direction:    p.Direction,
			Volume:       p.Volume,
			PriceOpen:    p.PriceOpen,
			PriceCurrent: p.PriceCurrent,
			Profit:       p.Profit,
			OpenedAt:     p.OpenedAt,
			SourceID:     s.id,
			Magic:        &magic,
			Comment:      p.Comment,
		})
	}
	return out, nil
}

// Orders always returns nothing on the terminal transport.
func (s *TerminalSource) Orders() ([]domain.DonorPendingOrder, error) {
	return nil, nil
}

// AccountInfo returns fresh account details and refreshes the cached
// balance used by autolot sizing.
func (s *TerminalSource) AccountInfo() (domain.AccountInfo, error) {
	if !s.connected {
		return domain.AccountInfo{Login: s.account, Balance: s.balance}, nil
	}
	info, err := s.gw.AccountInfo(context.Background())
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("donor %s: account info: %w", s.id, err)
	}
	s.balance = info.Balance
	return info, nil
}

var _ ports.DonorSource = (*TerminalSource)(nil)
