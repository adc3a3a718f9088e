package donor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

const defaultDialTimeout = 5 * time.Second

// SocketSource consumes the snapshot stream an MT4 or MT5 terminal agent
// pushes over TCP. A background listener parses frames and keeps only the
// most recent snapshot; Positions and Orders never block on the wire.
type SocketSource struct {
	id      string
	account int64
	addr    string
	label   string // platform label for logs, "MT4" or "MT5"

	dialTimeout time.Duration

	mu        sync.RWMutex
	positions []domain.DonorPosition
	orders    []domain.DonorPendingOrder
	balance   float64
	login     int64
	lastFrame time.Time

	conn      net.Conn
	connected atomic.Bool
	done      chan struct{}
}

// NewSocketMT4 builds a source for an MT4 agent.
func NewSocketMT4(id string, account int64, host string, port int) *SocketSource {
	return newSocket(id, account, host, port, "MT4")
}

// NewSocketMT5 builds a source for an MT5 agent. Same wire format as MT4.
func NewSocketMT5(id string, account int64, host string, port int) *SocketSource {
	return newSocket(id, account, host, port, "MT5")
}

func newSocket(id string, account int64, host string, port int, label string) *SocketSource {
	if host == "" {
		host = "localhost"
	}
	return &SocketSource{
		id:          id,
		account:     account,
		addr:        net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		label:       label,
		dialTimeout: defaultDialTimeout,
	}
}

// ID returns the configured donor id.
func (s *SocketSource) ID() string { return s.id }

// AccountNumber returns the donor account this source mirrors.
func (s *SocketSource) AccountNumber() int64 { return s.account }

// Connected reports whether the listener is alive.
func (s *SocketSource) Connected() bool { return s.connected.Load() }

// Connect dials the agent and starts the listener.
func (s *SocketSource) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("donor %s: connect %s agent at %s: %w", s.id, s.label, s.addr, err)
	}
	s.conn = conn
	s.done = make(chan struct{})
	s.connected.Store(true)
	go s.listen(conn)
	slog.Info("donor: connected", "source", s.id, "platform", s.label, "addr", s.addr)
	return nil
}

// listen reads frames until the connection drops.
func (s *SocketSource) listen(conn net.Conn) {
	defer func() {
		s.connected.Store(false)
		conn.Close()
		close(s.done)
		slog.Info("donor: disconnected", "source", s.id, "platform", s.label)
	}()

	for {
		payload, err := readFrame(conn)
		if err != nil {
			if s.connected.Load() {
				slog.Error("donor: read failed", "source", s.id, "err", err)
			}
			return
		}
		positions, orders, account, err := decodeFrame(payload, s.id)
		if err != nil {
			slog.Error("donor: bad frame", "source", s.id, "err", err)
			continue
		}

		s.mu.Lock()
		s.positions = positions
		s.orders = orders
		s.balance = account.Balance
		s.login = account.Login
		s.lastFrame = time.Now()
		s.mu.Unlock()
	}
}

// Disconnect tears the connection down and waits for the listener.
func (s *SocketSource) Disconnect() error {
	if !s.connected.Swap(false) {
		return nil
	}
	if s.conn != nil {
		s.conn.Close()
	}
	if s.done != nil {
		<-s.done
	}
	return nil
}

// Positions returns a copy of the latest snapshot.
func (s *SocketSource) Positions() ([]domain.DonorPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DonorPosition, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

// Orders returns a copy of the latest pending-order snapshot.
func (s *SocketSource) Orders() ([]domain.DonorPendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DonorPendingOrder, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

// AccountInfo returns the last account details seen on the stream.
func (s *SocketSource) AccountInfo() (domain.AccountInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	login := s.login
	if login == 0 {
		login = s.account
	}
	return domain.AccountInfo{
		Login:   login,
		Balance: s.balance,
		Server:  s.label + " socket",
	}, nil
}

// SnapshotAge is how long ago the last frame arrived; zero when none has.
func (s *SocketSource) SnapshotAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastFrame.IsZero() {
		return 0
	}
	return time.Since(s.lastFrame)
}

var _ ports.DonorSource = (*SocketSource)(nil)
