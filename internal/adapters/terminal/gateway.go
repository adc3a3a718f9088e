package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

const (
	defaultReadTimeout   = 5 * time.Second
	defaultSubmitTimeout = 10 * time.Second
	defaultSubmitRate    = rate.Limit(4) // submissions per second
	defaultSubmitBurst   = 2
)

// Options configures a gateway worker.
type Options struct {
	// Magic filters visible positions to orders carrying this tag. Nil
	// disables filtering (needed when copying donor magics, where mirrors
	// carry arbitrary tags).
	Magic *int64
	// Label names the gateway in logs, e.g. "client" or a donor id.
	Label         string
	ReadTimeout   time.Duration
	SubmitTimeout time.Duration
	SubmitRate    rate.Limit
	SubmitBurst   int
}

// Gateway owns one broker session and serves requests over a command
// channel, one at a time in FIFO order. It implements ports.ClientGateway;
// the read-only methods also satisfy ports.DonorGateway.
type Gateway struct {
	session ports.TerminalSession
	magic   *int64
	label   string

	cmds    chan func()
	closed  chan struct{}
	stopped chan struct{}

	limiter       *rate.Limiter
	readTimeout   time.Duration
	submitTimeout time.Duration
}

// NewGateway wraps a session in a worker and starts it.
func NewGateway(session ports.TerminalSession, opts Options) *Gateway {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.SubmitRate <= 0 {
		opts.SubmitRate = defaultSubmitRate
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = defaultSubmitBurst
	}
	if opts.Label == "" {
		opts.Label = "terminal"
	}

	g := &Gateway{
		session:       session,
		magic:         opts.Magic,
		label:         opts.Label,
		cmds:          make(chan func()),
		closed:        make(chan struct{}),
		stopped:       make(chan struct{}),
		limiter:       rate.NewLimiter(opts.SubmitRate, opts.SubmitBurst),
		readTimeout:   opts.ReadTimeout,
		submitTimeout: opts.SubmitTimeout,
	}
	go g.work()
	return g
}

// work drains the command channel until Close. The session is touched by
// this goroutine only.
func (g *Gateway) work() {
	defer close(g.stopped)
	for {
		select {
		case fn := <-g.cmds:
			fn()
		case <-g.closed:
			if err := g.session.Close(); err != nil {
				slog.Warn("gateway: session close failed", "gateway", g.label, "err", err)
			}
			return
		}
	}
}

// do runs fn on the worker and waits for it with a deadline. A deadline
// miss leaves fn queued or running; the result of a timed-out command is
// deliberately dropped, the caller treats the outcome as unknown.
func (g *Gateway) do(ctx context.Context, timeout time.Duration, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}

	select {
	case g.cmds <- wrapped:
	case <-g.closed:
		return ports.ErrGatewayClosed
	case <-ctx.Done():
		return fmt.Errorf("gateway %s: enqueue: %w", g.label, ports.ErrTimeout)
	}

	select {
	case <-done:
		return nil
	case <-g.closed:
		return ports.ErrGatewayClosed
	case <-ctx.Done():
		return fmt.Errorf("gateway %s: await: %w", g.label, ports.ErrTimeout)
	}
}

// Close stops the worker and closes the underlying session.
func (g *Gateway) Close() error {
	select {
	case <-g.closed:
	default:
		close(g.closed)
	}
	<-g.stopped
	return nil
}

// matchesMagic applies the gateway's visibility filter.
func (g *Gateway) matchesMagic(magic int64) bool {
	return g.magic == nil || magic == *g.magic
}

// ListPositions returns the account's open positions, magic-filtered.
func (g *Gateway) ListPositions(ctx context.Context) ([]domain.ClientPosition, error) {
	var (
		positions []domain.ClientPosition
		err       error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		positions, err = g.session.Positions()
	}); derr != nil {
		return nil, derr
	}
	if err != nil {
		return nil, fmt.Errorf("gateway %s: list positions: %w", g.label, err)
	}
	filtered := positions[:0]
	for _, p := range positions {
		if g.matchesMagic(p.Magic) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// PositionByTicket returns one position; ports.ErrNotFound when absent or
// hidden by the magic filter.
func (g *Gateway) PositionByTicket(ctx context.Context, ticket int64) (domain.ClientPosition, error) {
	var (
		pos domain.ClientPosition
		err error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		pos, err = g.session.PositionByTicket(ticket)
	}); derr != nil {
		return domain.ClientPosition{}, derr
	}
	if err != nil {
		return domain.ClientPosition{}, err
	}
	if !g.matchesMagic(pos.Magic) {
		return domain.ClientPosition{}, ports.ErrNotFound
	}
	return pos, nil
}

// PositionsBySymbol returns the magic-visible positions on a symbol.
func (g *Gateway) PositionsBySymbol(ctx context.Context, symbol string) ([]domain.ClientPosition, error) {
	var (
		positions []domain.ClientPosition
		err       error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		positions, err = g.session.PositionsBySymbol(symbol)
	}); derr != nil {
		return nil, derr
	}
	if err != nil {
		return nil, fmt.Errorf("gateway %s: positions by symbol: %w", g.label, err)
	}
	filtered := positions[:0]
	for _, p := range positions {
		if g.matchesMagic(p.Magic) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// ListOrders returns the account's live pending orders.
func (g *Gateway) ListOrders(ctx context.Context) ([]domain.ClientPendingOrder, error) {
	var (
		orders []domain.ClientPendingOrder
		err    error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		orders, err = g.session.Orders()
	}); derr != nil {
		return nil, derr
	}
	if err != nil {
		return nil, fmt.Errorf("gateway %s: list orders: %w", g.label, err)
	}
	return orders, nil
}

// OrderByTicket returns one pending order, or ports.ErrNotFound.
func (g *Gateway) OrderByTicket(ctx context.Context, ticket int64) (domain.ClientPendingOrder, error) {
	var (
		order domain.ClientPendingOrder
		err   error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		order, err = g.session.OrderByTicket(ticket)
	}); derr != nil {
		return domain.ClientPendingOrder{}, derr
	}
	return order, err
}

// DealByOrder searches recent deal history for the fill of an order.
func (g *Gateway) DealByOrder(ctx context.Context, orderTicket int64, windowSeconds int) (domain.Deal, error) {
	var (
		deal domain.Deal
		err  error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		now := time.Now()
		deal, err = g.session.DealByOrder(orderTicket, now.Add(-time.Duration(windowSeconds)*time.Second), now)
	}); derr != nil {
		return domain.Deal{}, derr
	}
	return deal, err
}

// Submit sends a trade request. Submissions pass through a rate limiter and
// run under the longer submission deadline.
func (g *Gateway) Submit(ctx context.Context, req domain.TradeRequest) (domain.SubmitResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("gateway %s: rate limit: %w", g.label, err)
	}
	var (
		res domain.SubmitResult
		err error
	)
	if derr := g.do(ctx, g.submitTimeout, func() {
		res, err = g.session.OrderSend(req)
	}); derr != nil {
		return domain.SubmitResult{}, derr
	}
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("gateway %s: submit %s: %w", g.label, req.Action, err)
	}
	return res, nil
}

// Tick returns the latest quote for a symbol.
func (g *Gateway) Tick(ctx context.Context, symbol string) (domain.Tick, error) {
	var (
		tick domain.Tick
		err  error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		tick, err = g.session.Tick(symbol)
	}); derr != nil {
		return domain.Tick{}, derr
	}
	if err != nil {
		return domain.Tick{}, fmt.Errorf("gateway %s: tick %s: %w", g.label, symbol, err)
	}
	return tick, nil
}

// SymbolCheck activates a symbol on the terminal and confirms it is
// quotable: select, then metadata, then a tick. Any failure reports the
// symbol unavailable so the engine can put it in the negative cache.
func (g *Gateway) SymbolCheck(ctx context.Context, symbol string) (domain.SymbolInfo, error) {
	var (
		info domain.SymbolInfo
		err  error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		// Select first even if already watched; it activates the symbol
		// for the terminal API.
		if serr := g.session.SymbolSelect(symbol); serr != nil {
			err = serr
			return
		}
		info, err = g.session.SymbolInfo(symbol)
		if err != nil {
			return
		}
		_, err = g.session.Tick(symbol)
	}); derr != nil {
		return domain.SymbolInfo{}, derr
	}
	if err != nil {
		return domain.SymbolInfo{}, fmt.Errorf("gateway %s: symbol %s: %w: %s", g.label, symbol, ports.ErrSymbolUnavailable, err)
	}
	return info, nil
}

// AccountInfo returns the account's details.
func (g *Gateway) AccountInfo(ctx context.Context) (domain.AccountInfo, error) {
	var (
		info domain.AccountInfo
		err  error
	)
	if derr := g.do(ctx, g.readTimeout, func() {
		info, err = g.session.AccountInfo()
	}); derr != nil {
		return domain.AccountInfo{}, derr
	}
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("gateway %s: account info: %w", g.label, err)
	}
	return info, nil
}

// VerifyTrading confirms the logged-in account permits automated trading.
// Called once at startup; refusal is fatal.
func (g *Gateway) VerifyTrading(ctx context.Context) (domain.AccountInfo, error) {
	info, err := g.AccountInfo(ctx)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	if !info.TradeAllowed || !info.TradeExpert {
		return domain.AccountInfo{}, fmt.Errorf("gateway %s: trading forbidden on account %d (trade_allowed=%t trade_expert=%t)",
			g.label, info.Login, info.TradeAllowed, info.TradeExpert)
	}
	return info, nil
}

var _ ports.ClientGateway = (*Gateway)(nil)
var _ ports.DonorGateway = (*Gateway)(nil)

// IsUnknownOutcome reports whether an error means the operation may or may
// not have reached the broker.
func IsUnknownOutcome(err error) bool {
	return errors.Is(err, ports.ErrTimeout)
}
