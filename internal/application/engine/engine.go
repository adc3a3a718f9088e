// Package engine implements the reconciliation loop: observe donor and
// client state, diff, act, persist. All decisions run on one goroutine;
// concurrency lives behind the gateway and donor-source ports.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

const (
	defaultCheckInterval = 500 * time.Millisecond
	defaultSettleDelay   = 300 * time.Millisecond
	defaultDealWindow    = 60 // seconds of history searched for a fill
	lateMatchWindow      = 60 * time.Second
)

// CopyStyle selects how copies are opened and closed.
type CopyStyle string

const (
	StyleLimits CopyStyle = "by_limits" // pending limit orders, repriced per cycle
	StyleMarket CopyStyle = "by_market" // immediate market execution
)

// Config is the engine's trading policy.
type Config struct {
	Magic            int64
	CopyDonorMagic   bool
	Style            CopyStyle
	Lot              domain.LotConfig
	MaxRetries       int
	OffsetPoints     int
	OptimizeToMarket bool
	CopySLTP         bool
	CopyPending      bool
	CopyExisting     bool
	CheckInterval    time.Duration
	SettleDelay      time.Duration
	DealWindowSecs   int
}

func (c *Config) setDefaults() {
	if c.Style == "" {
		c.Style = StyleLimits
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.OffsetPoints <= 0 {
		c.OffsetPoints = 2
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.DealWindowSecs <= 0 {
		c.DealWindowSecs = defaultDealWindow
	}
}

// Engine drives the copier. Not safe for concurrent use; Run owns it.
type Engine struct {
	client   ports.ClientGateway
	donors   ports.DonorFeed
	store    ports.StateStore
	journal  ports.Journal // optional
	notifier ports.Notifier
	metrics  ports.Metrics
	cfg      Config

	sessionID string
	startedAt time.Time

	links   *domain.CorrespondenceMap
	monitor *Monitor
	symbols map[string]domain.SymbolInfo
	sources map[int64]string // donor ticket → source id, for reporting
	dirty   bool

	cycles   int64
	copies   int64
	closes   int64
	closeBys int64
	reprices int64
}

// New wires an engine. journal and notifier may be nil.
func New(client ports.ClientGateway, donors ports.DonorFeed, store ports.StateStore,
	journal ports.Journal, notifier ports.Notifier, metrics ports.Metrics, cfg Config) *Engine {
	cfg.setDefaults()
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Engine{
		client:    client,
		donors:    donors,
		store:     store,
		journal:   journal,
		notifier:  notifier,
		metrics:   metrics,
		cfg:       cfg,
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
		links:     domain.NewCorrespondenceMap(),
		monitor:   NewMonitor(),
		symbols:   make(map[string]domain.SymbolInfo),
		sources:   make(map[int64]string),
	}
}

// SessionID identifies this run in the journal.
func (e *Engine) SessionID() string { return e.sessionID }

// Links exposes the correspondence map for inspection in tests.
func (e *Engine) Links() *domain.CorrespondenceMap { return e.links }

// Run executes cycles until the context is cancelled, then persists state.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		report, err := e.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("engine: cycle failed", "cycle", e.cycles, "err", err)
		} else if e.notifier != nil {
			if nerr := e.notifier.Notify(ctx, report); nerr != nil {
				slog.Warn("engine: notifier error", "err", nerr)
			}
		}

		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
		}
	}
	e.shutdown()
	return nil
}

// shutdown persists state and closes the session summary. Gateways and
// donor sources are torn down by the caller that created them.
func (e *Engine) shutdown() {
	if err := e.store.Save(e.links); err != nil {
		slog.Error("engine: final state save failed", "err", err)
	}
	e.saveSummary(context.Background())
	slog.Info("engine: stopped", "cycles", e.cycles, "copies", e.copies, "closes", e.closes)
}

// RunOnce runs a single reconciliation cycle: aggregate donors → diff →
// open new copies → close vanished donors → mirror pendings → close-by
// checks → fill checks → reprice walk → persist on change.
func (e *Engine) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	start := time.Now()
	e.cycles++
	report := domain.CycleReport{Cycle: e.cycles, At: start}

	donorPositions := e.donors.AllPositions()
	report.DonorsOnline = e.donors.ConnectedCount()
	report.DonorPositions = len(donorPositions)
	e.metrics.SetDonorsConnected(report.DonorsOnline)

	for _, p := range donorPositions {
		e.sources[p.Ticket] = p.SourceID
	}

	delta := e.monitor.ObserveDonor(donorPositions)
	for _, vc := range delta.VolumeChanges {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("donor %d volume changed %.2f → %.2f (not mirrored)", vc.Ticket, vc.Old, vc.New))
	}

	if clientPositions, err := e.client.ListPositions(ctx); err != nil {
		slog.Warn("engine: client snapshot failed, skipping volume check", "err", err)
	} else {
		for _, vc := range e.monitor.ObserveClient(clientPositions) {
			slog.Warn("engine: client volume changed outside the copier", "client", vc.Ticket, "old", vc.Old, "new", vc.New)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("client %d volume changed %.2f → %.2f (external change)", vc.Ticket, vc.Old, vc.New))
		}
	}

	e.processNewPositions(ctx, delta.New, &report)
	e.processClosedPositions(ctx, donorPositions, delta.Closed, &report)

	if e.cfg.CopyPending {
		e.mirrorPendingOrders(ctx, e.donors.AllOrders(), donorPositions, &report)
	}

	e.checkCloseOrders(ctx, &report)
	e.checkOpenOrderFills(ctx, &report)
	e.walkPendingPrices(ctx, &report)

	e.buildLinkRows(donorPositions, &report)
	report.OpenInFlight = len(e.links.OpenOrders)
	report.CloseInFlight = len(e.links.CloseOrders)
	report.MirroredOrders = len(e.links.PendingOrders)
	e.metrics.SetLinkedPositions(len(e.links.Positions))

	if e.dirty {
		if err := e.store.Save(e.links); err != nil {
			slog.Error("engine: state save failed", "err", err)
		} else {
			e.dirty = false
		}
	}

	report.Duration = time.Since(start)
	e.metrics.ObserveCycle(report.Duration)
	return report, nil
}

// buildLinkRows renders the live links for the notifier, joining donor
// snapshots where still available.
func (e *Engine) buildLinkRows(donorPositions []domain.DonorPosition, report *domain.CycleReport) {
	byTicket := make(map[int64]domain.DonorPosition, len(donorPositions))
	for _, p := range donorPositions {
		byTicket[p.Ticket] = p
	}
	for donorTicket, link := range e.links.Positions {
		row := domain.LinkRow{
			SourceID:     e.sources[donorTicket],
			DonorTicket:  donorTicket,
			ClientTicket: link.ClientTicket,
			Symbol:       link.Symbol,
			Direction:    link.Direction,
			DonorPrice:   link.DonorPriceOpen,
			ClientPrice:  link.ClientPriceOpen,
		}
		if p, ok := byTicket[donorTicket]; ok {
			row.Volume = p.Volume
			row.Profit = p.Profit
		}
		report.Links = append(report.Links, row)
	}
}

// symbolInfo resolves and caches symbol metadata. An unavailable symbol
// lands in the negative cache and is never retried this session.
func (e *Engine) symbolInfo(ctx context.Context, symbol string) (domain.SymbolInfo, error) {
	if info, ok := e.symbols[symbol]; ok {
		return info, nil
	}
	info, err := e.client.SymbolCheck(ctx, symbol)
	if err != nil {
		if errors.Is(err, ports.ErrTimeout) {
			return domain.SymbolInfo{}, err
		}
		e.links.Skip(symbol)
		e.dirty = true
		e.journalEvent(ctx, domain.CopyEvent{Kind: domain.EventSymbolSkip, Symbol: symbol, Detail: err.Error()})
		slog.Warn("engine: symbol unavailable on client, skipping for session", "symbol", symbol, "err", err)
		return domain.SymbolInfo{}, err
	}
	e.symbols[symbol] = info
	return info, nil
}

// lotFor sizes one copied trade.
func (e *Engine) lotFor(ctx context.Context, donorVolume float64, sourceID string, info domain.SymbolInfo) (float64, error) {
	var donorBalance, clientBalance float64
	if e.cfg.Lot.Mode == domain.LotAutolot {
		b, ok := e.donors.Balance(sourceID)
		if !ok {
			return 0, fmt.Errorf("engine: no balance known for donor %s", sourceID)
		}
		donorBalance = b
		acct, err := e.client.AccountInfo(ctx)
		if err != nil {
			return 0, fmt.Errorf("engine: client balance: %w", err)
		}
		clientBalance = acct.Balance
	}
	return domain.CalculateLot(donorVolume, e.cfg.Lot, donorBalance, clientBalance, domain.VolumeConstraints{
		Min:  info.VolumeMin,
		Max:  info.VolumeMax,
		Step: info.VolumeStep,
	})
}

// magicFor picks the tag a copy of this donor position carries.
func (e *Engine) magicFor(p domain.DonorPosition) int64 {
	if e.cfg.CopyDonorMagic && p.Magic != nil {
		return *p.Magic
	}
	return e.cfg.Magic
}

// settle pauses briefly after a state-mutating broker action.
func (e *Engine) settle(ctx context.Context) {
	sleepCtx(ctx, e.cfg.SettleDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// journalEvent records an event, stamping ids. Journal failures must not
// block trading: log and move on.
func (e *Engine) journalEvent(ctx context.Context, ev domain.CopyEvent) {
	if e.journal == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.SessionID = e.sessionID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := e.journal.RecordEvent(ctx, ev); err != nil {
		slog.Warn("engine: journal write failed", "kind", ev.Kind, "err", err)
	}
}

func (e *Engine) saveSummary(ctx context.Context) {
	if e.journal == nil {
		return
	}
	err := e.journal.SaveSessionSummary(ctx, domain.SessionSummary{
		SessionID:  e.sessionID,
		StartedAt:  e.startedAt,
		FinishedAt: time.Now(),
		Cycles:     e.cycles,
		Copies:     e.copies,
		Closes:     e.closes,
		CloseBys:   e.closeBys,
		Reprices:   e.reprices,
	})
	if err != nil {
		slog.Warn("engine: session summary write failed", "err", err)
	}
}
