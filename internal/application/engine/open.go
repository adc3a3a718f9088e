package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// processNewPositions opens a copy for every donor position appearing for
// the first time.
func (e *Engine) processNewPositions(ctx context.Context, fresh []domain.DonorPosition, report *domain.CycleReport) {
	for _, p := range fresh {
		if e.links.Skipped(p.Symbol) {
			continue
		}
		if e.links.DonorBusy(p.Ticket) {
			// already linked or in flight, e.g. restored from state
			continue
		}
		if _, ok := e.links.PendingOrders[p.Ticket]; ok {
			// a mirrored pending order filled donor-side; adoption runs in
			// the pending-order pass
			continue
		}

		info, err := e.symbolInfo(ctx, p.Symbol)
		if err != nil {
			if errors.Is(err, ports.ErrTimeout) {
				e.monitor.Forget(p.Ticket)
			}
			continue
		}

		lot, err := e.lotFor(ctx, p.Volume, p.SourceID, info)
		if err != nil {
			slog.Warn("engine: cannot size copy", "donor", p.Ticket, "symbol", p.Symbol, "err", err)
			report.Warnings = append(report.Warnings, fmt.Sprintf("donor %d: lot sizing failed", p.Ticket))
			e.monitor.Forget(p.Ticket)
			continue
		}

		switch e.cfg.Style {
		case StyleMarket:
			e.openByMarket(ctx, p, lot, info, report)
		default:
			e.openByLimit(ctx, p, lot, info, report)
		}
	}
}

// openByMarket copies a donor position with an immediate market order, then
// adopts the resulting client position.
func (e *Engine) openByMarket(ctx context.Context, p domain.DonorPosition, lot float64, info domain.SymbolInfo, report *domain.CycleReport) {
	tick, err := e.client.Tick(ctx, p.Symbol)
	if err != nil {
		slog.Warn("engine: no tick for market open", "symbol", p.Symbol, "err", err)
		e.monitor.Forget(p.Ticket)
		return
	}
	price := tick.Ask
	if p.Direction == domain.Sell {
		price = tick.Bid
	}

	req := domain.TradeRequest{
		Action:    domain.ActionDeal,
		Symbol:    p.Symbol,
		Direction: p.Direction,
		Volume:    lot,
		Price:     price,
		Magic:     e.magicFor(p),
	}
	if e.cfg.CopySLTP {
		req.SL, req.TP = p.SL, p.TP
	}

	res, err := e.client.Submit(ctx, req)
	if err != nil {
		if errors.Is(err, ports.ErrTimeout) {
			// unknown outcome: forget the ticket so the copy is retried
			// only after the next snapshot confirms the donor position
			e.monitor.Forget(p.Ticket)
			return
		}
		slog.Error("engine: market open failed", "donor", p.Ticket, "err", err)
		e.monitor.Forget(p.Ticket)
		return
	}
	e.metrics.IncSubmission(domain.ActionDeal.String(), res.Accepted())
	if !res.Accepted() {
		slog.Warn("engine: market open rejected", "donor", p.Ticket, "retcode", res.RetCode, "comment", res.Comment)
		e.monitor.Forget(p.Ticket)
		return
	}

	e.settle(ctx)

	client, ok := e.findFreshClientPosition(ctx, p.Symbol, p.Direction)
	if !ok {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("donor %d: market order accepted but position not visible yet", p.Ticket))
		e.monitor.Forget(p.Ticket)
		return
	}

	e.linkPositions(p, client)
	report.NewCopies++
	e.copies++
	e.journalEvent(ctx, domain.CopyEvent{
		Kind: domain.EventMarketOpen, Symbol: p.Symbol, SourceID: p.SourceID,
		DonorTicket: p.Ticket, ClientTicket: client.Ticket, Volume: lot, Price: client.PriceOpen,
	})
	slog.Info("engine: copied by market", "donor", p.Ticket, "client", client.Ticket, "symbol", p.Symbol, "lot", lot)
}

// findFreshClientPosition picks the newest unlinked client position on a
// symbol and side, used to adopt a just-executed market order.
func (e *Engine) findFreshClientPosition(ctx context.Context, symbol string, dir domain.Direction) (domain.ClientPosition, bool) {
	positions, err := e.client.ListPositions(ctx)
	if err != nil {
		return domain.ClientPosition{}, false
	}
	var best domain.ClientPosition
	found := false
	for _, c := range positions {
		if c.Symbol != symbol || c.Direction != dir || e.links.ClientTicketLinked(c.Ticket) {
			continue
		}
		if !found || c.OpenedAt.After(best.OpenedAt) {
			best = c
			found = true
		}
	}
	return best, found
}

// openByLimit copies a donor position with a pending limit order placed at
// a price no worse than the donor's fill. The fill completes on a later
// cycle.
func (e *Engine) openByLimit(ctx context.Context, p domain.DonorPosition, lot float64, info domain.SymbolInfo, report *domain.CycleReport) {
	kind := domain.LimitKindFor(p.Direction)

	var sl, tp float64
	if e.cfg.CopySLTP {
		sl, tp = p.SL, p.TP
	}

	orderTicket, price, err := e.placeLimitWithRetry(ctx, p.Symbol, kind, lot, p.PriceOpen, e.magicFor(p), sl, tp, info)
	if err != nil {
		if errors.Is(err, ports.ErrTimeout) {
			e.monitor.Forget(p.Ticket)
			return
		}
		slog.Warn("engine: limit open failed", "donor", p.Ticket, "symbol", p.Symbol, "err", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("donor %d: %v", p.Ticket, err))
		e.monitor.Forget(p.Ticket)
		return
	}

	e.links.OpenOrders[orderTicket] = domain.OpenOrderLink{
		DonorTicket:   p.Ticket,
		Symbol:        p.Symbol,
		Kind:          kind,
		OriginalPrice: p.PriceOpen,
	}
	e.dirty = true
	report.NewCopies++
	e.copies++
	e.journalEvent(ctx, domain.CopyEvent{
		Kind: domain.EventOpenPlaced, Symbol: p.Symbol, SourceID: p.SourceID,
		DonorTicket: p.Ticket, ClientTicket: orderTicket, Volume: lot, Price: price,
	})
	slog.Info("engine: limit placed", "donor", p.Ticket, "order", orderTicket, "kind", kind, "price", price, "lot", lot)
}

// placeLimitWithRetry submits a limit order, widening the safety offset one
// point per transient failure. The dominance rule is re-checked on every
// attempt; a gateway timeout aborts immediately because the outcome is
// unknown.
func (e *Engine) placeLimitWithRetry(ctx context.Context, symbol string, kind domain.OrderKind,
	volume, originalPrice float64, magic int64, sl, tp float64, info domain.SymbolInfo) (int64, float64, error) {

	point := domain.PointSize(info.Digits)

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		tick, err := e.client.Tick(ctx, symbol)
		if err != nil {
			if errors.Is(err, ports.ErrTimeout) {
				return 0, 0, err
			}
			continue
		}

		offset := float64(e.cfg.OffsetPoints+attempt) * point
		price := domain.LimitPrice(kind, tick.Ref(kind), originalPrice, offset, info.Digits)
		if !domain.Dominance(price, originalPrice, kind, point) {
			continue
		}

		res, err := e.client.Submit(ctx, domain.TradeRequest{
			Action: domain.ActionPending,
			Symbol: symbol,
			Kind:   kind,
			Volume: volume,
			Price:  price,
			SL:     sl,
			TP:     tp,
			Magic:  magic,
		})
		if err != nil {
			if errors.Is(err, ports.ErrTimeout) {
				return 0, 0, err
			}
			slog.Debug("engine: placement attempt failed", "symbol", symbol, "attempt", attempt, "err", err)
			continue
		}
		e.metrics.IncSubmission(domain.ActionPending.String(), res.Accepted())
		if res.Accepted() {
			return res.Order, price, nil
		}
		if res.Retryable() {
			continue
		}
		return 0, 0, fmt.Errorf("broker refused limit order: retcode %d %s", res.RetCode, res.Comment)
	}
	return 0, 0, fmt.Errorf("limit placement exhausted %d attempts on %s", e.cfg.MaxRetries, symbol)
}

// linkPositions records a live donor→client pairing with both open
// snapshots.
func (e *Engine) linkPositions(d domain.DonorPosition, c domain.ClientPosition) {
	e.links.Positions[d.Ticket] = domain.PositionLink{
		ClientTicket:    c.Ticket,
		Symbol:          d.Symbol,
		Direction:       d.Direction,
		DonorPriceOpen:  d.PriceOpen,
		ClientPriceOpen: c.PriceOpen,
		DonorTime:       d.OpenedAt,
		ClientTime:      c.OpenedAt,
		DonorMagic:      d.Magic,
		ClientMagic:     c.Magic,
		DonorComment:    d.Comment,
		ClientComment:   c.Comment,
	}
	e.dirty = true
}

// checkOpenOrderFills resolves opening orders that vanished from the order
// list: either they filled (a deal exists) or someone cancelled them.
func (e *Engine) checkOpenOrderFills(ctx context.Context, report *domain.CycleReport) {
	for orderTicket, link := range e.links.OpenOrders {
		_, err := e.client.OrderByTicket(ctx, orderTicket)
		if err == nil {
			continue // still pending
		}
		if !errors.Is(err, ports.ErrNotFound) {
			continue // timeout or transient, re-check next cycle
		}

		deal, err := e.client.DealByOrder(ctx, orderTicket, e.cfg.DealWindowSecs)
		if errors.Is(err, ports.ErrNotFound) {
			// cancelled outside the engine
			slog.Warn("engine: opening order vanished without a fill", "order", orderTicket, "donor", link.DonorTicket)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("order %d for donor %d cancelled externally", orderTicket, link.DonorTicket))
			delete(e.links.OpenOrders, orderTicket)
			e.dirty = true
			e.monitor.Forget(link.DonorTicket)
			continue
		}
		if err != nil {
			continue
		}

		client, err := e.client.PositionByTicket(ctx, deal.PositionTicket)
		if err != nil {
			continue // settle lag, retry next cycle
		}

		donor, ok := e.monitor.LastKnown(link.DonorTicket)
		if !ok {
			donor = domain.DonorPosition{
				Ticket:    link.DonorTicket,
				Symbol:    link.Symbol,
				Direction: link.Kind.Direction(),
				PriceOpen: link.OriginalPrice,
				OpenedAt:  time.Now(),
			}
		}
		e.linkPositions(donor, client)
		delete(e.links.OpenOrders, orderTicket)
		e.dirty = true
		report.Fills++
		e.metrics.IncFill()
		e.journalEvent(ctx, domain.CopyEvent{
			Kind: domain.EventOpenFilled, Symbol: link.Symbol, SourceID: e.sources[link.DonorTicket],
			DonorTicket: link.DonorTicket, ClientTicket: client.Ticket, Volume: client.Volume, Price: client.PriceOpen,
		})
		slog.Info("engine: opening order filled", "order", orderTicket, "donor", link.DonorTicket, "client", client.Ticket)
	}
}
