package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// mirrorPendingOrders keeps the client's pending orders aligned with the
// donors': new donor orders get a client twin at the identical price, and
// disappeared donor orders either promote to a position link (the donor
// order filled) or cancel the twin (the donor cancelled).
func (e *Engine) mirrorPendingOrders(ctx context.Context, donorOrders []domain.DonorPendingOrder, donorPositions []domain.DonorPosition, report *domain.CycleReport) {
	present := make(map[int64]domain.DonorPendingOrder, len(donorOrders))
	for _, o := range donorOrders {
		present[o.Ticket] = o
	}
	positionByTicket := make(map[int64]domain.DonorPosition, len(donorPositions))
	for _, p := range donorPositions {
		positionByTicket[p.Ticket] = p
	}

	for _, o := range donorOrders {
		if _, ok := e.links.PendingOrders[o.Ticket]; ok {
			continue
		}
		e.mirrorOrder(ctx, o, report)
	}

	for donorTicket, clientTicket := range e.links.PendingOrders {
		if _, ok := present[donorTicket]; ok {
			continue
		}
		if pos, filled := positionByTicket[donorTicket]; filled {
			e.adoptFilledMirror(ctx, pos, clientTicket, report)
			continue
		}
		e.cancelMirror(ctx, donorTicket, clientTicket, report)
	}
}

// mirrorOrder places the client twin of one donor pending order.
func (e *Engine) mirrorOrder(ctx context.Context, o domain.DonorPendingOrder, report *domain.CycleReport) {
	if e.links.Skipped(o.Symbol) {
		return
	}
	info, err := e.symbolInfo(ctx, o.Symbol)
	if err != nil {
		return
	}
	lot, err := e.lotFor(ctx, o.Volume, o.SourceID, info)
	if err != nil {
		slog.Warn("engine: cannot size mirror", "donor_order", o.Ticket, "symbol", o.Symbol, "err", err)
		return
	}

	req := domain.TradeRequest{
		Action: domain.ActionPending,
		Symbol: o.Symbol,
		Kind:   o.Kind,
		Volume: lot,
		Price:  domain.RoundToDigits(o.Price, info.Digits),
		Magic:  e.cfg.Magic,
	}
	if e.cfg.CopySLTP {
		req.SL, req.TP = o.SL, o.TP
	}

	res, err := e.client.Submit(ctx, req)
	if err != nil {
		if !errors.Is(err, ports.ErrTimeout) {
			slog.Warn("engine: mirror placement failed", "donor_order", o.Ticket, "err", err)
		}
		return
	}
	e.metrics.IncSubmission(domain.ActionPending.String(), res.Accepted())
	if !res.Accepted() {
		slog.Warn("engine: mirror rejected", "donor_order", o.Ticket, "retcode", res.RetCode, "comment", res.Comment)
		return
	}

	e.links.PendingOrders[o.Ticket] = res.Order
	e.dirty = true
	e.journalEvent(ctx, domain.CopyEvent{
		Kind: domain.EventMirrorPlaced, Symbol: o.Symbol, SourceID: o.SourceID,
		DonorTicket: o.Ticket, ClientTicket: res.Order, Volume: lot, Price: req.Price,
	})
	slog.Info("engine: mirrored pending order", "donor_order", o.Ticket, "client_order", res.Order,
		"kind", o.Kind, "price", req.Price)
}

// adoptFilledMirror handles a donor pending order that turned into a donor
// position under the same ticket. Three outcomes: the client twin also
// filled (promote to a position link), the twin is still on the book (wait
// for its fill), or the twin was cancelled externally (re-copy from
// scratch).
func (e *Engine) adoptFilledMirror(ctx context.Context, donor domain.DonorPosition, clientOrderTicket int64, report *domain.CycleReport) {
	_, err := e.client.OrderByTicket(ctx, clientOrderTicket)
	if err == nil {
		return // twin still pending, keep waiting
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return
	}

	deal, err := e.client.DealByOrder(ctx, clientOrderTicket, e.cfg.DealWindowSecs)
	if errors.Is(err, ports.ErrNotFound) {
		// The twin was cancelled outside the engine. Drop the link and
		// untrack the donor ticket so the position is copied as new on
		// the next cycle.
		slog.Warn("engine: mirror cancelled externally, re-copying", "donor", donor.Ticket, "client_order", clientOrderTicket)
		delete(e.links.PendingOrders, donor.Ticket)
		e.dirty = true
		e.monitor.Forget(donor.Ticket)
		return
	}
	if err != nil {
		return
	}

	client, err := e.client.PositionByTicket(ctx, deal.PositionTicket)
	if err != nil {
		return // settle lag, retry next cycle
	}

	e.linkPositions(donor, client)
	delete(e.links.PendingOrders, donor.Ticket)
	e.dirty = true
	report.Fills++
	e.metrics.IncFill()
	e.journalEvent(ctx, domain.CopyEvent{
		Kind: domain.EventOpenFilled, Symbol: donor.Symbol, SourceID: donor.SourceID,
		DonorTicket: donor.Ticket, ClientTicket: client.Ticket, Volume: client.Volume, Price: client.PriceOpen,
		Detail: "adopted from mirrored order",
	})
	slog.Info("engine: adopted filled mirror", "donor", donor.Ticket, "client", client.Ticket)
}

// cancelMirror removes the client twin of a donor order that was cancelled
// donor-side.
func (e *Engine) cancelMirror(ctx context.Context, donorTicket, clientOrderTicket int64, report *domain.CycleReport) {
	order, err := e.client.OrderByTicket(ctx, clientOrderTicket)
	if errors.Is(err, ports.ErrNotFound) {
		delete(e.links.PendingOrders, donorTicket)
		e.dirty = true
		return
	}
	if err != nil {
		return
	}

	res, err := e.client.Submit(ctx, domain.TradeRequest{
		Action:      domain.ActionRemove,
		Symbol:      order.Symbol,
		OrderTicket: clientOrderTicket,
	})
	if err != nil {
		if errors.Is(err, ports.ErrTimeout) {
			return
		}
		slog.Warn("engine: mirror cancel failed", "client_order", clientOrderTicket, "err", err)
		return
	}
	e.metrics.IncSubmission(domain.ActionRemove.String(), res.Accepted())

	delete(e.links.PendingOrders, donorTicket)
	e.dirty = true
	report.Cancels++
	e.journalEvent(ctx, domain.CopyEvent{
		Kind: domain.EventMirrorCancel, Symbol: order.Symbol,
		DonorTicket: donorTicket, ClientTicket: clientOrderTicket,
	})
	slog.Info("engine: cancelled mirror", "donor_order", donorTicket, "client_order", clientOrderTicket)
}
