package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// processClosedPositions mirrors donor closes. Close detection is level
// triggered: any link whose donor ticket is missing from the current
// snapshot is due for closing, regardless of whether the disappearance was
// noticed this cycle or earlier. lastSeen carries the final snapshots from
// the monitor for late matching of tickets that were never linked.
func (e *Engine) processClosedPositions(ctx context.Context, donorPositions, lastSeen []domain.DonorPosition, report *domain.CycleReport) {
	present := make(map[int64]struct{}, len(donorPositions))
	for _, p := range donorPositions {
		present[p.Ticket] = struct{}{}
	}

	// Donor vanished while the opening order was still pending: the copy
	// never became a position, just cancel the order.
	for orderTicket, link := range e.links.OpenOrders {
		if _, ok := present[link.DonorTicket]; ok {
			continue
		}
		res, err := e.client.Submit(ctx, domain.TradeRequest{
			Action:      domain.ActionRemove,
			Symbol:      link.Symbol,
			OrderTicket: orderTicket,
		})
		if err != nil {
			if errors.Is(err, ports.ErrTimeout) {
				continue // unknown outcome, the fill check will resolve it
			}
			slog.Warn("engine: cancel of opening order failed", "order", orderTicket, "err", err)
			continue
		}
		e.metrics.IncSubmission(domain.ActionRemove.String(), res.Accepted())
		delete(e.links.OpenOrders, orderTicket)
		e.dirty = true
		report.Cancels++
		e.journalEvent(ctx, domain.CopyEvent{
			Kind: domain.EventOpenCancel, Symbol: link.Symbol, SourceID: e.sources[link.DonorTicket],
			DonorTicket: link.DonorTicket, ClientTicket: orderTicket,
		})
		slog.Info("engine: donor closed before fill, opening order cancelled", "donor", link.DonorTicket, "order", orderTicket)
	}

	for donorTicket, link := range e.links.Positions {
		if _, ok := present[donorTicket]; ok {
			continue
		}
		if _, inFlight := e.links.CloseOrders[donorTicket]; inFlight {
			continue
		}
		e.closeLink(ctx, donorTicket, link, report)
	}

	// Donor positions that closed without ever being linked: try to adopt a
	// recent unlinked client position before giving up on the close.
	for _, d := range lastSeen {
		if e.links.DonorBusy(d.Ticket) {
			continue
		}
		e.lateMatchClose(ctx, d, report)
	}
}

// closeLink closes the client side of one link whose donor is gone.
func (e *Engine) closeLink(ctx context.Context, donorTicket int64, link domain.PositionLink, report *domain.CycleReport) {
	pos, err := e.client.PositionByTicket(ctx, link.ClientTicket)
	if errors.Is(err, ports.ErrNotFound) {
		// closed outside the engine, nothing left to do
		slog.Info("engine: client position already gone", "donor", donorTicket, "client", link.ClientTicket)
		e.links.DropDonor(donorTicket)
		e.dirty = true
		report.ClosedLinks++
		e.closes++
		return
	}
	if err != nil {
		return // transient, retry next cycle
	}

	switch e.cfg.Style {
	case StyleMarket:
		e.closeByMarket(ctx, donorTicket, pos, report)
	default:
		e.closeByLimit(ctx, donorTicket, pos, report)
	}
}

// closeByMarket closes the client position with an immediate opposite deal.
func (e *Engine) closeByMarket(ctx context.Context, donorTicket int64, pos domain.ClientPosition, report *domain.CycleReport) {
	tick, err := e.client.Tick(ctx, pos.Symbol)
	if err != nil {
		return
	}
	price := tick.Bid // selling to close a BUY
	if pos.Direction == domain.Sell {
		price = tick.Ask
	}

	res, err := e.client.Submit(ctx, domain.TradeRequest{
		Action:    domain.ActionDeal,
		Symbol:    pos.Symbol,
		Direction: pos.Direction.Opposite(),
		Volume:    pos.Volume,
		Price:     price,
		Position:  pos.Ticket,
	})
	if err != nil {
		if !errors.Is(err, ports.ErrTimeout) {
			slog.Error("engine: market close failed", "donor", donorTicket, "client", pos.Ticket, "err", err)
		}
		return
	}
	e.metrics.IncSubmission(domain.ActionDeal.String(), res.Accepted())
	if !res.Accepted() {
		slog.Warn("engine: market close rejected", "client", pos.Ticket, "retcode", res.RetCode, "comment", res.Comment)
		return
	}

	e.links.DropDonor(donorTicket)
	e.dirty = true
	report.ClosedLinks++
	e.closes++
	e.journalEvent(ctx, domain.CopyEvent{
		Kind: domain.EventMarketClose, Symbol: pos.Symbol, SourceID: e.sources[donorTicket],
		DonorTicket: donorTicket, ClientTicket: pos.Ticket, Volume: pos.Volume, Price: price,
	})
	slog.Info("engine: closed by market", "donor", donorTicket, "client", pos.Ticket)
}

// closeByLimit places an opposite-direction limit order against the current
// market. The fill and the final netting run through the close-by protocol
// on later cycles.
func (e *Engine) closeByLimit(ctx context.Context, donorTicket int64, pos domain.ClientPosition, report *domain.CycleReport) {
	info, err := e.symbolInfo(ctx, pos.Symbol)
	if err != nil {
		return
	}
	point := domain.PointSize(info.Digits)
	kind := domain.LimitKindFor(pos.Direction.Opposite())

	var firstRef float64
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		tick, err := e.client.Tick(ctx, pos.Symbol)
		if err != nil {
			if errors.Is(err, ports.ErrTimeout) {
				return
			}
			continue
		}
		ref := tick.Ref(kind)
		if firstRef == 0 {
			firstRef = ref
		}

		offset := float64(e.cfg.OffsetPoints+attempt) * point
		price := ref + offset // sell limit above the bid
		if kind == domain.BuyLimit {
			price = ref - offset
		}
		price = domain.RoundToDigits(price, info.Digits)

		res, err := e.client.Submit(ctx, domain.TradeRequest{
			Action: domain.ActionPending,
			Symbol: pos.Symbol,
			Kind:   kind,
			Volume: pos.Volume,
			Price:  price,
			Magic:  e.cfg.Magic,
		})
		if err != nil {
			if errors.Is(err, ports.ErrTimeout) {
				return
			}
			continue
		}
		e.metrics.IncSubmission(domain.ActionPending.String(), res.Accepted())
		if !res.Accepted() {
			if res.Retryable() {
				continue
			}
			slog.Warn("engine: close order rejected", "client", pos.Ticket, "retcode", res.RetCode, "comment", res.Comment)
			return
		}

		e.links.CloseOrders[donorTicket] = res.Order
		e.links.CloseDetails[res.Order] = domain.CloseOrderInfo{
			DonorTicket:          donorTicket,
			Symbol:               pos.Symbol,
			Kind:                 kind,
			OriginalClosePrice:   firstRef,
			ClientPositionTicket: pos.Ticket,
		}
		e.dirty = true
		e.journalEvent(ctx, domain.CopyEvent{
			Kind: domain.EventClosePlaced, Symbol: pos.Symbol, SourceID: e.sources[donorTicket],
			DonorTicket: donorTicket, ClientTicket: res.Order, Volume: pos.Volume, Price: price,
		})
		slog.Info("engine: close order placed", "donor", donorTicket, "client", pos.Ticket, "order", res.Order, "price", price)
		return
	}

	report.Warnings = append(report.Warnings,
		fmt.Sprintf("donor %d: close placement exhausted %d attempts", donorTicket, e.cfg.MaxRetries))
}

// lateMatchClose handles a donor close the engine never linked, typically
// because the open happened during an outage. A recent unlinked client
// position on the same symbol and side is adopted and closed.
func (e *Engine) lateMatchClose(ctx context.Context, d domain.DonorPosition, report *domain.CycleReport) {
	positions, err := e.client.ListPositions(ctx)
	if err != nil {
		return
	}
	for _, c := range positions {
		if c.Symbol != d.Symbol || c.Direction != d.Direction || e.links.ClientTicketLinked(c.Ticket) {
			continue
		}
		if c.OpenedAt.Before(d.OpenedAt.Add(-lateMatchWindow)) || c.OpenedAt.After(d.OpenedAt.Add(lateMatchWindow)) {
			continue
		}
		slog.Info("engine: late-matched closed donor to client position",
			"donor", d.Ticket, "client", c.Ticket, "symbol", d.Symbol)
		e.linkPositions(d, c)
		e.closeLink(ctx, d.Ticket, e.links.Positions[d.Ticket], report)
		return
	}
}
