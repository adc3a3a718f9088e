package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// checkCloseOrders advances the close-by protocol. A filled closing limit
// order leaves the account with two opposing positions; netting them is a
// separate broker operation that has to be driven from here.
func (e *Engine) checkCloseOrders(ctx context.Context, report *domain.CycleReport) {
	for closeTicket, info := range e.links.CloseDetails {
		_, err := e.client.OrderByTicket(ctx, closeTicket)
		if err == nil {
			continue // close order still pending
		}
		if !errors.Is(err, ports.ErrNotFound) {
			continue // transient, re-check next cycle
		}

		// The close order left the book: either it filled or someone
		// cancelled it. Give the broker a moment to settle the books
		// before reading positions.
		e.settle(ctx)

		original, err := e.client.PositionByTicket(ctx, info.ClientPositionTicket)
		if errors.Is(err, ports.ErrNotFound) {
			// The broker netted the fill against the original position
			// automatically. Done.
			e.dropCloseState(info.DonorTicket, closeTicket)
			report.ClosedLinks++
			e.closes++
			e.journalEvent(ctx, domain.CopyEvent{
				Kind: domain.EventCloseBy, Symbol: info.Symbol, SourceID: e.sources[info.DonorTicket],
				DonorTicket: info.DonorTicket, ClientTicket: info.ClientPositionTicket,
				Detail: "netted by broker",
			})
			slog.Info("engine: close settled by broker netting", "donor", info.DonorTicket, "client", info.ClientPositionTicket)
			continue
		}
		if err != nil {
			continue
		}

		opposite, ok := e.findCounterPosition(ctx, original)
		if !ok {
			// Filled-but-not-visible or cancelled; if cancelled, the
			// original link is still intact and the close re-fires from
			// the snapshot diff. Retry next cycle either way.
			continue
		}

		res, err := e.client.Submit(ctx, domain.TradeRequest{
			Action:     domain.ActionCloseBy,
			Symbol:     info.Symbol,
			Position:   original.Ticket,
			ByPosition: opposite.Ticket,
		})
		if err != nil {
			if !errors.Is(err, ports.ErrTimeout) {
				slog.Error("engine: close-by failed", "position", original.Ticket, "by", opposite.Ticket, "err", err)
			}
			continue
		}
		e.metrics.IncSubmission(domain.ActionCloseBy.String(), res.Accepted())
		if !res.Accepted() {
			slog.Warn("engine: close-by rejected", "position", original.Ticket, "by", opposite.Ticket,
				"retcode", res.RetCode, "comment", res.Comment)
			continue
		}

		e.dropCloseState(info.DonorTicket, closeTicket)
		report.ClosedLinks++
		report.CloseBys++
		e.closes++
		e.closeBys++
		e.metrics.IncCloseBy()
		e.journalEvent(ctx, domain.CopyEvent{
			Kind: domain.EventCloseBy, Symbol: info.Symbol, SourceID: e.sources[info.DonorTicket],
			DonorTicket: info.DonorTicket, ClientTicket: original.Ticket,
		})
		slog.Info("engine: positions netted", "donor", info.DonorTicket, "position", original.Ticket, "by", opposite.Ticket)
	}
}

// findCounterPosition locates the position the filled close order created:
// same symbol, opposite direction, different ticket.
func (e *Engine) findCounterPosition(ctx context.Context, original domain.ClientPosition) (domain.ClientPosition, bool) {
	positions, err := e.client.PositionsBySymbol(ctx, original.Symbol)
	if err != nil {
		return domain.ClientPosition{}, false
	}
	for _, c := range positions {
		if c.Ticket != original.Ticket && c.Direction == original.Direction.Opposite() {
			return c, true
		}
	}
	return domain.ClientPosition{}, false
}

// dropCloseState removes the finished link and its close-order bookkeeping.
func (e *Engine) dropCloseState(donorTicket, closeTicket int64) {
	delete(e.links.Positions, donorTicket)
	delete(e.links.CloseOrders, donorTicket)
	delete(e.links.CloseDetails, closeTicket)
	e.dirty = true
}
