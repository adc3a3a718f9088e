package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// walkPendingPrices nudges every live limit order one point toward its
// target per cycle. The target is the current market reference when
// optimize-to-market is on, otherwise the original price the order must not
// trade worse than. Orders that left the book are resolved elsewhere, the
// walker simply skips them.
func (e *Engine) walkPendingPrices(ctx context.Context, report *domain.CycleReport) {
	for orderTicket, link := range e.links.OpenOrders {
		e.walkOrder(ctx, orderTicket, link.Symbol, link.Kind, link.OriginalPrice, report)
	}
	for orderTicket, info := range e.links.CloseDetails {
		e.walkOrder(ctx, orderTicket, info.Symbol, info.Kind, info.OriginalClosePrice, report)
	}
}

func (e *Engine) walkOrder(ctx context.Context, orderTicket int64, symbol string, kind domain.OrderKind, original float64, report *domain.CycleReport) {
	order, err := e.client.OrderByTicket(ctx, orderTicket)
	if err != nil {
		return // vanished or transient, the fill checks own that case
	}

	info, err := e.symbolInfo(ctx, symbol)
	if err != nil {
		return
	}
	tick, err := e.client.Tick(ctx, symbol)
	if err != nil {
		return
	}
	point := domain.PointSize(info.Digits)

	target := original
	if e.cfg.OptimizeToMarket {
		target = tick.Ref(kind)
	}

	next, ok := stepPrice(order.Price, target, original, tick, kind, point, e.cfg.OptimizeToMarket)
	if !ok {
		// no legal single step; try jumping straight to the best allowed
		// price at zero offset
		next = domain.LimitPrice(kind, tick.Ref(kind), original, 0, info.Digits)
		if !stepLegal(next, order.Price, target, tick, kind) {
			return
		}
	}
	next = domain.RoundToDigits(next, info.Digits)
	if next == order.Price {
		return
	}

	res, err := e.client.Submit(ctx, domain.TradeRequest{
		Action:      domain.ActionModify,
		Symbol:      symbol,
		Kind:        kind,
		Price:       next,
		OrderTicket: orderTicket,
	})
	if err != nil {
		if !errors.Is(err, ports.ErrTimeout) {
			slog.Debug("walker: modify failed", "order", orderTicket, "err", err)
		}
		return
	}
	e.metrics.IncSubmission(domain.ActionModify.String(), res.Accepted())
	if !res.Accepted() {
		return
	}

	report.Reprices++
	e.reprices++
	e.metrics.IncReprice()
	e.journalEvent(ctx, domain.CopyEvent{
		Kind: domain.EventReprice, Symbol: symbol, ClientTicket: orderTicket, Price: next,
		Detail: fmt.Sprintf("from %.5f", order.Price),
	})
	slog.Debug("walker: repriced", "order", orderTicket, "from", order.Price, "to", next)
}

// stepPrice computes a one-point move toward target, or reports that none
// is legal. Buy limits walk up but must stay strictly below the bid; sell
// limits walk down but must stay strictly above the ask. When the target is
// the original price, the step must not cross it.
func stepPrice(current, target, original float64, tick domain.Tick, kind domain.OrderKind, point float64, toMarket bool) (float64, bool) {
	var candidate float64
	if kind.Direction() == domain.Buy {
		candidate = current + point
		if candidate >= tick.Bid {
			return 0, false
		}
		if !toMarket && candidate > original {
			return 0, false
		}
	} else {
		candidate = current - point
		if candidate <= tick.Ask {
			return 0, false
		}
		if !toMarket && candidate < original {
			return 0, false
		}
	}
	if !closerTo(candidate, current, target) {
		return 0, false
	}
	return candidate, true
}

// stepLegal validates the fallback jump: strict improvement toward target
// plus the broker-side bound for the kind.
func stepLegal(candidate, current, target float64, tick domain.Tick, kind domain.OrderKind) bool {
	if !closerTo(candidate, current, target) {
		return false
	}
	if kind.Direction() == domain.Buy {
		return candidate < tick.Bid
	}
	return candidate > tick.Ask
}

func closerTo(candidate, current, target float64) bool {
	return math.Abs(target-candidate) < math.Abs(target-current)
}
