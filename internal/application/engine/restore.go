package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

// Start rebuilds the correspondence map before the first cycle: load the
// persisted state, keep every entry both brokers still confirm, score-match
// whatever the saved tickets cannot explain, and seed the monitor so
// pre-existing donor positions are not treated as fresh trades.
func (e *Engine) Start(ctx context.Context) error {
	saved, err := e.store.Load()
	if err != nil {
		// A missing or corrupt state file is not fatal: start with an empty
		// map and let the score matcher re-pair whatever is live.
		slog.Warn("engine: state unreadable, starting empty", "err", err)
		saved = nil
	}

	donorPositions := e.donors.AllPositions()
	donorOrders := e.donors.AllOrders()
	clientPositions, err := e.client.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("engine: list client positions: %w", err)
	}
	clientOrders, err := e.client.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("engine: list client orders: %w", err)
	}

	for _, p := range donorPositions {
		e.sources[p.Ticket] = p.SourceID
	}

	savedPairs := make(map[int64]int64)
	var lostDonors map[int64]bool
	if saved != nil {
		savedPairs, lostDonors = e.restoreSaved(saved, donorPositions, clientPositions, clientOrders)
	}

	e.matchUnlinked(ctx, donorPositions, clientPositions, donorOrders, clientOrders, savedPairs)

	// Seed the monitor. Unlinked donor positions are tracked silently unless
	// the operator asked for existing positions to be copied. A donor whose
	// saved client vanished while we were down stays untracked, so the first
	// cycle re-copies it as new.
	for _, p := range donorPositions {
		switch {
		case e.links.DonorBusy(p.Ticket):
			e.monitor.Track(p)
		case lostDonors[p.Ticket]:
		case !e.cfg.CopyExisting:
			e.monitor.Track(p)
		}
	}

	if err := e.store.Save(e.links); err != nil {
		return fmt.Errorf("engine: initial state save: %w", err)
	}
	e.dirty = false

	slog.Info("engine: session started",
		"session", e.sessionID,
		"links", len(e.links.Positions),
		"open_in_flight", len(e.links.OpenOrders),
		"close_in_flight", len(e.links.CloseOrders),
		"mirrors", len(e.links.PendingOrders),
		"donor_positions", len(donorPositions))
	return nil
}

// restoreSaved keeps every persisted entry that still checks out against
// live broker state. It returns the donor→client pairs from the previous
// run, which bias the score matcher, and the donor tickets whose client
// side disappeared while the engine was down.
func (e *Engine) restoreSaved(saved *domain.CorrespondenceMap,
	donorPositions []domain.DonorPosition, clientPositions []domain.ClientPosition,
	clientOrders []domain.ClientPendingOrder) (map[int64]int64, map[int64]bool) {

	clientByTicket := make(map[int64]domain.ClientPosition, len(clientPositions))
	for _, c := range clientPositions {
		clientByTicket[c.Ticket] = c
	}
	orderLive := make(map[int64]bool, len(clientOrders))
	for _, o := range clientOrders {
		orderLive[o.Ticket] = true
	}
	donorLive := make(map[int64]bool, len(donorPositions))
	for _, p := range donorPositions {
		donorLive[p.Ticket] = true
	}

	savedPairs := make(map[int64]int64, len(saved.Positions))
	lostDonors := make(map[int64]bool)
	for donorTicket, link := range saved.Positions {
		savedPairs[donorTicket] = link.ClientTicket
		if _, ok := clientByTicket[link.ClientTicket]; !ok {
			// Client side gone while we were down. If the donor is also
			// gone the pair simply finished; if the donor still holds, the
			// link is rejected and the position is copied again.
			if donorLive[donorTicket] {
				slog.Warn("engine: saved link lost its client position", "donor", donorTicket, "client", link.ClientTicket)
				lostDonors[donorTicket] = true
			}
			continue
		}
		// Keep the link even when the donor is gone: the first cycle's
		// close pass mirrors the close we missed.
		e.links.Positions[donorTicket] = link
	}

	for orderTicket, link := range saved.OpenOrders {
		// Kept regardless of liveness; the fill check resolves orders that
		// left the book while we were down.
		e.links.OpenOrders[orderTicket] = link
	}
	for donorTicket, closeTicket := range saved.CloseOrders {
		e.links.CloseOrders[donorTicket] = closeTicket
	}
	for closeTicket, info := range saved.CloseDetails {
		e.links.CloseDetails[closeTicket] = info
	}

	for donorTicket, clientTicket := range saved.PendingOrders {
		if orderLive[clientTicket] {
			e.links.PendingOrders[donorTicket] = clientTicket
		}
		// Dead twins fall through to the order re-matcher.
	}

	for symbol := range saved.SkippedSymbols {
		e.links.Skip(symbol)
	}
	return savedPairs, lostDonors
}

// matchUnlinked pairs leftover donor and client state by score.
func (e *Engine) matchUnlinked(ctx context.Context,
	donorPositions []domain.DonorPosition, clientPositions []domain.ClientPosition,
	donorOrders []domain.DonorPendingOrder, clientOrders []domain.ClientPendingOrder,
	savedPairs map[int64]int64) {

	points := e.pointSizes(ctx, donorPositions, donorOrders)

	var unpairedDonors []domain.DonorPosition
	donorByTicket := make(map[int64]domain.DonorPosition, len(donorPositions))
	for _, d := range donorPositions {
		donorByTicket[d.Ticket] = d
		if !e.links.DonorBusy(d.Ticket) {
			unpairedDonors = append(unpairedDonors, d)
		}
	}
	var unpairedClients []domain.ClientPosition
	for _, c := range clientPositions {
		if !e.links.ClientTicketLinked(c.Ticket) {
			unpairedClients = append(unpairedClients, c)
		}
	}

	for _, m := range domain.MatchPositions(unpairedDonors, unpairedClients, points, savedPairs, domain.MatchConfig{CopyDonorMagic: e.cfg.CopyDonorMagic}) {
		d := donorByTicket[m.DonorTicket]
		for _, c := range unpairedClients {
			if c.Ticket == m.ClientTicket {
				e.linkPositions(d, c)
				slog.Info("engine: matched position pair", "donor", m.DonorTicket, "client", m.ClientTicket, "score", m.Score)
				break
			}
		}
	}

	var unpairedDonorOrders []domain.DonorPendingOrder
	for _, o := range donorOrders {
		if _, ok := e.links.PendingOrders[o.Ticket]; !ok {
			unpairedDonorOrders = append(unpairedDonorOrders, o)
		}
	}
	mirroredClient := make(map[int64]bool, len(e.links.PendingOrders))
	for _, t := range e.links.PendingOrders {
		mirroredClient[t] = true
	}
	engineOrder := make(map[int64]bool, len(e.links.OpenOrders)+len(e.links.CloseDetails))
	for t := range e.links.OpenOrders {
		engineOrder[t] = true
	}
	for t := range e.links.CloseDetails {
		engineOrder[t] = true
	}
	var unpairedClientOrders []domain.ClientPendingOrder
	for _, o := range clientOrders {
		if !mirroredClient[o.Ticket] && !engineOrder[o.Ticket] {
			unpairedClientOrders = append(unpairedClientOrders, o)
		}
	}

	for _, m := range domain.MatchOrders(unpairedDonorOrders, unpairedClientOrders, points) {
		e.links.PendingOrders[m.DonorTicket] = m.ClientTicket
		e.dirty = true
		slog.Info("engine: re-matched mirrored order", "donor_order", m.DonorTicket, "client_order", m.ClientTicket, "score", m.Score)
	}
}

// pointSizes resolves point sizes for every symbol in play, best effort.
func (e *Engine) pointSizes(ctx context.Context, positions []domain.DonorPosition, orders []domain.DonorPendingOrder) map[string]float64 {
	points := make(map[string]float64)
	resolve := func(symbol string) {
		if _, ok := points[symbol]; ok || e.links.Skipped(symbol) {
			return
		}
		info, err := e.symbolInfo(ctx, symbol)
		if err != nil {
			return
		}
		points[symbol] = domain.PointSize(info.Digits)
	}
	for _, p := range positions {
		resolve(p.Symbol)
	}
	for _, o := range orders {
		resolve(o.Symbol)
	}
	return points
}
