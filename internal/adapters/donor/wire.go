// Package donor implements the donor-side feeds: TCP socket sources fed by
// MT4/MT5 terminal agents, in-process terminal sources, and the manager
// that aggregates them into one stream.
package donor

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

// maxFrameSize caps a single feed frame. Real snapshots are a few KB; a
// larger header means a desynced or hostile stream.
const maxFrameSize = 16 << 20

// Socket frames: 4-byte big-endian payload length, then UTF-8 JSON. The
// MT4 and MT5 agents emit the identical encoding.

type wireFrame struct {
	Positions   []wirePosition  `json:"positions"`
	Orders      []wireOrder     `json:"orders"`
	AccountInfo wireAccountInfo `json:"account_info"`
}

type wirePosition struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         int     `json:"type"`
	Volume       float64 `json:"volume"`
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	Profit       float64 `json:"profit"`
	Time         int64   `json:"time"`
	Magic        *int64  `json:"magic,omitempty"`
	Comment      string  `json:"comment,omitempty"`
	SL           float64 `json:"sl,omitempty"`
	TP           float64 `json:"tp,omitempty"`
}

type wireOrder struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      int     `json:"type"`
	Volume    float64 `json:"volume"`
	PriceOpen float64 `json:"price_open"`
	TimeSetup int64   `json:"time_setup"`
	SL        float64 `json:"sl,omitempty"`
	TP        float64 `json:"tp,omitempty"`
}

type wireAccountInfo struct {
	Login   int64   `json:"login"`
	Balance float64 `json:"balance"`
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("donor.readFrame: header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("donor.readFrame: frame of %d bytes exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("donor.readFrame: payload: %w", err)
	}
	return payload, nil
}

// writeFrame writes one length-prefixed frame. Used by tests standing in
// for a terminal agent.
func writeFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// decodeFrame parses a frame payload into domain snapshots tagged with the
// source id. Items with unknown type codes are dropped with a log line
// rather than poisoning the whole frame.
func decodeFrame(payload []byte, sourceID string) ([]domain.DonorPosition, []domain.DonorPendingOrder, wireAccountInfo, error) {
	var frame wireFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, nil, wireAccountInfo{}, fmt.Errorf("donor.decodeFrame: %w", err)
	}

	positions := make([]domain.DonorPosition, 0, len(frame.Positions))
	for _, p := range frame.Positions {
		dir, err := domain.DirectionFromWire(p.Type)
		if err != nil {
			slog.Warn("donor: dropping position with bad type", "source", sourceID, "ticket", p.Ticket, "type", p.Type)
			continue
		}
		positions = append(positions, domain.DonorPosition{
			Ticket:       p.Ticket,
			Symbol:       p.Symbol,
			Direction:    dir,
			Volume:       p.Volume,
			PriceOpen:    p.PriceOpen,
			PriceCurrent: p.PriceCurrent,
			Profit:       p.Profit,
			OpenedAt:     time.Unix(p.Time, 0),
			SourceID:     sourceID,
			Magic:        p.Magic,
			Comment:      p.Comment,
			SL:           p.SL,
			TP:           p.TP,
		})
	}

	orders := make([]domain.DonorPendingOrder, 0, len(frame.Orders))
	for _, o := range frame.Orders {
		kind, err := domain.OrderKindFromWire(o.Type)
		if err != nil {
			slog.Warn("donor: dropping order with bad type", "source", sourceID, "ticket", o.Ticket, "type", o.Type)
			continue
		}
		orders = append(orders, domain.DonorPendingOrder{
			Ticket:    o.Ticket,
			Symbol:    o.Symbol,
			Kind:      kind,
			Volume:    o.Volume,
			Price:     o.PriceOpen,
			TimeSetup: time.Unix(o.TimeSetup, 0),
			SourceID:  sourceID,
			SL:        o.SL,
			TP:        o.TP,
		})
	}

	return positions, orders, frame.AccountInfo, nil
}
