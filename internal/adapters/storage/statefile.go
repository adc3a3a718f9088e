// Package storage persiste el estado durable del copiador: el mapa de
// correspondencias como fichero JSON y el diario de operaciones en SQLite.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// StateFile guarda el mapa de correspondencias como un único documento
// JSON. Las escrituras van a un fichero temporal en el mismo directorio y
// se renombran sobre el destino, así un lector nunca ve una escritura a
// medias. Los tickets van como claves string porque los objetos JSON solo
// admiten claves string.
type StateFile struct {
	path string
}

// NewStateFile apunta el persistidor a una ruta, p.ej. "sync_state.json".
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

type stateDoc struct {
	Timestamp           int64                          `json:"timestamp"`
	ClientPositions     map[string]positionLinkDoc     `json:"client_positions"`
	PendingOrders       map[string]openOrderDoc        `json:"pending_orders"`
	PendingCloseOrders  map[string]int64               `json:"pending_close_orders"`
	PendingCloseInfo    map[string]closeOrderDoc       `json:"pending_close_orders_info"`
	CloseOrderPositions map[string]int64               `json:"close_order_to_client_position"`
	DonorPendingOrders  map[string]int64               `json:"donor_pending_orders"`
}

type positionLinkDoc struct {
	ClientTicket    int64   `json:"client_ticket"`
	Symbol          string  `json:"symbol"`
	Type            int     `json:"type"`
	DonorPriceOpen  float64 `json:"donor_price_open"`
	ClientPriceOpen float64 `json:"client_price_open"`
	DonorTime       int64   `json:"donor_time"`
	ClientTime      int64   `json:"client_time"`
	DonorMagic      *int64  `json:"donor_magic"`
	ClientMagic     int64   `json:"client_magic"`
	DonorComment    string  `json:"donor_comment,omitempty"`
	ClientComment   string  `json:"client_comment,omitempty"`
}

type openOrderDoc struct {
	DonorTicket   int64   `json:"donor_ticket"`
	Symbol        string  `json:"symbol"`
	Type          int     `json:"type"`
	OriginalPrice float64 `json:"original_price"`
}

type closeOrderDoc struct {
	DonorTicket        int64   `json:"donor_ticket"`
	Symbol             string  `json:"symbol"`
	Type               int     `json:"type"`
	OriginalClosePrice float64 `json:"original_close_price"`
}

// Save escribe el mapa completo de forma atómica.
func (s *StateFile) Save(m *domain.CorrespondenceMap) error {
	doc := stateDoc{
		Timestamp:           time.Now().Unix(),
		ClientPositions:     make(map[string]positionLinkDoc, len(m.Positions)),
		PendingOrders:       make(map[string]openOrderDoc, len(m.OpenOrders)),
		PendingCloseOrders:  make(map[string]int64, len(m.CloseOrders)),
		PendingCloseInfo:    make(map[string]closeOrderDoc, len(m.CloseDetails)),
		CloseOrderPositions: make(map[string]int64, len(m.CloseDetails)),
		DonorPendingOrders:  make(map[string]int64, len(m.PendingOrders)),
	}

	for donorTicket, link := range m.Positions {
		doc.ClientPositions[key(donorTicket)] = positionLinkDoc{
			ClientTicket:    link.ClientTicket,
			Symbol:          link.Symbol,
			Type:            link.Direction.WireCode(),
			DonorPriceOpen:  link.DonorPriceOpen,
			ClientPriceOpen: link.ClientPriceOpen,
			DonorTime:       link.DonorTime.Unix(),
			ClientTime:      link.ClientTime.Unix(),
			DonorMagic:      link.DonorMagic,
			ClientMagic:     link.ClientMagic,
			DonorComment:    link.DonorComment,
			ClientComment:   link.ClientComment,
		}
	}
	for orderTicket, o := range m.OpenOrders {
		doc.PendingOrders[key(orderTicket)] = openOrderDoc{
			DonorTicket:   o.DonorTicket,
			Symbol:        o.Symbol,
			Type:          o.Kind.WireCode(),
			OriginalPrice: o.OriginalPrice,
		}
	}
	for donorTicket, closeTicket := range m.CloseOrders {
		doc.PendingCloseOrders[key(donorTicket)] = closeTicket
	}
	for closeTicket, info := range m.CloseDetails {
		doc.PendingCloseInfo[key(closeTicket)] = closeOrderDoc{
			DonorTicket:        info.DonorTicket,
			Symbol:             info.Symbol,
			Type:               info.Kind.WireCode(),
			OriginalClosePrice: info.OriginalClosePrice,
		}
		doc.CloseOrderPositions[key(closeTicket)] = info.ClientPositionTicket
	}
	for donorOrder, clientOrder := range m.PendingOrders {
		doc.DonorPendingOrders[key(donorOrder)] = clientOrder
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("storage.StateFile.Save: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".sync_state-*.tmp")
	if err != nil {
		return fmt.Errorf("storage.StateFile.Save: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage.StateFile.Save: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage.StateFile.Save: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage.StateFile.Save: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage.StateFile.Save: rename: %w", err)
	}
	return nil
}

// Load lee el mapa persistido. Un fichero ausente devuelve (nil, nil); uno
// corrupto devuelve error para que el llamante decida arrancar vacío.
func (s *StateFile) Load() (*domain.CorrespondenceMap, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage.StateFile.Load: read: %w", err)
	}

	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("storage.StateFile.Load: parse: %w", err)
	}

	m := domain.NewCorrespondenceMap()
	for k, link := range doc.ClientPositions {
		donorTicket, err := parseKey(k)
		if err != nil {
			return nil, fmt.Errorf("storage.StateFile.Load: client_positions key %q: %w", k, err)
		}
		dir, err := domain.DirectionFromWire(link.Type)
		if err != nil {
			return nil, fmt.Errorf("storage.StateFile.Load: client_positions %q: %w", k, err)
		}
		m.Positions[donorTicket] = domain.PositionLink{
			ClientTicket:    link.ClientTicket,
			Symbol:          link.Symbol,
			Direction:       dir,
			DonorPriceOpen:  link.DonorPriceOpen,
			ClientPriceOpen: link.ClientPriceOpen,
			DonorTime:       time.Unix(link.DonorTime, 0),
			ClientTime:      time.Unix(link.ClientTime, 0),
			DonorMagic:      link.DonorMagic,
			ClientMagic:     link.ClientMagic,
			DonorComment:    link.DonorComment,
			ClientComment:   link.ClientComment,
		}
	}
	for k, o := range doc.PendingOrders {
		orderTicket, err := parseKey(k)
		if err != nil {
			return nil, fmt.Errorf("storage.StateFile.Load: pending_orders key %q: %w", k, err)
		}
		kind, err := domain.OrderKindFromWire(o.Type)
		if err != nil {
			return nil, fmt.Errorf("storage.StateFile.Load: pending_orders %q: %w", k, err)
		}
		m.OpenOrders[orderTicket] = domain.OpenOrderLink{
			DonorTicket:   o.DonorTicket,
			Symbol:        o.Symbol,
			Kind:          kind,
			OriginalPrice: o.OriginalPrice,
		}
	}
	for k, closeTicket := range doc.PendingCloseOrders {
		donorTicket, err := parseKey(k)
		if err != nil {
			return nil, fmt.Errorf("storage.StateFile.Load: pending_close_orders key %q: %w", k, err)
		}
		m.CloseOrders[donorTicket] = closeTicket
	}
	for k, info := range doc.PendingCloseInfo {
		closeTicket, err := parseKey(k)
		if err != nil {
			return nil, fmt.Errorf("storage.StateFile.Load: pending_close_orders_info key %q: %w", k, err)
		}
		kind, err := domain.OrderKindFromWire(info.Type)
		if err != nil {
			return nil, fmt.Errorf("storage.StateFile.Load: pending_close_orders_info %q: %w", k, err)
		}
		m.CloseDetails[closeTicket] = domain.CloseOrderInfo{
			DonorTicket:          info.DonorTicket,
			Symbol:               info.Symbol,
			Kind:                 kind,
			OriginalClosePrice:   info.OriginalClosePrice,
			ClientPositionTicket: doc.CloseOrderPositions[k],
		}
	}
	for k, clientOrder := range doc.DonorPendingOrders {
		donorOrder, err := parseKey(k)
		if err != nil {
			return nil, fmt.Errorf("storage.StateFile.Load: donor_pending_orders key %q: %w", k, err)
		}
		m.PendingOrders[donorOrder] = clientOrder
	}
	return m, nil
}

func key(ticket int64) string { return strconv.FormatInt(ticket, 10) }

func parseKey(k string) (int64, error) { return strconv.ParseInt(k, 10, 64) }

var _ ports.StateStore = (*StateFile)(nil)
