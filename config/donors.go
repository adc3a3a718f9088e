package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Tipos de fuente donante.
const (
	DonorTypePythonAPI = "python_api" // un segundo terminal manejado directamente
	DonorTypeSocketMT4 = "socket_mt4" // agente de feed empujando por TCP
	DonorTypeSocketMT5 = "socket_mt5"
)

// DonorEntry describe una cuenta donante a seguir.
type DonorEntry struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	AccountNumber int64  `json:"account_number"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	TerminalPath  string `json:"terminal_path"`
	Description   string `json:"description"`
}

// Addr devuelve el host:port en el que escucha un donante por socket.
func (d DonorEntry) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// DonorsConfig es el documento donors_config.json.
type DonorsConfig struct {
	Donors []DonorEntry `json:"donors"`
}

// LoadDonors lee y valida la lista de donantes.
func LoadDonors(path string) (*DonorsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadDonors: read %q: %w", path, err)
	}

	var cfg DonorsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.LoadDonors: parse JSON: %w", err)
	}

	if len(cfg.Donors) == 0 {
		return nil, fmt.Errorf("config.LoadDonors: no donors configured")
	}

	seen := make(map[string]bool, len(cfg.Donors))
	for i := range cfg.Donors {
		d := &cfg.Donors[i]
		if d.ID == "" {
			return nil, fmt.Errorf("config.LoadDonors: donor %d has no id", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("config.LoadDonors: duplicate donor id %q", d.ID)
		}
		seen[d.ID] = true
		if d.AccountNumber <= 0 {
			return nil, fmt.Errorf("config.LoadDonors: donor %q has no account_number", d.ID)
		}
		switch d.Type {
		case DonorTypePythonAPI:
		case DonorTypeSocketMT4, DonorTypeSocketMT5:
			if d.Port <= 0 {
				return nil, fmt.Errorf("config.LoadDonors: socket donor %q has no port", d.ID)
			}
			if d.Host == "" {
				d.Host = "localhost"
			}
		default:
			return nil, fmt.Errorf("config.LoadDonors: donor %q has unknown type %q", d.ID, d.Type)
		}
	}
	return &cfg, nil
}
