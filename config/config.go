package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config es la configuración completa del copiador, cargada de app_config.json.
type Config struct {
	ClientAccount ClientAccountConfig `json:"client_account"`
	Lot           LotConfig           `json:"lot_config"`
	Order         OrderConfig         `json:"order_config"`
	CheckInterval float64             `json:"check_interval"` // seconds
	CopyStyle     string              `json:"copy_style"`     // by_limits | by_market
	Storage       StorageConfig       `json:"storage"`
	Metrics       MetricsConfig       `json:"metrics"`
	Log           LogConfig           `json:"log"`
}

// ClientAccountConfig selecciona el terminal de la cuenta cliente.
type ClientAccountConfig struct {
	AccountNumber int64  `json:"account_number"`
	TerminalPath  string `json:"terminal_path"`
}

// LotConfig controla el tamaño de los lotes copiados.
type LotConfig struct {
	Mode   string  `json:"mode"` // fixed | proportion | autolot
	Value  float64 `json:"value"`
	MinLot float64 `json:"min_lot"`
	MaxLot float64 `json:"max_lot"`
}

// OrderConfig controla la colocación de órdenes.
type OrderConfig struct {
	MaxRetries        int   `json:"max_retries"`
	Magic             int64 `json:"magic"`
	OptimizeToMarket  bool  `json:"optimize_to_market"`
	LimitOffsetPoints int   `json:"limit_offset_points"`
	CopySLTP          bool  `json:"copy_sl_tp"`
	CopyPendingOrders bool  `json:"copy_pending_orders"`
	CopyDonorMagic    bool  `json:"copy_donor_magic"`
	CopyExisting      bool  `json:"copy_existing_positions"`
}

// StorageConfig controla dónde se persisten el estado y el diario.
type StorageConfig struct {
	StateFile  string `json:"state_file"`
	JournalDSN string `json:"journal_dsn"` // SQLite file, or ":memory:"
}

// MetricsConfig controla el listener de Prometheus. Addr vacío lo desactiva.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// LogConfig controla el formato y nivel del logging.
type LogConfig struct {
	Level  string `json:"level"`  // debug | info | warn | error
	Format string `json:"format"` // text | json
}

// Load lee el fichero JSON de configuración y el .env si existe. Las
// variables de entorno sobreescriben el fichero en las claves mapeadas.
func Load(path string) (*Config, error) {
	// Carga .env si existe (que falte no es un error)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse JSON: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// CheckIntervalDuration devuelve el intervalo de ciclo como time.Duration.
func (c *Config) CheckIntervalDuration() time.Duration {
	return time.Duration(c.CheckInterval * float64(time.Second))
}

// Validate rechaza configuraciones con las que el motor no puede arrancar.
func (c *Config) Validate() error {
	if c.ClientAccount.AccountNumber <= 0 {
		return fmt.Errorf("client_account.account_number is required")
	}
	switch c.Lot.Mode {
	case "fixed", "proportion", "autolot":
	default:
		return fmt.Errorf("lot_config.mode %q is not one of fixed, proportion, autolot", c.Lot.Mode)
	}
	if c.Lot.Value <= 0 {
		return fmt.Errorf("lot_config.value must be positive")
	}
	switch c.CopyStyle {
	case "by_limits", "by_market":
	default:
		return fmt.Errorf("copy_style %q is not one of by_limits, by_market", c.CopyStyle)
	}
	return nil
}

// applyEnvOverrides aplica las variables de entorno definidas.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("COPIER_STATE_FILE"); v != "" {
		cfg.Storage.StateFile = v
	}
	if v := os.Getenv("COPIER_JOURNAL_DSN"); v != "" {
		cfg.Storage.JournalDSN = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// setDefaults rellena valores sensatos para lo que quede sin definir.
func setDefaults(cfg *Config) {
	if cfg.Lot.Mode == "" {
		cfg.Lot.Mode = "fixed"
	}
	if cfg.Lot.Value <= 0 && cfg.Lot.Mode == "fixed" {
		cfg.Lot.Value = 0.01
	}
	if cfg.Lot.MinLot <= 0 {
		cfg.Lot.MinLot = 0.01
	}
	if cfg.Lot.MaxLot <= 0 {
		cfg.Lot.MaxLot = 100
	}
	if cfg.Order.MaxRetries <= 0 {
		cfg.Order.MaxRetries = 10
	}
	if cfg.Order.Magic == 0 {
		cfg.Order.Magic = 777
	}
	if cfg.Order.LimitOffsetPoints <= 0 {
		cfg.Order.LimitOffsetPoints = 2
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 0.5
	}
	if cfg.CopyStyle == "" {
		cfg.CopyStyle = "by_limits"
	}
	if cfg.Storage.StateFile == "" {
		cfg.Storage.StateFile = "sync_state.json"
	}
	if cfg.Storage.JournalDSN == "" {
		cfg.Storage.JournalDSN = "copier.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
