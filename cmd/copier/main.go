package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/tradecopier/config"
	"github.com/alejandrodnm/tradecopier/internal/adapters/donor"
	"github.com/alejandrodnm/tradecopier/internal/adapters/metrics"
	"github.com/alejandrodnm/tradecopier/internal/adapters/notify"
	"github.com/alejandrodnm/tradecopier/internal/adapters/storage"
	"github.com/alejandrodnm/tradecopier/internal/adapters/terminal"
	"github.com/alejandrodnm/tradecopier/internal/application/engine"
	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

func main() {
	configPath := flag.String("config", "app_config.json", "path to engine config file")
	donorsPath := flag.String("donors", "donors_config.json", "path to donor roster file")
	driverName := flag.String("driver", "mt5", "terminal driver for the client account")
	once := flag.Bool("once", false, "run one reconciliation cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full link table per cycle (default: compact 1-line)")
	copyExisting := flag.Bool("copy-existing", false, "copy donor positions that predate this session")
	copyDonorMagic := flag.Bool("copy-donor-magic", false, "tag copies with the donor's magic instead of the engine's")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	donorsCfg, err := config.LoadDonors(*donorsPath)
	if err != nil {
		slog.Error("failed to load donor roster", "err", err, "path", *donorsPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *copyExisting {
		cfg.Order.CopyExisting = true
	}
	if *copyDonorMagic {
		cfg.Order.CopyDonorMagic = true
	}
	setupLogger(cfg.Log)

	slog.Info("tradecopier starting",
		"config", *configPath,
		"donors", len(donorsCfg.Donors),
		"account", cfg.ClientAccount.AccountNumber,
		"style", cfg.CopyStyle,
		"interval", cfg.CheckIntervalDuration(),
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := openClientGateway(ctx, cfg, *driverName)
	if err != nil {
		slog.Error("client terminal unusable", "err", err)
		os.Exit(1)
	}
	defer client.Close()

	manager := donor.NewManager()
	defer manager.DisconnectAll()
	for _, entry := range donorsCfg.Donors {
		src, err := buildDonorSource(entry, *driverName)
		if err != nil {
			slog.Error("donor source unusable", "donor", entry.ID, "err", err)
			continue
		}
		if err := manager.Add(ctx, src); err != nil {
			slog.Error("donor refused connection", "donor", entry.ID, "err", err)
		}
	}
	if manager.ConnectedCount() == 0 {
		slog.Error("no donor connected, nothing to copy")
		os.Exit(1)
	}

	store := storage.NewStateFile(cfg.Storage.StateFile)

	journal, err := storage.NewSQLiteJournal(cfg.Storage.JournalDSN)
	if err != nil {
		slog.Error("failed to open journal", "err", err, "dsn", cfg.Storage.JournalDSN)
		os.Exit(1)
	}
	defer journal.Close()

	var m ports.Metrics
	if cfg.Metrics.Addr != "" {
		prom := metrics.New()
		prom.Serve(cfg.Metrics.Addr)
		defer prom.Shutdown(context.Background())
		m = prom
	}

	eng := engine.New(client, manager, store, journal, notify.NewConsole(*table), m, engine.Config{
		Magic:          cfg.Order.Magic,
		CopyDonorMagic: cfg.Order.CopyDonorMagic,
		Style:          engine.CopyStyle(cfg.CopyStyle),
		Lot: domain.LotConfig{
			Mode:   domain.LotMode(cfg.Lot.Mode),
			Value:  cfg.Lot.Value,
			MinLot: cfg.Lot.MinLot,
			MaxLot: cfg.Lot.MaxLot,
		},
		MaxRetries:       cfg.Order.MaxRetries,
		OffsetPoints:     cfg.Order.LimitOffsetPoints,
		OptimizeToMarket: cfg.Order.OptimizeToMarket,
		CopySLTP:         cfg.Order.CopySLTP,
		CopyPending:      cfg.Order.CopyPendingOrders,
		CopyExisting:     cfg.Order.CopyExisting,
		CheckInterval:    cfg.CheckIntervalDuration(),
	})

	if err := eng.Start(ctx); err != nil {
		slog.Error("engine failed to start", "err", err)
		os.Exit(1)
	}

	if *once {
		report, err := eng.RunOnce(ctx)
		if err != nil {
			slog.Error("cycle failed", "err", err)
			os.Exit(1)
		}
		_ = notify.NewConsole(true).Notify(ctx, report)
		return
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("tradecopier stopped cleanly")
}

// openClientGateway opens the client terminal, wraps it in the serialized
// gateway and refuses to continue on an account without trading permission.
func openClientGateway(ctx context.Context, cfg *config.Config, driverName string) (*terminal.Gateway, error) {
	session, err := terminal.Open(driverName, terminal.SessionConfig{
		Path:          cfg.ClientAccount.TerminalPath,
		AccountNumber: cfg.ClientAccount.AccountNumber,
	})
	if err != nil {
		return nil, err
	}

	opts := terminal.Options{Label: "client"}
	if !cfg.Order.CopyDonorMagic {
		magic := cfg.Order.Magic
		opts.Magic = &magic
	}
	gw := terminal.NewGateway(session, opts)

	info, err := gw.VerifyTrading(ctx)
	if err != nil {
		gw.Close()
		return nil, err
	}
	slog.Info("client ready", "account", info.Login, "server", info.Server, "balance", info.Balance)
	return gw, nil
}

// buildDonorSource constructs the transport a donor entry asks for.
func buildDonorSource(entry config.DonorEntry, driverName string) (ports.DonorSource, error) {
	switch entry.Type {
	case config.DonorTypeSocketMT4:
		return donor.NewSocketMT4(entry.ID, entry.AccountNumber, entry.Host, entry.Port), nil
	case config.DonorTypeSocketMT5:
		return donor.NewSocketMT5(entry.ID, entry.AccountNumber, entry.Host, entry.Port), nil
	default: // python_api: a second terminal read in-process
		session, err := terminal.Open(driverName, terminal.SessionConfig{
			Path:          entry.TerminalPath,
			AccountNumber: entry.AccountNumber,
		})
		if err != nil {
			return nil, err
		}
		gw := terminal.NewGateway(session, terminal.Options{Label: entry.ID})
		return donor.NewTerminalSource(entry.ID, entry.AccountNumber, gw), nil
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
