// Package app wires configuration into a ready pipeline orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/archive"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/extract"
	"github.com/joseph-ayodele/order-intake/internal/llm"
	"github.com/joseph-ayodele/order-intake/internal/location"
	"github.com/joseph-ayodele/order-intake/internal/ocr"
	"github.com/joseph-ayodele/order-intake/internal/ocr/vertex"
	"github.com/joseph-ayodele/order-intake/internal/pipeline"
	"github.com/joseph-ayodele/order-intake/internal/repository"
	"github.com/joseph-ayodele/order-intake/internal/runlock"
	"github.com/joseph-ayodele/order-intake/internal/tms"
)

// Options change how Build reaches its stores.
type Options struct {
	// SQLiteDSN, when set, replaces both Postgres databases with one SQLite
	// database carrying every table (":memory:" for throwaway runs).
	SQLiteDSN string
	// Extractor overrides the pdftotext/tesseract extractor.
	Extractor extract.DocumentExtractor
}

// App is a wired orchestrator plus the resources it holds open.
type App struct {
	Orchestrator *pipeline.Orchestrator
	Health       func(ctx context.Context) error

	closers []func() error
	logger  *slog.Logger
}

// Build opens the stores cfg names and wires every category strategy.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	tables := repository.Tables{
		Orders:          cfg.Tables.Orders,
		Locations:       cfg.Tables.Locations,
		RemoteOrders:    cfg.Tables.RemoteOrders,
		ReferenceNumber: cfg.Tables.ReferenceNumber,
	}
	storeDB, tmsDB, err := a.openDatabases(ctx, cfg, tables, opts.SQLiteDSN)
	if err != nil {
		return nil, err
	}
	orders := repository.NewOrderRepository(storeDB, tables.Orders, logger)
	remote := repository.NewTMSRepository(tmsDB, tables, cfg.TMS.CompanyID, logger)
	locations := repository.NewLocationRepository(tmsDB, tables.Locations, logger)

	extractor := opts.Extractor
	if extractor == nil {
		ex := ocr.NewExtractor(ocr.Config{TessdataDir: cfg.OCR.TessdataDir, DPI: cfg.OCR.DPI}, logger)
		extractor = extract.NewOCRAdapter(ex, logger)
	}
	fallback, err := a.openFallback(ctx, cfg.OCR, logger)
	if err != nil {
		return nil, err
	}

	archivers := make(map[constants.Category]tms.Archiver, len(cfg.Paths))
	for _, cat := range constants.AllCategories() {
		b, err := archive.Open(ctx, cfg.Archive, cfg.Paths[cat].Imaging, logger)
		if err != nil {
			return nil, fmt.Errorf("archive for %s: %w", cat, err)
		}
		a.closers = append(a.closers, b.Close)
		archivers[cat] = b
	}

	var locker runlock.Locker = runlock.Noop{}
	if cfg.Redis.Addr != "" {
		rl, rdb, err := runlock.Connect(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		locker = rl
	}

	api := tms.NewClient(tms.ClientConfig{
		BaseURL:   cfg.TMS.BaseURL,
		Username:  cfg.TMS.Username,
		Password:  cfg.TMS.Password,
		CompanyID: cfg.TMS.CompanyID,
		Timeout:   cfg.TMS.Timeout,
	}, nil, logger)

	strategies := pipeline.DefaultStrategies(cfg, pipeline.StrategyDeps{Extractor: extractor, Archivers: archivers}, logger)
	a.Orchestrator = pipeline.New(pipeline.Deps{
		Orders:    orders,
		Locations: locations,
		Remote:    remote,
		API:       api,
		Fallback:  fallback,
		Overrides: location.DefaultOverrides(),
		Locker:    locker,
		TZOffset:  cfg.TMS.TZOffset,
		Workers:   cfg.Submit.Workers,
	}, strategies, logger)
	a.Health = func(ctx context.Context) error {
		if err := orders.Ping(ctx); err != nil {
			return err
		}
		return remote.Ping(ctx)
	}
	logger.Info("app.ready",
		"env", cfg.Env,
		"fallback", cfg.OCR.Fallback,
		"archive", cfg.Archive.Backend,
		"run_lock", cfg.Redis.Addr != "",
		"submit_workers", cfg.Submit.Workers,
	)
	return a, nil
}

func (a *App) openDatabases(ctx context.Context, cfg *common.Config, tables repository.Tables, sqliteDSN string) (*repository.DB, *repository.DB, error) {
	if sqliteDSN != "" {
		db, err := repository.OpenSQLite(ctx, sqliteDSN, false)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error { repository.Close(db, a.logger); return nil })
		if err := repository.CreateSchema(ctx, db, tables); err != nil {
			return nil, nil, err
		}
		return db, db, nil
	}

	open := func(name string, dc common.DatabaseConfig) (*repository.DB, error) {
		db, err := repository.Open(ctx, repository.Config{
			DSN:              dc.DSN,
			MaxConns:         dc.MaxConns,
			MinConns:         dc.MinConns,
			MaxConnLifetime:  dc.MaxConnLifetime,
			MaxConnIdleTime:  dc.MaxConnIdleTime,
			DialTimeout:      dc.DialTimeout,
			StatementTimeout: dc.StatementTimeout,
			AppName:          "order-intake-" + name,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open %s database: %w", name, err)
		}
		a.closers = append(a.closers, func() error { repository.Close(db, a.logger); return nil })
		return db, nil
	}
	store, err := open("store", cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	remote, err := open("tms", cfg.TMSDatabase)
	if err != nil {
		return nil, nil, err
	}
	return store, remote, nil
}

func (a *App) openFallback(ctx context.Context, cfg common.OCRConfig, logger *slog.Logger) (extract.AddressFallback, error) {
	switch cfg.Fallback {
	case "":
		return nil, nil
	case "tesseract":
		return ocr.NewTesseractFallback(ocr.NewExtractor(ocr.Config{TessdataDir: cfg.TessdataDir, DPI: cfg.DPI}, logger)), nil
	case "vertex":
		f, err := vertex.New(ctx, cfg.VertexProject, cfg.VertexRegion, cfg.VertexModel, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f.Close)
		return f, nil
	case "openai":
		return llm.NewFallback(llm.Config{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel}, logger), nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown OCR fallback %q", cfg.Fallback), common.ErrInvalidInput)
	}
}

// Close releases everything Build opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
