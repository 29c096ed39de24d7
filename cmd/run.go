package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/listing-crawler/internal/api"
	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/export"
	"github.com/JakeFAU/listing-crawler/internal/extractor"
	collyfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/listing-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/listing-crawler/internal/shutdown"
	"github.com/JakeFAU/listing-crawler/internal/storage/postgres"
	"github.com/JakeFAU/listing-crawler/internal/store"
)

// runner executes one crawl invocation against a filesystem.
type runner struct {
	cfg    config.Config
	fs     afero.Fs
	clean  bool
	runID  string
	signal *shutdown.Signal
	logger *zap.Logger
	out    io.Writer
}

func (r *runner) run(ctx context.Context) error {
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.signal == nil {
		r.signal = shutdown.New()
	}
	storeCfg := r.cfg.StoreConfig()

	if r.clean {
		removed, err := store.Clear(r.fs, storeCfg)
		if err != nil {
			return fmt.Errorf("clean state: %w", err)
		}
		r.logger.Info("starting fresh", zap.Strings("removed", removed))
	}

	orch, err := r.buildOrchestrator(storeCfg)
	if err != nil {
		return err
	}

	res, serveErr := r.crawl(ctx, orch)

	if _, err := export.New(r.fs, r.logger.Named("export")).Write(r.cfg.Export.Output, r.cfg.Export.Formats, res.Records); err != nil {
		r.logger.Error("export failed", zap.Error(err))
	}
	if r.cfg.Postgres.DSN != "" {
		r.mirror(ctx, res.Records)
	}

	if res.Done() {
		removed, err := store.Clear(r.fs, storeCfg)
		if err != nil {
			r.logger.Warn("cleanup failed", zap.Error(err))
		} else {
			r.logger.Info("crawl complete, checkpoint removed", zap.Strings("removed", removed))
		}
	} else {
		r.logger.Info("progress saved, run again to resume",
			zap.String("checkpoint", storeCfg.CheckpointPath()),
			zap.Int("pending", res.Pending),
		)
	}

	r.summary(res)
	return serveErr
}

func (r *runner) buildOrchestrator(storeCfg store.Config) (*crawler.Orchestrator, error) {
	cfg := r.cfg
	checkpoints := store.NewCheckpointStore(r.fs, storeCfg.CheckpointPath(), r.logger.Named("store"))
	records := store.NewRecordStore(r.fs, storeCfg.ProgressPath(), r.logger.Named("store"))

	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.MaxRPS, Burst: 1})
	page := collyfetcher.New(collyfetcher.Config{
		UserAgent:          cfg.Crawler.UserAgent,
		AcceptLanguage:     cfg.Crawler.AcceptLanguage,
		Timeout:            cfg.HTTP.Timeout,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	}, limiter)
	fetcher := crawler.NewRetryingFetcher(page, cfg.RetryPolicy(), r.signal, r.logger.Named("fetcher"))

	ext, err := extractor.New(cfg.Crawler.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	pager := extractor.NewPager(cfg.Crawler.DirectoryURL, cfg.Crawler.PageParam)

	orch, err := crawler.NewOrchestrator(
		cfg.CrawlerSettings(),
		pager,
		fetcher,
		ext,
		checkpoints,
		records,
		r.signal,
		r.logger.Named("crawler"),
	)
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	return orch, nil
}

// crawl runs the orchestrator and, when configured, the status server. A
// server failure triggers a graceful stop of the crawl and is returned after
// the crawl has saved its state.
func (r *runner) crawl(ctx context.Context, orch *crawler.Orchestrator) (crawler.Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	r.signal.Watch(gctx)

	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	var res crawler.Result
	g.Go(func() error {
		defer stopServer()
		res = orch.Run(ctx)
		return nil
	})
	if addr := r.cfg.Server.Addr; addr != "" {
		srv := api.NewServer(orch, r.runID, r.logger.Named("api"))
		g.Go(func() error {
			return srv.Serve(serverCtx, addr)
		})
	}
	err := g.Wait()
	return res, err
}

func (r *runner) mirror(ctx context.Context, records []crawler.Record) {
	if len(records) == 0 {
		return
	}
	m, err := postgres.NewRecordMirror(ctx, postgres.Config{
		DSN:   r.cfg.Postgres.DSN,
		Table: r.cfg.Postgres.Table,
	}, r.logger.Named("postgres"))
	if err != nil {
		r.logger.Error("postgres mirror unavailable", zap.Error(err))
		return
	}
	defer m.Close()

	if err := m.EnsureTable(ctx); err != nil {
		r.logger.Error("postgres mirror failed", zap.Error(err))
		return
	}
	n, err := m.Mirror(ctx, r.runID, records)
	if err != nil {
		r.logger.Error("postgres mirror failed", zap.Int("written", n), zap.Error(err))
		return
	}
	r.logger.Info("records mirrored to postgres", zap.Int("written", n))
}

func (r *runner) summary(res crawler.Result) {
	if r.out == nil {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Crawl summary")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Phase", string(res.Phase)},
		{"Interrupted", res.Interrupted},
		{"Directory pages walked", res.Stats.PagesWalked},
		{"Directory pages failed", res.Stats.PagesFailed},
		{"URLs discovered", res.Stats.URLsDiscovered},
		{"Records extracted", res.Stats.Succeeded},
		{"Recovered on retry", res.Stats.Recovered},
		{"Failed", res.Stats.Failed},
		{"Pending", res.Pending},
		{"Records total", len(res.Records)},
	})
	t.Render()
}
