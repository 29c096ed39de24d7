// Package cmd defines the listingcrawler command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/listing-crawler/internal/logging"
	"github.com/JakeFAU/listing-crawler/internal/shutdown"
)

// flagKeys maps command-line flags onto viper keys.
var flagKeys = map[string]string{
	"start-page":   "crawler.start_page",
	"end-page":     "crawler.end_page",
	"concurrent":   "crawler.concurrency",
	"output":       "export.output",
	"metrics-addr": "server.addr",
}

type rootOptions struct {
	configFile string
	clean      bool
}

// newRootCmd creates the root command. v receives the flag bindings.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:   "listingcrawler",
		Short: "Resumable crawler for real-estate listings",
		Long: `listingcrawler walks the paginated search results of a listing site,
collects every listing URL, then extracts each listing into a record.

Progress is checkpointed to disk. Interrupt the crawl with Ctrl+C and run
the same command again to resume where it stopped.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, v, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	flags.BoolVar(&opts.clean, "clean", false, "discard checkpoint and progress files and start fresh")
	flags.Int("start-page", 1, "directory page to start discovery from when not resuming")
	flags.Int("end-page", 0, "last directory page to walk (0 walks to the last page)")
	flags.Int("concurrent", 2, "number of listings fetched concurrently")
	flags.String("output", "listings", "base file name for the CSV and JSON export")
	flags.String("metrics-addr", "", "address for the status server, e.g. :9090 (disabled when empty)")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

func execute(cmd *cobra.Command, v *viper.Viper, opts rootOptions) error {
	cfg, err := config.LoadFrom(v, opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	runID := uuid.New().RunID()
	logger = logger.With(zap.String("run_id", runID))

	signal := shutdown.New()
	stop := signal.ListenOS(logger)
	defer stop()

	r := &runner{
		cfg:    cfg,
		fs:     afero.NewOsFs(),
		clean:  opts.clean,
		runID:  runID,
		signal: signal,
		logger: logger,
		out:    cmd.OutOrStdout(),
	}
	return r.run(cmd.Context())
}

// Execute is the main entry point.
func Execute() {
	_ = godotenv.Load()

	if err := newRootCmd(config.NewViper()).Execute(); err != nil {
		os.Exit(1)
	}
}
