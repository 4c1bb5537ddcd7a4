package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/unitscout/internal/cache"
	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/engine"
	"github.com/IshaanNene/unitscout/internal/extract"
	"github.com/IshaanNene/unitscout/internal/fetcher"
	"github.com/IshaanNene/unitscout/internal/observability"
	"github.com/IshaanNene/unitscout/internal/storage"
	"github.com/IshaanNene/unitscout/internal/types"
)

var (
	runForce   bool
	runAll     bool
	runKeyword string
	runFilter  string

	listFilter string
	listJSON   bool

	exportFormat string
	exportOutput string
)

// app holds the wiring shared by the run, list and export commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *category.Registry
	metrics  *observability.Metrics
	store    storage.Store
	cache    *cache.RedisCache
	engine   *engine.Engine
	server   *http.Server
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   setupLogger(cfg.Logging),
		registry: category.Default(),
	}

	if cfg.Metrics.Enabled {
		a.metrics = observability.NewMetrics(a.logger)
		a.server = a.metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	a.store, err = storage.Open(ctx, cfg.Storage, a.logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Type, err)
	}

	var llm extract.Completer
	if client, err := extract.NewLLMClient(cfg.LLM, a.logger); err != nil {
		a.logger.Warn("extraction service unavailable, using heuristics only", "error", err)
	} else {
		llm = client
	}
	a.engine = engine.New(cfg, a.registry, a.store, llm, a.metrics, a.logger)

	if cfg.Cache.Enabled {
		c := cache.NewRedisCache(cfg.Cache, a.logger)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := c.Ping(pingCtx)
		cancel()
		if err != nil {
			a.logger.Warn("result cache unavailable", "addr", cfg.Cache.Addr, "error", err)
			c.Close()
		} else {
			a.cache = c
			a.engine.SetCache(c)
		}
	}

	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", "error", err)
		}
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
		}
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [category...]",
		Short: "Run the catalog workflow for one or more categories",
		Long: `Run the catalog workflow and print the result envelope as JSON.

Without --force the stored catalog is returned (through the result cache
when enabled). With --force the marketplace is scraped, new listings are
extracted, and the catalog is updated before the result is built.`,
		RunE: runRun,
	}

	cmd.Flags().BoolVarP(&runForce, "force", "f", false, "scrape instead of serving the stored catalog")
	cmd.Flags().BoolVar(&runAll, "all", false, "run every category")
	cmd.Flags().StringVarP(&runKeyword, "keyword", "k", "", "override the category search keyword")
	cmd.Flags().StringVar(&runFilter, "filter", "", "filter name (see 'unitscout categories')")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	if runAll == (len(args) > 0) {
		return errors.New("pass category names or --all")
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	opts := engine.RunOptions{
		Force:   runForce,
		Keyword: runKeyword,
		Filter:  category.Filter(runFilter),
	}

	var (
		results []*engine.Result
		runErr  error
	)
	work := func(ctx context.Context, src engine.Source) error {
		if runAll {
			results, runErr = a.engine.RunAll(ctx, src, opts)
			return nil
		}
		var errs []error
		for _, name := range args {
			res, err := a.engine.Run(ctx, src, name, opts)
			if res != nil {
				results = append(results, res)
			}
			if err != nil {
				errs = append(errs, err)
				if ctx.Err() != nil {
					break
				}
			}
		}
		runErr = errors.Join(errs...)
		return nil
	}

	if runForce {
		err = fetcher.WithSession(ctx, a.cfg.Fetcher, a.metrics, a.logger, func(ctx context.Context, s *fetcher.Session) error {
			return work(ctx, s)
		})
		if err != nil {
			return err
		}
	} else {
		work(ctx, nil)
	}

	if len(results) > 0 {
		if err := printJSON(results, len(args) == 1 && !runAll); err != nil {
			return err
		}
	}
	return runErr
}

// listCmd creates the "list" subcommand.
func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <category>",
		Short: "Show the stored catalog ranked by unit price",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}

	cmd.Flags().StringVar(&listFilter, "filter", "", "filter name (see 'unitscout categories')")
	cmd.Flags().BoolVar(&listJSON, "json", false, "print the result envelope as JSON")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.Run(ctx, nil, args[0], engine.RunOptions{Filter: category.Filter(listFilter)})
	if err != nil {
		return err
	}
	if listJSON {
		return printJSON([]*engine.Result{res}, true)
	}

	d, err := a.registry.Get(args[0])
	if err != nil {
		return err
	}
	printTable(d, res.Products)
	return nil
}

// exportCmd creates the "export" subcommand.
func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [category...]",
		Short: "Export stored catalogs to files",
		Long:  "Write each category's stored catalog, ranked by unit price, to <output>/<category>.<format>.",
		RunE:  runExport,
	}

	cmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json, jsonl, csv")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output directory (default storage.export_path)")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	dir := exportOutput
	if dir == "" {
		dir = a.cfg.Storage.ExportPath
	}

	descriptors := a.registry.All()
	if len(args) > 0 {
		descriptors = descriptors[:0:0]
		for _, name := range args {
			d, err := a.registry.Get(name)
			if err != nil {
				return err
			}
			descriptors = append(descriptors, d)
		}
	}

	for _, d := range descriptors {
		path, n, err := exportCategory(ctx, a, d, dir)
		if err != nil {
			return fmt.Errorf("export %s: %w", d.Name, err)
		}
		fmt.Printf("%-20s %4d records -> %s\n", d.Name, n, path)
	}
	return nil
}

func exportCategory(ctx context.Context, a *app, d *category.Descriptor, dir string) (string, int, error) {
	if err := a.store.Ensure(ctx, d); err != nil {
		return "", 0, err
	}
	records, err := a.store.Query(ctx, d, nil)
	if err != nil {
		return "", 0, err
	}

	exp, err := storage.NewExporter(exportFormat, dir, d, a.logger)
	if err != nil {
		return "", 0, err
	}
	if err := exp.Write(records); err != nil {
		exp.Close()
		return "", 0, err
	}
	if err := exp.Close(); err != nil {
		return "", 0, err
	}
	return exp.Path(), len(records), nil
}

func printJSON(results []*engine.Result, single bool) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if single {
		return enc.Encode(results[0])
	}
	return enc.Encode(results)
}

func printTable(d *category.Descriptor, records []*types.CatalogRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "#\tASIN\tPRICE\t%s\tSCORE\tTITLE\n", d.ScoreField)
	for i, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.ID, formatFloat(r.Price), formatFloat(r.UnitPrices[d.ScoreField]), formatFloat(r.TotalScore), shorten(r.Title, 40))
	}
	w.Flush()
	fmt.Printf("\n%d products\n", len(records))
}

func formatFloat(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
