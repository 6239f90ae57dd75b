// Package main implements the CLI driver for the topcallers finder.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/topcallers/internal/analysis"
	"github.com/715d/topcallers/internal/config"
	"github.com/715d/topcallers/internal/telemetry"
	"github.com/715d/topcallers/internal/watch"
	"github.com/715d/topcallers/pkg/factstore"
	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/javasrc"
	"github.com/715d/topcallers/pkg/kb"
	"github.com/715d/topcallers/pkg/topcaller"
)

// Flags holds all command-line options. Settings that also exist in the
// configuration file only override it when given explicitly.
type Flags struct {
	Root         string // Java source tree to index
	Facts        string // prebuilt facts file instead of indexing
	Method       string // start method reference
	Statement    string // start MyBatis statement id
	ConfigFile   string // explicit configuration file
	Verbose      bool   // enables detailed output and statistics
	JSON         bool   // enables JSON output format
	Profile      bool   // enables CPU and memory profiling
	Trace        bool   // writes OpenTelemetry spans to stderr
	Watch        bool   // re-runs the query whenever sources change
	Progress     bool   // shows an indexing progress bar
	IncludeTests bool   // keeps top callers classified as tests
	PurgeCache   bool   // empties the fact store before indexing
	MaxDepth     int
	Workers      int
	CacheDir     string
	TestRoots    []string
}

const (
	exitNoneFound = 1
	exitError     = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var flags Flags

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "topcallers (--method REF | --statement ID) [--root DIR | --facts FILE]",
		Short: "Find the entry points that reach a Java method",
		Long: `topcallers walks the call graph of a Java code base backwards from a method
and reports the top callers: methods that nothing else calls.

Lambdas and anonymous classes are attributed to the method declaring them,
calls through interfaces reach only compatible implementations, and test
sources are ignored. A MyBatis statement id may be given instead of a method.`,
		Example: `  topcallers --method com.acme.OrderService.load         # Search the current directory
  topcallers --root ./shop --statement findById           # Start from a mapper statement
  topcallers --facts kb.yaml --method 'Repo.save(String)' # Use a prebuilt knowledge base
  topcallers --json --method com.acme.Repo.save > out.json
  topcallers --watch --method com.acme.Repo.save          # Re-run on every change`,
		Args:               cobra.NoArgs,
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("topcallers version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.Root, "root", "", "Java source tree to index (default: current directory)")
	pf.StringVar(&flags.Facts, "facts", "", "Load a facts file (YAML or JSON) instead of indexing sources")
	pf.StringVarP(&flags.Method, "method", "m", "", "Start method, e.g. com.acme.Repo.save(String)")
	pf.StringVarP(&flags.Statement, "statement", "s", "", "Start MyBatis statement id, e.g. findById or com.acme.OrderMapper.findById")
	pf.StringVarP(&flags.ConfigFile, "config", "c", "", "Configuration file (default: <root>/"+config.FileName+")")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&flags.JSON, "json", false, "Output in JSON format")
	pf.BoolVar(&flags.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	pf.BoolVar(&flags.Trace, "trace", false, "Write OpenTelemetry spans to stderr")
	pf.BoolVarP(&flags.Watch, "watch", "w", false, "Re-index and repeat the search whenever sources change")
	pf.BoolVar(&flags.Progress, "progress", true, "Show a progress bar while indexing")
	pf.BoolVar(&flags.IncludeTests, "include-tests", false, "Report top callers classified as tests")
	pf.BoolVar(&flags.PurgeCache, "purge-cache", false, "Empty the extraction cache before indexing")
	pf.IntVar(&flags.MaxDepth, "max-depth", topcaller.MaxDepth, "Maximum number of hops from the start method")
	pf.IntVarP(&flags.Workers, "workers", "j", runtime.NumCPU(), "Files parsed in parallel")
	pf.StringVar(&flags.CacheDir, "cache-dir", "", "Directory of the extraction cache, relative to the root")
	pf.StringSliceVar(&flags.TestRoots, "test-roots", nil, "Globs of test source roots excluded from the search")

	rootCmd.MarkFlagsMutuallyExclusive("method", "statement")
	rootCmd.MarkFlagsOneRequired("method", "statement")
	rootCmd.MarkFlagsMutuallyExclusive("facts", "watch")
	return rootCmd
}

func runCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errWithCode(err, exitError)
	}

	ctx := cmd.Context()
	shutdown, err := telemetry.Init(ctx, flags.Trace, os.Stderr)
	if err != nil {
		return errWithCode(err, exitError)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("flushing traces failed", "error", err)
		}
	}()

	app, err := newApp(cfg, cmd.OutOrStdout())
	if err != nil {
		return errWithCode(err, exitError)
	}
	defer app.Close()

	report, err := app.run(ctx)
	if err != nil {
		return errWithCode(err, exitError)
	}

	if flags.Watch {
		return app.watch(ctx)
	}
	if len(report.TopCallers) == 0 {
		return errWithCode(nil, exitNoneFound)
	}
	return nil
}

// loadConfig reads the configuration file of the root and applies the flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if flags.Root == "" && flags.Facts == "" {
		flags.Root = "."
	}
	cfg, err := config.Load(configRoot(), flags.ConfigFile)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("max-depth") {
		cfg.Search.MaxDepth = flags.MaxDepth
	}
	if changed("workers") {
		cfg.Index.Workers = flags.Workers
	}
	if changed("cache-dir") {
		cfg.Index.CacheDir = flags.CacheDir
	}
	if changed("test-roots") {
		cfg.Scope.TestRoots = flags.TestRoots
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func configRoot() string {
	if flags.Root != "" {
		return flags.Root
	}
	return filepath.Dir(flags.Facts)
}

// app holds what one invocation needs across searches.
type app struct {
	cfg    *config.Config
	out    io.Writer
	table  *functional.Table
	store  *factstore.Store
	live   *kb.Live
	finder *topcaller.Finder
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	table, err := cfg.FunctionalTable()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, out: out, table: table, live: kb.NewLive()}
	a.finder = topcaller.NewFinder(a.live, topcaller.Options{
		MaxDepth:   cfg.Search.MaxDepth,
		Functional: table,
	})

	if cfg.Index.CacheDir != "" && flags.Facts == "" {
		dir := cfg.Index.CacheDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(flags.Root, dir)
		}
		if a.store, err = factstore.Open(dir); err != nil {
			return nil, err
		}
		if flags.PurgeCache {
			if err := a.store.Purge(); err != nil {
				a.Close()
				return nil, err
			}
			slog.Info("extraction cache purged", "dir", dir)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.store == nil {
		return
	}
	hits, misses := a.store.Stats()
	slog.Debug("extraction cache", "hits", hits, "misses", misses)
	if err := a.store.Close(); err != nil {
		slog.Warn("closing extraction cache failed", "error", err)
	}
}

func (a *app) load(ctx context.Context, progress bool) (*topcaller.Loaded, error) {
	opts := topcaller.LoaderOptions{
		Root:      flags.Root,
		FactsFile: flags.Facts,
		TestRoots: a.cfg.Scope.TestRoots,
		Discover: javasrc.DiscoverOptions{
			Include:          a.cfg.Index.Include,
			Exclude:          a.cfg.Index.Exclude,
			MapperInclude:    a.cfg.Index.MapperInclude,
			RespectGitignore: a.cfg.Index.RespectGitignore,
		},
		Workers:    a.cfg.Index.Workers,
		Functional: a.table,
	}
	if a.store != nil {
		opts.Cache = a.store
	}
	if progress && flags.Progress && !flags.JSON && flags.Facts == "" {
		bar := newProgressBar(os.Stderr)
		defer bar.Finish()
		opts.Progress = bar.Update
	}
	loaded, err := topcaller.Load(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	return loaded, nil
}

// run loads the knowledge base, publishes it and prints the report.
func (a *app) run(ctx context.Context) (*Report, error) {
	loaded, err := a.load(ctx, true)
	if err != nil {
		return nil, err
	}
	a.live.Publish(loaded.Snapshot)
	return a.query(ctx, loaded)
}

func (a *app) query(ctx context.Context, loaded *topcaller.Loaded) (*Report, error) {
	starts, err := loaded.Targets(flags.Method, flags.Statement)
	if err != nil {
		return nil, fmt.Errorf("resolve start: %w", err)
	}
	report, err := search(ctx, a.finder, starts, flags.IncludeTests)
	if err != nil {
		return nil, err
	}
	report.Stats.Methods = len(loaded.Snapshot.Methods())
	report.Stats.Files = loaded.Files
	report.Stats.Cached = loaded.Cached
	report.Stats.LoadDuration = loaded.Duration
	report.Stats.Version = a.live.Version()

	if err := writeReport(a.out, report, flags.JSON, flags.Verbose); err != nil {
		return nil, fmt.Errorf("format results: %w", err)
	}
	return report, nil
}

func (a *app) watch(ctx context.Context) error {
	if flags.Root == "" {
		return errWithCode(fmt.Errorf("watch: a source root is required"), exitError)
	}
	w, err := watch.New(flags.Root, 0)
	if err != nil {
		return errWithCode(err, exitError)
	}
	defer w.Close()

	r := &watch.Reloader{
		Load:   func(ctx context.Context) (*topcaller.Loaded, error) { return a.load(ctx, false) },
		Live:   a.live,
		Caches: a.finder,
		After: func(ctx context.Context, loaded *topcaller.Loaded) {
			if _, err := a.query(ctx, loaded); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
	fmt.Fprintf(os.Stderr, "watching %s for changes, press Ctrl+C to stop\n", flags.Root)
	if err := w.Run(ctx, r.Reload); err != nil && !errors.Is(err, context.Canceled) {
		return errWithCode(err, exitError)
	}
	return nil
}

// search runs the finder from every start method and merges the reported
// top callers by method key.
func search(ctx context.Context, finder *topcaller.Finder, starts []*kb.MethodSymbol, includeTests bool) (*Report, error) {
	began := time.Now()
	report := &Report{}
	seen := make(map[string]struct{})
	var found []*analysis.MethodInfo
	for _, start := range starts {
		res, err := finder.Search(ctx, start)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", start.Ref(), err)
		}
		report.Start = append(report.Start, finder.Keys().MethodKey(start))
		report.Stats.Visited += res.Visited
		report.Stats.Failures += res.Failures
		report.Stats.Truncated = report.Stats.Truncated || res.Truncated
		for _, mi := range res.TopCallers {
			if _, dup := seen[mi.Key]; dup || !mi.ShouldReport(includeTests) {
				continue
			}
			seen[mi.Key] = struct{}{}
			found = append(found, mi)
		}
	}
	slices.SortFunc(found, func(a, b *analysis.MethodInfo) int { return strings.Compare(a.Key, b.Key) })
	report.TopCallers = make([]topcaller.TopCaller, len(found))
	for i, mi := range found {
		report.TopCallers[i] = topcaller.NewTopCaller(mi)
	}
	report.Stats.TopCallers = len(found)
	report.Stats.SearchDuration = time.Since(began)
	slog.Info("search completed",
		"starts", len(starts),
		"top_callers", len(found),
		"visited", report.Stats.Visited,
		"dur", report.Stats.SearchDuration)
	return report, nil
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if flags.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if flags.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !flags.Profile {
		return nil
	}

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		cpuProfile = nil
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !flags.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer func() {
		_ = cpuProfile.Close()
		cpuProfile = nil
	}()
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e codedError) Unwrap() error {
	return e.err
}
