package main

import (
	"fmt"
	"io"
	"os"
	"time"

	tui "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/keilerkonzept/harvestgraph/internal/config"
	"github.com/keilerkonzept/harvestgraph/internal/harvest"
	"github.com/keilerkonzept/harvestgraph/internal/heatmap"
	"github.com/keilerkonzept/harvestgraph/internal/ingest"
	"github.com/keilerkonzept/harvestgraph/internal/logging"
	"github.com/keilerkonzept/harvestgraph/internal/ramp"
	"github.com/keilerkonzept/harvestgraph/internal/window"
)

const (
	exitOK       = 0
	exitFatal    = 1
	exitTerminal = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("harvestgraph", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: harvestgraph [flags] <log-directory>")
		fs.PrintDefaults()
	}
	config.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitFatal
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitFatal
	}
	dir := fs.Arg(0)

	cfg, err := config.Load(fs)
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil {
		err = checkDir(dir)
	}
	if err != nil {
		fmt.Fprintln(stderr, "harvestgraph:", err)
		return exitFatal
	}

	logger, closeLog, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(stderr, "harvestgraph:", err)
		return exitFatal
	}
	defer closeLog()

	if !term.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(stderr, "harvestgraph: stdout is not an interactive terminal")
		return exitTerminal
	}

	if err := monitor(dir, cfg, logger); err != nil {
		level.Error(logger).Log("msg", "exiting", "err", err)
		fmt.Fprintln(stderr, "harvestgraph:", err)
		return exitFatal
	}
	return exitOK
}

func checkDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return errors.Wrap(err, "log directory")
	}
	if !fi.IsDir() {
		return errors.Errorf("%s is not a directory", dir)
	}
	return nil
}

// monitor backfills the window and runs the UI until a quit key or a fatal
// ingestion error.
func monitor(dir string, cfg *config.Config, logger log.Logger) error {
	now := time.Now()
	store, err := window.New(window.Config{
		Width:    cfg.BucketWidth,
		Buckets:  cfg.Buckets(),
		Capacity: cfg.BucketCapacity,
	}, now)
	if err != nil {
		return err
	}
	r, err := ramp.Named(cfg.Ramp)
	if err != nil {
		return err
	}
	parser := harvest.NewParser(harvest.Options{
		Process:  cfg.Process,
		Family:   cfg.Family,
		Location: time.Local,
	})
	mix := newFamilyMix(mixK, mixWindow, mixTick, mixFullRefresh)
	mix.advance(now)
	pipe := ingest.New(dir, parser, store, ingest.Options{
		Name:    cfg.LogName,
		MaxLine: cfg.MaxLine,
		Logger:  log.With(logger, "component", "ingest"),
		OnLine:  mix.observe,
	})
	defer pipe.Close()

	level.Info(logger).Log("msg", "monitoring", "dir", dir, "log", cfg.LogName, "buckets", store.Len(), "width", store.Width())
	if _, err := pipe.Backfill(cfg.MaxLogFiles); err != nil {
		return err
	}

	watcher, err := ingest.Watch(dir, cfg.LogName)
	if err != nil {
		return err
	}
	defer watcher.Close()

	opt := heatmap.DefaultOptions()
	opt.Ramp = r
	opt.Rate = cfg.Rate
	opt.Smoothing = cfg.Smoothing
	opt.Band = cfg.BandWidth

	m := newModel(modelOptions{
		Logger:    logger,
		Store:     store,
		Pipeline:  pipe,
		Watcher:   watcher,
		Mix:       mix,
		Painter:   painter{profile: termenv.NewOutput(os.Stdout).EnvColorProfile()},
		Heatmap:   opt,
		Poll:      cfg.Poll,
		ShowTrace: cfg.Trace,
		ShowStats: cfg.Stats,
	})
	opts := []tui.ProgramOption{tui.WithInputTTY()}
	if cfg.AltScreen {
		opts = append(opts, tui.WithAltScreen())
	}
	final, err := tui.NewProgram(m, opts...).Run()
	if err != nil {
		return errors.Wrap(err, "terminal")
	}
	if fm, ok := final.(*model); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
