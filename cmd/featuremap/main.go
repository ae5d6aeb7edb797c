// Command featuremap builds the browser compatibility table for the feature
// catalog and, as a maintenance step, regenerates catalogs from a snapshot.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/shortontech/featurefp/internal/catalog"
	"github.com/shortontech/featurefp/internal/compat"
	"github.com/shortontech/featurefp/internal/probe"
	"github.com/shortontech/featurefp/internal/store"
	"github.com/shortontech/featurefp/pkg/config"
	"github.com/shortontech/featurefp/pkg/logger"
)

const usage = `usage: featuremap <command> [flags]

commands:
  build       fill the compatibility table from a dataset
  regenerate  seed a new catalog version from a table key and a snapshot
`

func main() {
	cfg := config.LoadBuilder()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetDefault(log)

	if err := run(context.Background(), os.Args[1:], cfg, log, os.Stderr); err != nil {
		log.Error("featuremap: failed", logger.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, cfg config.BuilderConfig, log logger.Logger, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("missing command")
	}
	switch args[0] {
	case "build":
		return runBuild(ctx, args[1:], cfg, log)
	case "regenerate":
		return runRegenerate(args[1:], log)
	case "-h", "--help", "help":
		fmt.Fprint(stderr, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

func runBuild(ctx context.Context, args []string, cfg config.BuilderConfig, log logger.Logger) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "compatibility dataset (JSON)")
	fs.StringSliceVar(&cfg.Roots, "roots", cfg.Roots, "dataset sections to read")
	fs.StringVar(&cfg.Browsers, "browsers", cfg.Browsers, "browser windows (YAML)")
	fs.StringVar(&cfg.Scope, "scope", cfg.Scope, "newline-delimited names; empty uses the default catalog")
	fs.StringVar(&cfg.Out, "out", cfg.Out, "output path for the table")
	fs.StringVar(&cfg.VersionPolicy, "policy", cfg.VersionPolicy, "version rounding: floor or ceil")
	fs.StringVar(&cfg.PGDSN, "pg-dsn", cfg.PGDSN, "publish the table to Postgres when set")
	fs.StringVar(&cfg.PGTable, "pg-table", cfg.PGTable, "Postgres table name")
	all := fs.Bool("all", false, "keep every dataset name; use the result with regenerate")
	tag := fs.String("tag", catalog.Default().Version(), "catalog tag the table is published under")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dataset, err := os.ReadFile(cfg.Dataset)
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	windows, err := compat.LoadWindows(cfg.Browsers)
	if err != nil {
		return err
	}
	policy, err := compat.PolicyByName(cfg.VersionPolicy)
	if err != nil {
		return err
	}
	scope := catalog.Default().Names()
	switch {
	case *all:
		scope = nil
	case cfg.Scope != "":
		if scope, err = compat.LoadScope(cfg.Scope); err != nil {
			return err
		}
	}

	start := time.Now()
	table, stats, err := compat.Builder{
		Roots:   cfg.Roots,
		Windows: windows,
		Scope:   scope,
		Policy:  policy,
	}.Build(dataset)
	if err != nil {
		return err
	}
	if err := table.WriteFile(cfg.Out); err != nil {
		return err
	}
	log.Info("featuremap: table written",
		logger.F("out", cfg.Out),
		logger.F("keys", table.Len()),
		logger.F("policy", policy.Name()),
		logger.F("records", stats.Records),
		logger.F("filled", stats.Filled),
		logger.F("no_compat", stats.NoCompat),
		logger.F("unknown_version", stats.Unknown),
		logger.F("dur", time.Since(start).String()))

	if cfg.PGDSN == "" {
		return nil
	}
	ts, err := store.Open(ctx, cfg.PGDSN, cfg.PGTable, log)
	if err != nil {
		return err
	}
	defer ts.Close()
	if err := ts.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err = ts.Publish(ctx, *tag, table)
	return err
}

func runRegenerate(args []string, log logger.Logger) error {
	fs := flag.NewFlagSet("regenerate", flag.ContinueOnError)
	tablePath := fs.String("table", "feature_map.json", "compatibility table built without a scope")
	key := fs.String("key", "", "table key of the reference browser, e.g. chrome112")
	snapshot := fs.String("snapshot", "", "snapshot JSON captured from the reference browser")
	version := fs.String("version", "", "tag for the new catalog")
	out := fs.String("out", "", "output path; stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" || *snapshot == "" || *version == "" {
		return fmt.Errorf("regenerate: --key, --snapshot and --version are required")
	}

	table, err := compat.LoadTable(*tablePath)
	if err != nil {
		return err
	}
	env, err := probe.LoadSnapshot(*snapshot)
	if err != nil {
		return err
	}
	cat, err := catalog.Regenerate(*version, table, *key, env)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}
	if err := cat.Write(w); err != nil {
		return err
	}
	log.Info("featuremap: catalog regenerated",
		logger.F("version", cat.Version()), logger.F("names", cat.Len()), logger.F("key", *key))
	return nil
}
