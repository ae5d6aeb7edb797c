// Command featureprobe loads pages in headless Chrome, builds the feature
// report each page would send and posts it to the page's report endpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/shortontech/featurefp/internal/browser"
	"github.com/shortontech/featurefp/internal/compat"
	"github.com/shortontech/featurefp/internal/metrics"
	"github.com/shortontech/featurefp/internal/probe"
	"github.com/shortontech/featurefp/internal/report"
	"github.com/shortontech/featurefp/pkg/config"
	"github.com/shortontech/featurefp/pkg/logger"
)

type options struct {
	urls         []string
	snapshots    []string
	engine       bool
	engineScript string
	dryRun       bool
	snapshotDir  string
	namesTable   string
	namesKey     string
	wait         time.Duration
}

func main() {
	cfg := config.LoadProbe()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], cfg, log, os.Stdout); err != nil {
		log.Error("featureprobe: failed", logger.Err(err))
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("featureprobe", flag.ContinueOnError)
	fs.StringSliceVar(&o.urls, "url", nil, "page to load (repeatable)")
	fs.StringSliceVar(&o.snapshots, "from-snapshot", nil, "use a saved snapshot instead of loading a page (repeatable)")
	fs.BoolVar(&o.engine, "engine", false, "also run the external engine and send its report")
	fs.StringVar(&o.engineScript, "engine-script", "", "URL of the engine library when the page does not ship it")
	fs.BoolVar(&o.dryRun, "dry-run", false, "print reports instead of sending them")
	fs.StringVar(&o.snapshotDir, "save-snapshots", "", "directory to write captured snapshots to")
	fs.StringVar(&o.namesTable, "names-from-table", "", "compatibility table whose --key names are also tested, for regenerate")
	fs.StringVar(&o.namesKey, "key", "", "table key used with --names-from-table, e.g. chrome112")
	fs.DurationVar(&o.wait, "wait", 15*time.Second, "how long to wait for deliveries before exiting")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if len(o.urls) == 0 && len(o.snapshots) == 0 {
		return o, fmt.Errorf("nothing to probe: pass --url or --from-snapshot")
	}
	if o.engine && len(o.urls) == 0 {
		return o, fmt.Errorf("--engine needs a live page (--url)")
	}
	if (o.namesTable == "") != (o.namesKey == "") {
		return o, fmt.Errorf("--names-from-table and --key go together")
	}
	if o.namesTable != "" && len(o.urls) == 0 {
		return o, fmt.Errorf("--names-from-table needs a live page (--url)")
	}
	return o, nil
}

func run(ctx context.Context, args []string, cfg config.ProbeConfig, log logger.Logger, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	m := metrics.Default()
	plan := probe.DefaultPlan()
	plan.OnFault = func(check string, err error) {
		m.CheckFault(check, err)
		log.Debug("featureprobe: check faulted", logger.F("check", check), logger.Err(err))
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	client, err := report.NewClient(cfg.Timeout)
	if err != nil {
		return err
	}
	reporter := report.NewReporter(client, report.Options{Observer: m, Logger: log})
	p := &prober{plan: plan, reporter: reporter, opts: o, log: log, out: stdout}

	for _, path := range o.snapshots {
		env, err := probe.LoadSnapshot(path)
		if err != nil {
			return err
		}
		if err := p.report(env); err != nil {
			return err
		}
	}

	if o.namesTable != "" {
		if p.extra, err = tableNames(o.namesTable, o.namesKey); err != nil {
			return err
		}
	}

	if len(o.urls) > 0 {
		capturer := browser.NewCapturer(cfg, log)
		if err := capturer.Start(ctx); err != nil {
			return err
		}
		defer capturer.Close()
		for i, u := range o.urls {
			if err := p.probeURL(capturer, i, u); err != nil {
				log.Error("featureprobe: page failed", logger.F("url", u), logger.Err(err))
			}
		}
	}

	select {
	case <-reporter.Done():
	case <-time.After(o.wait):
		log.Warn("featureprobe: gave up waiting for deliveries", logger.F("wait", o.wait.String()))
	case <-ctx.Done():
	}
	return nil
}

type prober struct {
	plan     probe.Plan
	reporter *report.Reporter
	opts     options
	log      logger.Logger
	out      io.Writer
	// extra names to test for presence beyond the catalog
	extra []string
}

// tableNames returns the names of key in the table at path.
func tableNames(path, key string) ([]string, error) {
	table, err := compat.LoadTable(path)
	if err != nil {
		return nil, err
	}
	names, ok := table.Features(key)
	if !ok {
		return nil, fmt.Errorf("table %s has no key %q", path, key)
	}
	return names, nil
}

func (p *prober) probeURL(c *browser.Capturer, i int, url string) error {
	tab, cancel, err := c.Tab()
	if err != nil {
		return err
	}
	defer cancel()

	env, err := c.Capture(tab, url, p.plan, p.extra...)
	if err != nil {
		return err
	}
	if p.opts.snapshotDir != "" {
		if err := saveSnapshot(p.opts.snapshotDir, i, env); err != nil {
			return err
		}
	}
	if err := p.report(env); err != nil {
		return err
	}
	if !p.opts.engine {
		return nil
	}

	agent, err := browser.Engine{ScriptURL: p.opts.engineScript}.Load(tab)
	if err != nil {
		return err
	}
	res, err := agent.Get(tab)
	if err != nil {
		return err
	}
	rep := report.EngineReport{VisitedURL: env.Href(), VisitorID: res.VisitorID, Components: res.Components}
	if p.opts.dryRun {
		return p.print(rep)
	}
	return p.reporter.Visit(env.Href(), env.Cookie).SendEngine(rep)
}

func (p *prober) report(env *probe.Static) error {
	rep := probe.Collect(p.plan, env)
	if p.opts.dryRun {
		return p.print(rep)
	}
	if err := p.reporter.Visit(env.Href(), env.Cookie).SendFeatures(rep); err != nil {
		return fmt.Errorf("report for %s: %w", env.Href(), err)
	}
	p.log.Info("featureprobe: report queued", logger.F("url", env.Href()), logger.F("present", len(env.Present)))
	return nil
}

func (p *prober) print(v json.Marshaler) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.out, string(data))
	return err
}

func saveSnapshot(dir string, i int, env *probe.Static) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "snapshot-"+strconv.Itoa(i)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
