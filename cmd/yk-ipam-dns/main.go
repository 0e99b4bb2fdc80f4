package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/controller"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
	_ "github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/providers"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/inventory"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/server"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/watch"
)

var Version = "dev"

type options struct {
	configPath  string
	once        bool
	interval    time.Duration
	watch       bool
	dryRun      bool
	strict      bool
	healthAddr  string
	metricsAddr string
}

func main() {
	defaultConfig := os.Getenv("SYNC_CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = config.DefaultPath
	}

	var o options
	flag.StringVar(&o.configPath, "config", defaultConfig, "Path to the sync configuration file.")
	flag.BoolVar(&o.once, "once", true, "Run a single sync pass and exit.")
	flag.DurationVar(&o.interval, "interval", 5*time.Minute, "Period between sync passes when -once=false.")
	flag.BoolVar(&o.watch, "watch", false, "Also re-sync when the configuration or inventory file changes (requires -once=false).")
	flag.BoolVar(&o.dryRun, "dry-run", false, "Compute the changes without writing to the record store.")
	flag.BoolVar(&o.strict, "strict", false, "Refuse to start when the sync config has any configuration error.")
	flag.StringVar(&o.healthAddr, "health-addr", ":8081", "Health probe address, or 0 to disable.")
	flag.StringVar(&o.metricsAddr, "metrics-addr", ":9090", "Metrics address, or 0 to disable.")

	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	if err := run(ctrl.SetupSignalHandler(), o); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	log := ctrl.Log.WithName("setup")

	log.Info("starting yk-ipam-dns", "version", Version)

	cfg, err := config.LoadFromPath(o.configPath)
	if err != nil {
		return fmt.Errorf("unable to load sync config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		if o.strict {
			return fmt.Errorf("invalid sync config: %w", err)
		}
		log.Info("sync config has problems, affected zones will fail", "problems", err.Error())
	}
	log.Info("loaded sync config", "path", o.configPath, "provider", cfg.Store.Provider, "nameservers", len(cfg.Nameservers))

	store, err := dns.NewStore(cfg.Store.Provider, ctrl.Log.WithName("store-"+cfg.Store.Provider), cfg.Store.Settings)
	if err != nil {
		return fmt.Errorf("unable to create record store: %w", err)
	}
	if o.dryRun {
		log.Info("dry run: no records will be written")
		store = dns.NewDryRun(store, ctrl.Log.WithName("dry-run"))
	}

	p := &pass{
		configPath: o.configPath,
		store:      store,
		log:        ctrl.Log.WithName("sync"),
	}

	if o.once {
		_, err := p.run(ctx)
		return err
	}

	srv := &server.Server{HealthAddr: o.healthAddr, MetricsAddr: o.metricsAddr, Log: ctrl.Log.WithName("server")}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error {
		wait.UntilWithContext(ctx, func(ctx context.Context) {
			sum, err := p.run(ctx)
			if err != nil {
				p.log.Error(err, "sync pass finished with errors")
			}
			if synced(sum, err) {
				srv.MarkReady()
			}
		}, o.interval)
		return nil
	})
	if o.watch {
		w := &watch.Watcher{
			Paths:   []string{o.configPath, cfg.InventoryPath()},
			Refresh: p.watchPaths,
			Log:     ctrl.Log.WithName("watch"),
		}
		g.Go(func() error {
			return w.Run(ctx, func(ctx context.Context) {
				if _, err := p.run(ctx); err != nil {
					p.log.Error(err, "sync pass finished with errors")
				}
			})
		})
	}

	log.Info("running as daemon", "interval", o.interval, "watch", o.watch)
	return g.Wait()
}

// synced reports whether a pass got far enough to count for readiness:
// either every zone ran cleanly or at least one zone was synced.
func synced(sum controller.Summary, err error) bool {
	return err == nil || sum.Zones > 0
}

// pass reloads configuration and inventory and runs one full sync. Passes
// from the interval loop and the watcher never overlap. Configuration
// problems are logged and left to the syncer, which fails only the affected
// zones.
type pass struct {
	configPath string
	store      dns.Store
	log        logr.Logger

	mu            sync.Mutex
	inventoryPath string
}

// watchPaths returns the config file and the inventory file of the last pass.
func (p *pass) watchPaths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := []string{p.configPath}
	if p.inventoryPath != "" {
		paths = append(paths, p.inventoryPath)
	}
	return paths
}

func (p *pass) run(ctx context.Context) (controller.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := config.LoadFromPath(p.configPath)
	if err != nil {
		return controller.Summary{}, fmt.Errorf("unable to load sync config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		p.log.Info("sync config has problems, affected zones will fail", "problems", err.Error())
	}
	p.inventoryPath = cfg.InventoryPath()
	inv, err := inventory.Load(p.inventoryPath)
	if err != nil {
		return controller.Summary{}, fmt.Errorf("unable to load inventory: %w", err)
	}

	syncer := &controller.Syncer{
		Store:           p.store,
		Log:             p.log,
		Workers:         cfg.Workers,
		AllowNoneTenant: cfg.AllowNoneTenant,
	}
	start := time.Now()
	sum, err := syncer.Sync(ctx, cfg, inv)
	p.log.Info("sync pass complete", "zones", sum.Zones, "skipped", sum.Skipped, "errors", sum.Errors,
		"created", sum.Created, "unchanged", sum.Unchanged, "deleted", sum.Deleted, "failed", sum.Failed,
		"duration", time.Since(start).String())
	return sum, err
}
