package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/util/workqueue"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/errdefs"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/inventory"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/naming"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/selection"
)

// Syncer runs every configured nameserver against the inventory, one zone at
// a time.
type Syncer struct {
	Store dns.Store
	Log   logr.Logger
	// Workers bounds the parallel render stage. Zero means one.
	Workers         int
	AllowNoneTenant bool
}

// Summary is the outcome of a full pass over all nameservers.
type Summary struct {
	Result
	Zones   int
	Skipped int
	Errors  int
}

// Sync runs all nameservers of cfg. A configuration error halts only the
// affected zone; the others still run and every such error is returned as
// one aggregate.
func (s *Syncer) Sync(ctx context.Context, cfg *config.Config, inv *inventory.Inventory) (Summary, error) {
	var (
		sum  Summary
		errs []error
	)
	for _, ns := range cfg.Nameservers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		job, err := cfg.Job(ns)
		if err == nil {
			var res Result
			res, err = s.SyncZone(ctx, job, inv)
			sum.Add(res)
		}
		switch {
		case err == nil:
			sum.Zones++
			zoneRunsTotal.WithLabelValues(ns.Name, "success").Inc()
		case errdefs.IsSkip(err):
			s.Log.Info("skipping nameserver", "nameserver", ns.Name, "reason", err.Error())
			sum.Skipped++
			zoneRunsTotal.WithLabelValues(ns.Name, "skipped").Inc()
		default:
			s.Log.Error(err, "zone run failed", "nameserver", ns.Name)
			sum.Errors++
			errs = append(errs, err)
			zoneRunsTotal.WithLabelValues(ns.Name, "error").Inc()
		}
	}
	return sum, utilerrors.NewAggregate(errs)
}

// SyncZone renders the job's targets and reconciles them into its zone.
func (s *Syncer) SyncZone(ctx context.Context, job config.Job, inv *inventory.Inventory) (Result, error) {
	if !job.Zone.Present {
		return Result{}, errdefs.Configuration("nameserver %q has no zone mapping; set zone to a name, or to null to skip it", job.Nameserver)
	}
	if job.Zone.IsNull() {
		return Result{}, errdefs.Skip("zone mapping is null")
	}
	if job.Tenant == nil && !s.AllowNoneTenant {
		return Result{}, errdefs.Skip("nameserver has no tenant and none-tenant is not allowed")
	}

	zone := dns.NormalizeZone(job.Zone.Name)
	log := s.Log.WithValues("nameserver", job.Nameserver, "zone", zone, "tenant", inventory.TenantName(job.Tenant))
	start := time.Now()
	defer func() { zoneRunDuration.WithLabelValues(zone).Observe(time.Since(start).Seconds()) }()

	renderer, err := naming.NewRenderer(job.Template, job.Filler)
	if err != nil {
		return Result{}, fmt.Errorf("nameserver %q: %w", job.Nameserver, err)
	}
	targets, err := selection.Select(inv, job.Strategy, job.Tenant)
	if err != nil {
		return Result{}, fmt.Errorf("nameserver %q: %w", job.Nameserver, err)
	}
	log.V(1).Info("selected addresses", "strategy", job.Strategy, "count", len(targets))

	candidates, err := s.render(ctx, log, job, renderer, inv, targets)
	if err != nil {
		return Result{}, fmt.Errorf("nameserver %q: %w", job.Nameserver, err)
	}

	rec := &Reconciler{Store: s.Store, Log: s.Log.WithName("reconcile")}
	res, err := rec.Reconcile(ctx, zone, candidates, Policy{
		MultiRecord: job.MultiRecord,
		DeleteStale: job.DeleteStale,
		DisablePTR:  job.DisablePTR,
		Tenant:      inventory.TenantName(job.Tenant),
	})
	res.observe(zone)
	if err != nil {
		return res, err
	}
	log.Info("zone synced", "created", res.Created, "unchanged", res.Unchanged, "skipped", res.Skipped,
		"deleted", res.Deleted, "failed", res.Failed)
	return res, nil
}

// render builds, renders and normalizes one candidate per target. Targets
// are independent, so the work is spread over the workers; results keep the
// target order. The first error (a region cycle or a template failure) wins.
func (s *Syncer) render(ctx context.Context, log logr.Logger, job config.Job, r *naming.Renderer, inv *inventory.Inventory, targets []selection.Target) ([]Candidate, error) {
	candidates := make([]Candidate, len(targets))
	errs := make([]error, len(targets))
	raws := make([]string, len(targets))

	workers := max(s.Workers, 1)
	workqueue.ParallelizeUntil(ctx, workers, len(targets), func(i int) {
		t := targets[i]
		nctx, err := naming.BuildContext(inv, t)
		if err != nil {
			errs[i] = fmt.Errorf("ip %d: %w", t.IP.ID, err)
			return
		}
		raw, err := r.Render(nctx)
		if err != nil {
			errs[i] = fmt.Errorf("ip %d: %w", t.IP.ID, err)
			return
		}
		label, _ := naming.Normalize(raw, naming.Clean(job.Filler), job.CollapseFiller)
		raws[i] = raw
		candidates[i] = Candidate{
			Label: label,
			Value: t.IP.String(),
			Type:  dns.RecordType(t.IP.Addr()),
			IPID:  t.IP.ID,
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, c := range candidates {
		if errs[i] != nil {
			return nil, errs[i]
		}
		log.V(1).Info("rendered label", "ipID", c.IPID, "address", c.Value, "owner", targets[i].Owner, "label", c.Label)
		if raws[i] != c.Label {
			log.Info("normalized label", "ipID", c.IPID, "rendered", raws[i], "label", c.Label)
			labelsNormalizedTotal.WithLabelValues(dns.NormalizeZone(job.Zone.Name)).Inc()
		}
	}
	return candidates, nil
}
