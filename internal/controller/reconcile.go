package controller

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/errdefs"
)

const managedDescription = "managed by yk-ipam-dns"

// Candidate is one rendered label for one IP.
type Candidate struct {
	Label string
	Value string
	Type  string
	// IPID is the inventory id of the source address, for logs.
	IPID int
}

// Policy controls how candidates are applied to a zone.
type Policy struct {
	MultiRecord bool
	DeleteStale bool
	DisablePTR  bool
	Tenant      string
}

// Result counts what a zone run did.
type Result struct {
	Created   int
	Unchanged int
	Skipped   int
	Deleted   int
	Failed    int
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Created += o.Created
	r.Unchanged += o.Unchanged
	r.Skipped += o.Skipped
	r.Deleted += o.Deleted
	r.Failed += o.Failed
}

// Reconciler applies candidate labels to a zone in two phases: every
// candidate is created if missing while the set of (name, value) pairs to
// keep is built up, then, only once the whole stream was applied and only
// when the policy asks for it, address records outside that set are swept.
type Reconciler struct {
	Store dns.Store
	Log   logr.Logger
}

// Reconcile creates every candidate in zone and, when p.DeleteStale is set,
// sweeps the zone's address records that no candidate produced. Store write
// failures are logged and counted; only cancellation or a failed listing for
// the sweep returns an error.
func (r *Reconciler) Reconcile(ctx context.Context, zone string, candidates []Candidate, p Policy) (Result, error) {
	log := r.Log.WithValues("zone", zone)
	var res Result

	valid := sets.New[dns.Key]()
	// label -> key kept for it, when one record per label is allowed
	owner := make(map[string]dns.Key)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("zone %s: stopped before sweep: %w", zone, err)
		}
		if c.Label == "" {
			log.Info("skipping address with empty label", "ipID", c.IPID, "value", c.Value)
			res.Skipped++
			continue
		}

		record := dns.Record{
			Zone:       zone,
			Name:       c.Label,
			Type:       c.Type,
			Value:      c.Value,
			Tenant:     p.Tenant,
			DisablePTR: p.DisablePTR,
			Meta:       map[string]string{"description": managedDescription},
		}

		var created bool
		err := dns.WithRetry(func() error {
			var err error
			created, err = r.Store.GetOrCreate(ctx, record)
			return err
		})
		switch {
		case err != nil:
			log.Error(errdefs.StoreWrite("create", err), "failed to create record", "name", c.Label, "type", c.Type, "value", c.Value)
			res.Failed++
		case created:
			log.Info("created record", "name", c.Label, "type", c.Type, "value", c.Value)
			res.Created++
		default:
			log.V(1).Info("record already present", "name", c.Label, "type", c.Type, "value", c.Value)
			res.Unchanged++
		}

		key := record.Key()
		if !p.MultiRecord {
			if prev, ok := owner[key.Name]; ok && prev != key {
				log.Info("label produced again, keeping the latest value", "name", c.Label, "dropped", prev.Value, "kept", c.Value)
				valid.Delete(prev)
			}
			owner[key.Name] = key
		}
		valid.Insert(key)
	}

	if !p.DeleteStale {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("zone %s: stopped before sweep: %w", zone, err)
	}
	return r.sweep(ctx, log, zone, valid, res)
}

// sweep deletes A and AAAA records of zone whose (name, value) is not in
// valid. Other record types are never touched.
func (r *Reconciler) sweep(ctx context.Context, log logr.Logger, zone string, valid sets.Set[dns.Key], res Result) (Result, error) {
	var existing []dns.Record
	err := dns.WithRetry(func() error {
		var err error
		existing, err = r.Store.List(ctx, zone)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("zone %s: listing records for sweep: %w", zone, err)
	}

	for _, rec := range existing {
		if !rec.IsAddress() || valid.Has(rec.Key()) {
			continue
		}
		if rec.Zone == "" {
			rec.Zone = zone
		}
		err := dns.WithRetry(func() error { return r.Store.Delete(ctx, rec) })
		if err != nil {
			log.Error(errdefs.StoreWrite("delete", err), "failed to delete stale record", "name", rec.Name, "type", rec.Type, "value", rec.Value)
			res.Failed++
			continue
		}
		log.Info("deleted stale record", "name", rec.Name, "type", rec.Type, "value", rec.Value)
		res.Deleted++
	}
	return res, nil
}
