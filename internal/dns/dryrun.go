package dns

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

// DryRun wraps a store so that reads go through and writes are only logged.
// GetOrCreate still reports whether a record would have been created, so a
// dry run produces the same counts as a real one.
type DryRun struct {
	Store Store
	Log   logr.Logger

	mu      sync.Mutex
	planned map[string]map[Key]bool
}

// NewDryRun wraps store.
func NewDryRun(store Store, log logr.Logger) *DryRun {
	return &DryRun{Store: store, Log: log, planned: make(map[string]map[Key]bool)}
}

func (d *DryRun) List(ctx context.Context, zone string) ([]Record, error) {
	return d.Store.List(ctx, zone)
}

func (d *DryRun) GetOrCreate(ctx context.Context, record Record) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	zone := NormalizeZone(record.Zone)
	seen, ok := d.planned[zone]
	if !ok {
		records, err := d.Store.List(ctx, record.Zone)
		if err != nil {
			return false, err
		}
		seen = make(map[Key]bool, len(records))
		for _, r := range records {
			seen[typedKey(r)] = true
		}
		d.planned[zone] = seen
	}

	k := typedKey(record)
	if seen[k] {
		return false, nil
	}
	seen[k] = true
	d.Log.Info("dry run: would create record", "zone", record.Zone, "name", record.Name, "type", record.Type, "value", record.Value)
	return true, nil
}

func (d *DryRun) Delete(_ context.Context, record Record) error {
	d.Log.Info("dry run: would delete record", "zone", record.Zone, "name", record.Name, "type", record.Type, "value", record.Value)
	return nil
}

// typedKey folds the type into the value so A and AAAA with the same text
// never collide.
func typedKey(r Record) Key {
	k := r.Key()
	k.Value = r.Type + " " + k.Value
	return k
}
