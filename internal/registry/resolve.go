package registry

import (
	"context"
	"time"

	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/diag"
	"github.com/stellar-lua/stellar/internal/modtree"
)

// importCell records the single import attempt for one module name. The cell
// is created by whichever caller gets there first; everyone else waits on
// done and reads the same outcome.
type importCell struct {
	done  chan struct{}
	value any
	ok    bool
}

// Resolve returns the imported value for name, importing it on first use.
// If the name is not registered yet, Resolve waits for it to appear. A load
// that fails or panics is terminal: Resolve returns nil for that name, now
// and on every later call. Cancelling ctx abandons this caller's wait and
// returns nil; the import itself, once started, always runs to completion.
func (r *Registry) Resolve(ctx context.Context, name string) any {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	cell, unit := r.importCellFor(ctx, name)
	if cell == nil {
		return nil
	}
	if unit != nil {
		// This caller won the race to create the cell, so it owns starting
		// the import. The import is detached from the caller's cancellation:
		// other callers may still be waiting on it.
		go r.runImport(context.WithoutCancel(ctx), cell, unit)
	}

	select {
	case <-cell.done:
	case <-ctx.Done():
		return nil
	}
	diag.WarnIfSlow(logger, start, r.scaled(resolveSlowUnits), "Slow module resolution.", "name", name)
	if !cell.ok {
		return nil
	}
	return cell.value
}

// ResolveMany resolves each name in order and returns the values that
// resolved successfully, keyed by name. Failed names are simply absent.
func (r *Registry) ResolveMany(ctx context.Context, names ...string) map[string]any {
	logger := ctxlog.FromContext(ctx)
	out := make(map[string]any, len(names))
	for _, name := range names {
		start := time.Now()
		v := r.Resolve(ctx, name)
		diag.WarnIfSlow(logger, start, r.scaled(batchSlowUnits), "Batch resolution stalled on one module.", "name", name)
		if v != nil {
			out[name] = v
		}
	}
	return out
}

// importCellFor returns the import cell for name, waiting for the name to be
// registered if necessary. When this call is the one that created the cell,
// it also returns the unit to import; otherwise unit is nil. A cancelled ctx
// yields (nil, nil).
func (r *Registry) importCellFor(ctx context.Context, name string) (*importCell, *modtree.Unit) {
	if cell, unit, ok := r.claimImport(name); ok {
		return cell, unit
	}

	logger := ctxlog.FromContext(ctx)
	stop := diag.Watch(logger, r.scaled(appearSlowUnits),
		"Module is not registered; waiting for it to appear.",
		"Module appeared after a long wait.",
		"name", name)
	defer stop()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, nil
		}
		if cell, unit, ok := r.claimImport(name); ok {
			return cell, unit
		}
	}
}

// claimImport returns the existing cell for name, or creates one if the name
// is registered. ok is false while the name is still unknown.
func (r *Registry) claimImport(name string) (*importCell, *modtree.Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cell, ok := r.imports[name]; ok {
		return cell, nil, true
	}
	unit, ok := r.units[name]
	if !ok {
		return nil, nil, false
	}
	cell := &importCell{done: make(chan struct{})}
	r.imports[name] = cell
	return cell, unit, true
}

func (r *Registry) runImport(ctx context.Context, cell *importCell, unit *modtree.Unit) {
	logger := ctxlog.FromContext(ctx).With("name", unit.Name)
	defer close(cell.done)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Module load panicked.", "panic", rec)
		}
	}()

	value, err := unit.Load(ctx)
	if err != nil {
		logger.Error("Module load failed.", "error", err)
		return
	}
	cell.value = value
	cell.ok = true
	logger.Debug("Module loaded.")
}
