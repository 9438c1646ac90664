package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/lock"
	"github.com/auto-dns/dns-record-sync/internal/remote"
	"github.com/auto-dns/dns-record-sync/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Controller applies record changes to the local store and the remote
// provider. Creates and upserts are written locally first; deletes reach the
// provider first. Changes to the same record are serialized.
type Controller struct {
	store  store.Store
	remote remote.Client
	locker lock.Locker
	cfg    *config.AppConfig
	logger zerolog.Logger
}

func NewController(st store.Store, rc remote.Client, locker lock.Locker, cfg *config.AppConfig, logger zerolog.Logger) *Controller {
	return &Controller{
		store:  st,
		remote: rc,
		locker: locker,
		cfg:    cfg,
		logger: logger.With().Str("component", "controller").Logger(),
	}
}

func lockKey(owner, id string) string {
	return owner + "/" + id
}

// rrsetKey guards the name+type slot a create claims, so concurrent creates
// for the same record set see each other's writes.
func rrsetKey(rec domain.Record) string {
	return rec.Owner + "/rrset/" + canonical(rec.Domain) + "/" + string(rec.Type)
}

// Apply runs one change request to completion and reports which sides it reached.
func (c *Controller) Apply(ctx context.Context, req domain.ChangeRequest) domain.SyncOutcome {
	var out domain.SyncOutcome
	switch req.Action {
	case domain.ActionCreate:
		out = c.create(ctx, req.Record)
	case domain.ActionUpsert:
		out = c.upsert(ctx, req.Record, req.Patch)
	case domain.ActionDelete:
		out = c.delete(ctx, req.Record)
	default:
		out = localFailure(req.Action, req.Record, domain.StateAbsent,
			domain.NewValidationError("action", "unsupported action %q", req.Action))
	}
	c.report(out)
	return out
}

// Publish submits a record that is already committed locally, such as one
// inserted by a bulk import, to the provider. The stored copy is what gets
// published; a record removed since it was inserted is not sent.
func (c *Controller) Publish(ctx context.Context, rec domain.Record) domain.SyncOutcome {
	out := c.withLock(ctx, []string{lockKey(rec.Owner, rec.ID)}, domain.ActionCreate, rec, domain.StateLocalPending, func() domain.SyncOutcome {
		stored, err := c.store.Get(ctx, rec.ID, rec.Owner)
		if err != nil {
			return localFailure(domain.ActionCreate, rec, domain.StateAbsent, c.storeError("get", rec.ID, err))
		}
		return c.publish(ctx, domain.ActionCreate, stored, []remote.Change{remote.ChangeFor(domain.ActionCreate, stored)})
	})
	c.report(out)
	return out
}

func (c *Controller) create(ctx context.Context, rec domain.Record) domain.SyncOutcome {
	rec, err := c.prepare(rec)
	if err != nil {
		return localFailure(domain.ActionCreate, rec, domain.StateAbsent, err)
	}

	return c.withLock(ctx, []string{rrsetKey(rec)}, domain.ActionCreate, rec, domain.StateAbsent, func() domain.SyncOutcome {
		if rec.ID == "" {
			// A create without an id that matches a stored record is a replay of it.
			match, found, err := c.findReplay(ctx, rec)
			if err != nil {
				return localFailure(domain.ActionCreate, rec, domain.StateAbsent, err)
			}
			if found {
				rec.ID = match.ID
			} else {
				rec.ID = uuid.NewString()
			}
		}
		return c.withLock(ctx, []string{lockKey(rec.Owner, rec.ID)}, domain.ActionCreate, rec, domain.StateAbsent, func() domain.SyncOutcome {
			return c.createLocked(ctx, rec)
		})
	})
}

func (c *Controller) createLocked(ctx context.Context, rec domain.Record) domain.SyncOutcome {
	existing, err := c.store.Get(ctx, rec.ID, rec.Owner)
	switch {
	case err == nil:
		// A replayed create converges on the requested content.
		return c.replace(ctx, domain.ActionCreate, existing, rec)
	case !errors.Is(err, store.ErrNotFound):
		return localFailure(domain.ActionCreate, rec, domain.StateAbsent, &domain.LocalStoreError{Op: "get", Err: err})
	}

	if err := c.checkConflicts(ctx, rec); err != nil {
		return localFailure(domain.ActionCreate, rec, domain.StateAbsent, err)
	}
	saved, err := c.store.Create(ctx, rec)
	if err != nil {
		return localFailure(domain.ActionCreate, rec, domain.StateAbsent, &domain.LocalStoreError{Op: "create", Err: err})
	}
	return c.publish(ctx, domain.ActionCreate, saved, []remote.Change{remote.ChangeFor(domain.ActionCreate, saved)})
}

// findReplay looks for a stored record with the same name, type and value.
func (c *Controller) findReplay(ctx context.Context, rec domain.Record) (domain.Record, bool, error) {
	candidates, err := c.store.List(ctx, rec.Owner, store.Filter{Domain: rec.Domain, Type: rec.Type})
	if err != nil {
		return domain.Record{}, false, &domain.LocalStoreError{Op: "list", Err: err}
	}
	for _, r := range candidates {
		if canonical(r.Domain) == canonical(rec.Domain) && r.Type == rec.Type && r.Value == rec.Value {
			return r, true, nil
		}
	}
	return domain.Record{}, false, nil
}

// upsert replaces a stored record. With a patch, the patch is merged onto the
// record read under the lock rather than onto the caller's snapshot.
func (c *Controller) upsert(ctx context.Context, rec domain.Record, patch *domain.RecordPatch) domain.SyncOutcome {
	if rec.ID == "" {
		return localFailure(domain.ActionUpsert, rec, domain.StateAbsent, domain.NewValidationError("id", "upsert requires a record id"))
	}
	if patch == nil {
		var err error
		if rec, err = c.prepare(rec); err != nil {
			return localFailure(domain.ActionUpsert, rec, domain.StateLocalPending, err)
		}
	}

	return c.withLock(ctx, []string{lockKey(rec.Owner, rec.ID)}, domain.ActionUpsert, rec, domain.StateLocalPending, func() domain.SyncOutcome {
		existing, err := c.store.Get(ctx, rec.ID, rec.Owner)
		if err != nil {
			return localFailure(domain.ActionUpsert, rec, domain.StateAbsent, c.storeError("get", rec.ID, err))
		}
		next := rec
		if patch != nil {
			if next, err = c.prepare(patch.Apply(existing)); err != nil {
				return localFailure(domain.ActionUpsert, next, domain.StateLocalPending, err)
			}
		}
		return c.replace(ctx, domain.ActionUpsert, existing, next)
	})
}

// replace moves an existing record to rec's content. When the name or type
// changes, the old record set is removed in the same provider batch.
func (c *Controller) replace(ctx context.Context, action domain.ChangeAction, existing, rec domain.Record) domain.SyncOutcome {
	saved := existing
	if !existing.Equal(rec) {
		if !existing.SameRRSet(rec) {
			if err := c.checkConflicts(ctx, rec); err != nil {
				return localFailure(action, rec, domain.StateLocalPending, err)
			}
		}
		var err error
		saved, err = c.store.Update(ctx, rec.ID, rec.Owner, domain.PatchFrom(rec))
		if err != nil {
			return localFailure(action, rec, domain.StateLocalPending, c.storeError("update", rec.ID, err))
		}
	}

	changes := []remote.Change{remote.ChangeFor(action, saved)}
	if !existing.SameRRSet(saved) {
		changes = []remote.Change{
			remote.ChangeFor(domain.ActionDelete, existing),
			remote.ChangeFor(domain.ActionUpsert, saved),
		}
	}
	return c.publish(ctx, action, saved, changes)
}

// publish runs the remote stage for a record already written locally.
func (c *Controller) publish(ctx context.Context, action domain.ChangeAction, saved domain.Record, changes []remote.Change) domain.SyncOutcome {
	err := c.submit(ctx, changes)
	if errors.Is(err, remote.ErrRecordAbsent) && len(changes) > 1 {
		// The old record set is already gone; only the new one matters.
		err = c.submit(ctx, changes[1:])
	}
	if err != nil {
		return domain.SyncOutcome{
			Action:      action,
			Status:      domain.StatusLocalOnly,
			State:       domain.StateLocalPending,
			FailedStage: domain.StageRemote,
			Record:      saved,
			Err:         c.remoteError(err),
		}
	}
	return domain.SyncOutcome{
		Action: action,
		Status: domain.StatusBothApplied,
		State:  domain.StateSynced,
		Record: saved,
	}
}

func (c *Controller) delete(ctx context.Context, rec domain.Record) domain.SyncOutcome {
	if rec.ID == "" || rec.Owner == "" {
		return localFailure(domain.ActionDelete, rec, domain.StateAbsent, domain.NewValidationError("id", "delete requires a record id and owner"))
	}

	return c.withLock(ctx, []string{lockKey(rec.Owner, rec.ID)}, domain.ActionDelete, rec, domain.StateSynced, func() domain.SyncOutcome {
		existing, err := c.store.Get(ctx, rec.ID, rec.Owner)
		if err != nil {
			return localFailure(domain.ActionDelete, rec, domain.StateAbsent, c.storeError("get", rec.ID, err))
		}

		err = c.submit(ctx, []remote.Change{remote.ChangeFor(domain.ActionDelete, existing)})
		if errors.Is(err, remote.ErrRecordAbsent) {
			c.logger.Debug().Str("record_id", existing.ID).Msg("Record already absent at provider")
			err = nil
		}
		if err != nil {
			return domain.SyncOutcome{
				Action:      domain.ActionDelete,
				Status:      domain.StatusBothFailed,
				State:       domain.StateSynced,
				FailedStage: domain.StageRemote,
				Record:      existing,
				Err:         c.remoteError(err),
			}
		}

		if err := c.store.Delete(ctx, existing.ID, existing.Owner); err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.SyncOutcome{
				Action:      domain.ActionDelete,
				Status:      domain.StatusRemoteOnly,
				State:       domain.StateRemotePendingDelete,
				FailedStage: domain.StageLocal,
				Record:      existing,
				Err:         &domain.DivergenceError{RecordID: existing.ID, Err: &domain.LocalStoreError{Op: "delete", Err: err}},
			}
		}
		return domain.SyncOutcome{
			Action: domain.ActionDelete,
			Status: domain.StatusBothApplied,
			State:  domain.StateAbsent,
			Record: existing,
		}
	})
}

// withLock runs fn while holding keys. A lock that cannot be taken fails the
// change before either side is touched. Nested calls take the record set key
// before the record key.
func (c *Controller) withLock(ctx context.Context, keys []string, action domain.ChangeAction, rec domain.Record, state domain.RecordState, fn func() domain.SyncOutcome) domain.SyncOutcome {
	var out domain.SyncOutcome
	err := c.locker.LockTransaction(ctx, keys, func() error {
		out = fn()
		return nil
	})
	if err != nil {
		return localFailure(action, rec, state, &domain.LocalStoreError{Op: "lock", Err: err})
	}
	return out
}

// submit sends one batch to the provider, bounded by the remote timeout.
func (c *Controller) submit(ctx context.Context, changes []remote.Change) error {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.RemoteTimeout)
	defer cancel()
	err := c.remote.Apply(tctx, changes)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("no response within %s: %w", c.cfg.RemoteTimeout, err)
	}
	return err
}

func (c *Controller) prepare(rec domain.Record) (domain.Record, error) {
	if rec.TTL == 0 {
		rec.TTL = c.cfg.DefaultTTL
	}
	rec = domain.Normalize(rec)
	return rec, domain.ValidateRecord(rec)
}

func (c *Controller) checkConflicts(ctx context.Context, rec domain.Record) error {
	neighbours, err := c.store.List(ctx, rec.Owner, store.Filter{Domain: rec.Domain})
	if err != nil {
		return &domain.LocalStoreError{Op: "list", Err: err}
	}
	if rec.IsCNAME() {
		cnames, err := c.store.List(ctx, rec.Owner, store.Filter{Type: domain.RecordCNAME})
		if err != nil {
			return &domain.LocalStoreError{Op: "list", Err: err}
		}
		seen := make(map[string]struct{}, len(neighbours))
		for _, r := range neighbours {
			seen[r.ID] = struct{}{}
		}
		for _, r := range cnames {
			if _, ok := seen[r.ID]; !ok {
				neighbours = append(neighbours, r)
			}
		}
	}
	return CheckConflicts(rec, neighbours, c.logger)
}

func (c *Controller) storeError(op, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &domain.NotFoundError{ID: id}
	}
	return &domain.LocalStoreError{Op: op, Err: err}
}

func (c *Controller) remoteError(err error) error {
	return &domain.RemoteProviderError{Provider: c.remote.Name(), Zone: c.remote.Zone(), Err: err}
}

func localFailure(action domain.ChangeAction, rec domain.Record, state domain.RecordState, err error) domain.SyncOutcome {
	return domain.SyncOutcome{
		Action:      action,
		Status:      domain.StatusBothFailed,
		State:       state,
		FailedStage: domain.StageLocal,
		Record:      rec,
		Err:         err,
	}
}

func (c *Controller) report(out domain.SyncOutcome) {
	evt := c.logger.Info()
	switch {
	case domain.IsDivergence(out.Err):
		evt = c.logger.Error().Bool("divergence", true)
	case domain.IsValidation(out.Err) || domain.IsNotFound(out.Err):
		evt = c.logger.Debug()
	case out.Err != nil:
		evt = c.logger.Warn()
	}
	evt.Err(out.Err).
		Str("action", string(out.Action)).
		Str("record_id", out.Record.ID).
		Str("owner", out.Record.Owner).
		Str("status", string(out.Status)).
		Str("state", string(out.State)).
		Msg(out.Record.Render())
}
