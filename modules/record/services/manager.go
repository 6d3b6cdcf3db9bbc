package services

import (
	"context"
	"log"
	"time"

	"github.com/zekoder/zecore/modules/record/domain/ports"
	"github.com/zekoder/zecore/modules/record/domain/types"
	"github.com/zekoder/zecore/pkg/apperr"
	"github.com/zekoder/zecore/pkg/recordid"
)

// seams for tests
var (
	timeNow     = time.Now
	newRecordID = recordid.New
)

// Manager is the generic CRUD engine for one record type. Mutations run a
// two-phase hook protocol: the pre phase may rewrite the payload or veto the
// operation and its failures abort before persistence; the post phase runs
// after commit and its failures are logged and swallowed, since the persisted
// row is already the source of truth.
type Manager struct {
	store    ports.RecordStore
	desc     types.Descriptor
	identity types.Identity
	hooks    ports.Hooks
	query    types.Record
}

func NewManager(store ports.RecordStore, desc types.Descriptor, identity types.Identity, hooks ports.Hooks) *Manager {
	return &Manager{
		store:    store,
		desc:     desc,
		identity: identity,
		hooks:    hooks,
		query:    types.Record{},
	}
}

func (m *Manager) Descriptor() types.Descriptor { return m.desc }

// Filter accumulates equality constraints for a later All. Constraints are
// ANDed; a later key overrides an earlier one with the same name.
func (m *Manager) Filter(query types.Record) *Manager {
	m.query.Merge(query)
	return m
}

// Get returns the first record matching the accumulated constraints plus
// query. No match is not an error.
func (m *Manager) Get(ctx context.Context, query types.Record) (types.Record, bool, error) {
	m.query.Merge(query)
	return m.store.GetWhere(ctx, m.identity, m.desc, m.query)
}

// All fetches every row matching the accumulated constraints and then applies
// the window [offset*limit : (offset+1)*limit] in memory: offset is a page
// number, not a row offset. This intentionally differs from the query
// engine's skip, which is a raw row offset.
func (m *Manager) All(ctx context.Context, offset, limit int, query types.Record) ([]types.Record, error) {
	m.query.Merge(query)
	rows, err := m.store.SelectWhere(ctx, m.identity, m.desc, m.query)
	if err != nil {
		return nil, err
	}
	lo := offset * limit
	hi := (offset + 1) * limit
	if lo < 0 {
		lo = 0
	}
	if lo > len(rows) {
		lo = len(rows)
	}
	if hi < lo {
		hi = lo
	}
	if hi > len(rows) {
		hi = len(rows)
	}
	return rows[lo:hi], nil
}

// Create persists a new record. Client-supplied values for the audit columns
// are discarded and restamped from the session identity.
func (m *Manager) Create(ctx context.Context, modelData types.Record, signal *types.SignalPayload) (types.Record, error) {
	data := modelData.Clone()
	if data == nil {
		data = types.Record{}
	}
	if signal != nil {
		extra, err := m.preSave(ctx, signal)
		if err != nil {
			return nil, err
		}
		data.Merge(extra)
	}

	now := timeNow()
	data[types.ColumnID] = newRecordID()
	data[types.ColumnCreatedBy] = m.identity.UserID
	data[types.ColumnUpdatedBy] = m.identity.UserID
	data[types.ColumnCreatedOn] = now
	data[types.ColumnUpdatedOn] = now

	if err := m.checkUnique(ctx, data, ""); err != nil {
		return nil, err
	}

	created, err := m.store.Insert(ctx, m.identity, m.desc, data)
	if err != nil {
		return nil, err
	}

	if signal != nil {
		signal.NewData = created
		if err := m.postSave(ctx, signal); err != nil {
			log.Printf("record: post_save failed: resource=%s id=%v err=%v", m.desc.Name, created[types.ColumnID], err)
		}
	}
	return created, nil
}

// Update patches only the supplied fields. updated_by and updated_on are
// always refreshed.
func (m *Manager) Update(ctx context.Context, id string, modelData types.Record, signal *types.SignalPayload) (types.Record, error) {
	data := modelData.Clone()
	if data == nil {
		data = types.Record{}
	}
	if signal != nil {
		extra, err := m.preUpdate(ctx, signal)
		if err != nil {
			return nil, err
		}
		data.Merge(extra)
	}

	delete(data, types.ColumnID)
	delete(data, types.ColumnCreatedBy)
	delete(data, types.ColumnCreatedOn)
	data[types.ColumnUpdatedBy] = m.identity.UserID
	data[types.ColumnUpdatedOn] = timeNow()

	if err := m.checkUnique(ctx, data, id); err != nil {
		return nil, err
	}

	updated, found, err := m.store.Update(ctx, m.identity, m.desc, id, data)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NewNotFound(m.desc.Name, id)
	}

	if signal != nil {
		signal.NewData = updated
		if err := m.postUpdate(ctx, signal); err != nil {
			log.Printf("record: post_update failed: resource=%s id=%s err=%v", m.desc.Name, id, err)
		}
	}
	return updated, nil
}

// Delete removes the record with the given id. A pre_delete hook returning
// false makes this a silent no-op.
func (m *Manager) Delete(ctx context.Context, id string, signal *types.SignalPayload) error {
	if signal != nil {
		proceed, err := m.preDelete(ctx, signal)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
	}

	n, err := m.store.Delete(ctx, m.identity, m.desc, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NewNotFound(m.desc.Name, id)
	}

	if signal != nil {
		if err := m.postDelete(ctx, signal); err != nil {
			log.Printf("record: post_delete failed: resource=%s id=%s err=%v", m.desc.Name, id, err)
		}
	}
	return nil
}

// DeleteMultiple removes a batch of records, gated by a single pre_delete
// call. Unlike Delete, ids with no matching row do not raise NotFound: the
// batch deletes whatever exists and reports success.
func (m *Manager) DeleteMultiple(ctx context.Context, ids []string, signal *types.SignalPayload) error {
	if signal != nil {
		proceed, err := m.preDelete(ctx, signal)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
	}
	_, err := m.store.DeleteMany(ctx, m.identity, m.desc, ids)
	return err
}

// checkUnique verifies the descriptor's unique field groups before writing,
// so the common case surfaces as Conflict with field names without relying on
// the backend constraint alone. excludeID skips the row being updated.
func (m *Manager) checkUnique(ctx context.Context, data types.Record, excludeID string) error {
	for _, group := range m.desc.UniqueFields {
		where := types.Record{}
		complete := true
		for _, field := range group {
			v, ok := data[field]
			if !ok {
				complete = false
				break
			}
			where[field] = v
		}
		if !complete {
			continue
		}
		existing, found, err := m.store.GetWhere(ctx, m.identity, m.desc, where)
		if err != nil {
			return err
		}
		if found && (excludeID == "" || existing[m.desc.PrimaryKey] != excludeID) {
			return apperr.NewConflict(group...)
		}
	}
	return nil
}

func (m *Manager) preSave(ctx context.Context, p *types.SignalPayload) (types.Record, error) {
	if m.hooks.PreSave != nil {
		return m.hooks.PreSave(ctx, p)
	}
	return p.NewData, nil
}

func (m *Manager) postSave(ctx context.Context, p *types.SignalPayload) error {
	if m.hooks.PostSave != nil {
		return m.hooks.PostSave(ctx, p)
	}
	return nil
}

func (m *Manager) preUpdate(ctx context.Context, p *types.SignalPayload) (types.Record, error) {
	if m.hooks.PreUpdate != nil {
		return m.hooks.PreUpdate(ctx, p)
	}
	return p.NewData, nil
}

func (m *Manager) postUpdate(ctx context.Context, p *types.SignalPayload) error {
	if m.hooks.PostUpdate != nil {
		return m.hooks.PostUpdate(ctx, p)
	}
	return nil
}

func (m *Manager) preDelete(ctx context.Context, p *types.SignalPayload) (bool, error) {
	if m.hooks.PreDelete != nil {
		return m.hooks.PreDelete(ctx, p)
	}
	return true, nil
}

func (m *Manager) postDelete(ctx context.Context, p *types.SignalPayload) error {
	if m.hooks.PostDelete != nil {
		return m.hooks.PostDelete(ctx, p)
	}
	return nil
}
