// Package memory provides an in-memory implementation of transport.RepairStore
// for testing and lightweight deployments. Repairs are stored in memory and
// lost when the process restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/storage"
	"github.com/rhuss/remedy/pkg/transport"
)

// entry holds a stored repair and its metadata.
type entry struct {
	rep       *api.Repair
	tenantID  string
	deletedAt *time.Time
	lruElem   *list.Element // position in LRU list
}

// Store is an in-memory RepairStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements transport.RepairStore at compile time.
var _ transport.RepairStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest entry is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveRepair persists a new repair in memory.
func (s *Store) SaveRepair(ctx context.Context, rep *api.Repair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rep.ID]; exists {
		return storage.ErrConflict
	}

	tenantID := storage.GetTenant(ctx)

	// Evict if at capacity.
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(rep.ID)
	s.entries[rep.ID] = &entry{
		rep:      snapshot(rep),
		tenantID: tenantID,
		lruElem:  elem,
	}

	return nil
}

// GetRepair retrieves a repair by ID. Returns ErrNotFound if the repair
// does not exist or has been soft-deleted. Scoped by tenant when a tenant
// is present in the context.
func (s *Store) GetRepair(ctx context.Context, id string) (*api.Repair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil {
		return nil, storage.ErrNotFound
	}

	// Tenant scoping.
	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}

	return e.rep, nil
}

// UpdateRepair replaces a stored repair with a newer snapshot. Repairs are
// created in progress and updated as attempts complete, so updates touch
// the LRU position as well.
func (s *Store) UpdateRepair(ctx context.Context, rep *api.Repair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[rep.ID]
	if !ok || e.deletedAt != nil {
		return storage.ErrNotFound
	}

	// Tenant scoping.
	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return storage.ErrNotFound
	}

	e.rep = snapshot(rep)
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// DeleteRepair soft-deletes a repair. The entry remains in the map until
// evicted but is invisible to reads.
func (s *Store) DeleteRepair(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil {
		return storage.ErrNotFound
	}

	// Tenant scoping.
	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return storage.ErrNotFound
	}

	now := time.Now()
	e.deletedAt = &now
	return nil
}

// ListRepairs returns a paginated list of stored repairs filtered by
// tenant and optionally by status, with cursor-based pagination.
func (s *Store) ListRepairs(ctx context.Context, opts transport.ListOptions) (*transport.RepairList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := storage.GetTenant(ctx)

	// Collect matching entries.
	var matches []*api.Repair
	for _, e := range s.entries {
		if e.deletedAt != nil {
			continue
		}
		if tenantID != "" && e.tenantID != tenantID {
			continue
		}
		if opts.Status != "" && string(e.rep.Status) != opts.Status {
			continue
		}
		matches = append(matches, e.rep)
	}

	// Sort by created_at. Default is desc (newest first).
	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		if asc {
			if matches[i].CreatedAt != matches[j].CreatedAt {
				return matches[i].CreatedAt < matches[j].CreatedAt
			}
			return matches[i].ID < matches[j].ID
		}
		if matches[i].CreatedAt != matches[j].CreatedAt {
			return matches[i].CreatedAt > matches[j].CreatedAt
		}
		return matches[i].ID > matches[j].ID
	})

	// Apply cursor-based pagination.
	if opts.After != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	} else if opts.Before != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.Before {
				idx = i
				break
			}
		}
		if idx > 0 {
			matches = matches[:idx]
		} else {
			matches = nil
		}
	}

	// Apply limit.
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &transport.RepairList{
		Object:  "list",
		Data:    matches,
		HasMore: hasMore,
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	if result.Data == nil {
		result.Data = []*api.Repair{}
	}

	return result, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// snapshot copies a repair so the engine's later mutations never reach
// stored state. Stored snapshots are only ever replaced wholesale, so
// readers can share them without locking.
func snapshot(rep *api.Repair) *api.Repair {
	cp := *rep
	if rep.History != nil {
		cp.History = append([]api.AttemptRecord(nil), rep.History...)
	}
	return &cp
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
