package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/locking"
	"reliefops/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is a transactional in-memory implementation of every repository.
// Writers take the same per-entity locks the PostgreSQL scope takes with
// SELECT ... FOR UPDATE; writes are buffered per transaction and applied on commit.
type MemoryStore struct {
	mu       sync.RWMutex
	locks    *locking.Manager
	lockWait time.Duration

	resources    map[uuid.UUID]models.Resource
	lines        map[uuid.UUID]models.InventoryLine
	lineIndex    map[string]uuid.UUID
	reservations map[uuid.UUID]models.Reservation
	requests     map[uuid.UUID]models.Request
	allocations  map[uuid.UUID]models.Allocation
	donations    map[uuid.UUID]models.Donation
	receipts     map[string]uuid.UUID
	disasters    map[uuid.UUID]models.Disaster
	teams        map[uuid.UUID]models.ReliefTeam
	volunteers   map[uuid.UUID]models.Volunteer
	audit        []models.AuditEntry
	auditSeq     int64

	auditInterceptor func(*models.AuditEntry) error
}

func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	return &MemoryStore{
		locks:        locking.NewManager(),
		lockWait:     lockWait,
		resources:    make(map[uuid.UUID]models.Resource),
		lines:        make(map[uuid.UUID]models.InventoryLine),
		lineIndex:    make(map[string]uuid.UUID),
		reservations: make(map[uuid.UUID]models.Reservation),
		requests:     make(map[uuid.UUID]models.Request),
		allocations:  make(map[uuid.UUID]models.Allocation),
		donations:    make(map[uuid.UUID]models.Donation),
		receipts:     make(map[string]uuid.UUID),
		disasters:    make(map[uuid.UUID]models.Disaster),
		teams:        make(map[uuid.UUID]models.ReliefTeam),
		volunteers:   make(map[uuid.UUID]models.Volunteer),
	}
}

// SetAuditInterceptor installs fn to run before each audit write; a non-nil
// error fails the write. Used to exercise audit failure paths.
func (s *MemoryStore) SetAuditInterceptor(fn func(*models.AuditEntry) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditInterceptor = fn
}

func (s *MemoryStore) DefaultLockWait() time.Duration {
	return s.lockWait
}

func (s *MemoryStore) Execute(ctx context.Context, lockWait time.Duration, fn func(ctx context.Context, repos Repos) error) (err error) {
	if lockWait <= 0 {
		lockWait = s.lockWait
	}
	tx := newMemTx(s, lockWait)
	defer func() {
		if p := recover(); p != nil {
			tx.session.ReleaseAll()
			panic(p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		tx.session.ReleaseAll()
		return err
	}

	s.commit(tx)
	tx.session.ReleaseAll()
	for _, hook := range tx.afterCommit {
		hook()
	}
	return nil
}

func (s *MemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range tx.resources {
		s.resources[id] = v
	}
	for id, v := range tx.lines {
		s.lines[id] = v
	}
	for k, id := range tx.lineIndex {
		s.lineIndex[k] = id
	}
	for id, v := range tx.reservations {
		s.reservations[id] = v
	}
	for id, v := range tx.requests {
		s.requests[id] = v
	}
	for id, v := range tx.allocations {
		s.allocations[id] = v
	}
	for id, v := range tx.donations {
		s.donations[id] = v
	}
	for k, id := range tx.receipts {
		s.receipts[k] = id
	}
	for id, v := range tx.disasters {
		s.disasters[id] = v
	}
	for id, v := range tx.teams {
		s.teams[id] = v
	}
	for id, v := range tx.volunteers {
		s.volunteers[id] = v
	}
	if len(tx.deletedAudit) > 0 {
		kept := s.audit[:0]
		for _, e := range s.audit {
			if _, gone := tx.deletedAudit[e.ID]; !gone {
				kept = append(kept, e)
			}
		}
		s.audit = kept
	}
	for _, e := range tx.audit {
		s.auditSeq++
		e.Seq = s.auditSeq
		s.audit = append(s.audit, e)
	}
}

// Seed helpers write committed state directly, bypassing audit.

func (s *MemoryStore) SeedResource(r models.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.ID] = r
}

func (s *MemoryStore) SeedLine(l models.InventoryLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[l.ID] = l
	s.lineIndex[lineKey(l.ResourceID, l.WarehouseLocation)] = l.ID
}

func (s *MemoryStore) SeedRequest(r models.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
}

func (s *MemoryStore) SeedAllocation(a models.Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[a.ID] = a
}

func (s *MemoryStore) SeedReservation(r models.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = r
}

func (s *MemoryStore) SeedDisaster(d models.Disaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disasters[d.ID] = d
}

func (s *MemoryStore) SeedTeam(t models.ReliefTeam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[t.ID] = t
}

func (s *MemoryStore) SeedVolunteer(v models.Volunteer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volunteers[v.ID] = v
}

func (s *MemoryStore) SeedAuditEntry(e models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditSeq++
	e.Seq = s.auditSeq
	s.audit = append(s.audit, e)
}

// AuditEntries returns a copy of the committed audit log in insertion order.
func (s *MemoryStore) AuditEntries() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

func lineKey(resourceID uuid.UUID, warehouse string) string {
	return resourceID.String() + "|" + warehouse
}

func entityKey(kind string, id uuid.UUID) string {
	return kind + ":" + id.String()
}

type memTx struct {
	s       *MemoryStore
	session *locking.Session
	wait    time.Duration

	resources    map[uuid.UUID]models.Resource
	lines        map[uuid.UUID]models.InventoryLine
	lineIndex    map[string]uuid.UUID
	reservations map[uuid.UUID]models.Reservation
	requests     map[uuid.UUID]models.Request
	allocations  map[uuid.UUID]models.Allocation
	donations    map[uuid.UUID]models.Donation
	receipts     map[string]uuid.UUID
	disasters    map[uuid.UUID]models.Disaster
	teams        map[uuid.UUID]models.ReliefTeam
	volunteers   map[uuid.UUID]models.Volunteer
	audit        []models.AuditEntry
	deletedAudit map[uuid.UUID]struct{}
	afterCommit  []func()
}

func newMemTx(s *MemoryStore, wait time.Duration) *memTx {
	return &memTx{
		s:            s,
		session:      s.locks.NewSession(),
		wait:         wait,
		resources:    make(map[uuid.UUID]models.Resource),
		lines:        make(map[uuid.UUID]models.InventoryLine),
		lineIndex:    make(map[string]uuid.UUID),
		reservations: make(map[uuid.UUID]models.Reservation),
		requests:     make(map[uuid.UUID]models.Request),
		allocations:  make(map[uuid.UUID]models.Allocation),
		donations:    make(map[uuid.UUID]models.Donation),
		receipts:     make(map[string]uuid.UUID),
		disasters:    make(map[uuid.UUID]models.Disaster),
		teams:        make(map[uuid.UUID]models.ReliefTeam),
		volunteers:   make(map[uuid.UUID]models.Volunteer),
		deletedAudit: make(map[uuid.UUID]struct{}),
	}
}

func (tx *memTx) lock(ctx context.Context, keys ...string) error {
	return tx.session.Lock(ctx, tx.wait, keys...)
}

func (tx *memTx) Resources() ResourceRepository       { return &memResourceRepo{tx} }
func (tx *memTx) Inventory() InventoryRepository      { return &memInventoryRepo{tx} }
func (tx *memTx) Reservations() ReservationRepository { return &memReservationRepo{tx} }
func (tx *memTx) Requests() RequestRepository         { return &memRequestRepo{tx} }
func (tx *memTx) Allocations() AllocationRepository   { return &memAllocationRepo{tx} }
func (tx *memTx) AuditLogs() AuditLogsRepository      { return &memAuditRepo{tx} }
func (tx *memTx) Donations() DonationRepository       { return &memDonationRepo{tx} }
func (tx *memTx) Disasters() DisasterRepository       { return &memDisasterRepo{tx} }
func (tx *memTx) Teams() TeamRepository               { return &memTeamRepo{tx} }
func (tx *memTx) Volunteers() VolunteerRepository     { return &memVolunteerRepo{tx} }

func (tx *memTx) AfterCommit(fn func()) {
	tx.afterCommit = append(tx.afterCommit, fn)
}

// lookup reads the transaction's own write first, then committed state.
func lookup[T any](tx *memTx, pending, committed map[uuid.UUID]T, id uuid.UUID) (T, bool) {
	if v, ok := pending[id]; ok {
		return v, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	v, ok := committed[id]
	return v, ok
}

// merged returns committed rows overlaid with the transaction's writes, filtered by keep.
func merged[T any](tx *memTx, pending, committed map[uuid.UUID]T, keep func(T) bool) []T {
	tx.s.mu.RLock()
	out := make([]T, 0, len(committed)+len(pending))
	for id, v := range committed {
		if _, shadowed := pending[id]; shadowed {
			continue
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	tx.s.mu.RUnlock()
	for _, v := range pending {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func exists[T any](tx *memTx, pending, committed map[uuid.UUID]T, id uuid.UUID) bool {
	_, ok := lookup(tx, pending, committed, id)
	return ok
}

func duplicateError(entity string, id uuid.UUID) error {
	return &common.ValidationError{Field: entity, Message: fmt.Sprintf("%s already exists", id)}
}

func sortAudit(entries []*models.AuditEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		// uncommitted entries (seq 0) sort after committed ones
		si, sj := entries[i].Seq, entries[j].Seq
		if si == 0 || sj == 0 {
			return si != 0 && sj == 0
		}
		return si < sj
	})
}
