package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/google/uuid"
)

type memResourceRepo struct{ tx *memTx }

func (r *memResourceRepo) Create(ctx context.Context, resource *models.Resource) error {
	if exists(r.tx, r.tx.resources, r.tx.s.resources, resource.ID) {
		return duplicateError("resource", resource.ID)
	}
	r.tx.resources[resource.ID] = *resource
	return nil
}

func (r *memResourceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	v, ok := lookup(r.tx, r.tx.resources, r.tx.s.resources, id)
	if !ok {
		return nil, common.NewNotFoundError("resource", id)
	}
	return &v, nil
}

func (r *memResourceRepo) List(ctx context.Context) ([]*models.Resource, error) {
	rows := merged(r.tx, r.tx.resources, r.tx.s.resources, func(models.Resource) bool { return true })
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	out := make([]*models.Resource, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

type memInventoryRepo struct{ tx *memTx }

func (r *memInventoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.InventoryLine, error) {
	v, ok := lookup(r.tx, r.tx.lines, r.tx.s.lines, id)
	if !ok {
		return nil, common.NewNotFoundError("inventory line", id)
	}
	return &v, nil
}

func (r *memInventoryRepo) indexLookup(resourceID uuid.UUID, warehouse string) (uuid.UUID, bool) {
	key := lineKey(resourceID, warehouse)
	if id, ok := r.tx.lineIndex[key]; ok {
		return id, true
	}
	r.tx.s.mu.RLock()
	defer r.tx.s.mu.RUnlock()
	id, ok := r.tx.s.lineIndex[key]
	return id, ok
}

func (r *memInventoryRepo) GetByResourceAndWarehouse(ctx context.Context, resourceID uuid.UUID, warehouse string) (*models.InventoryLine, error) {
	id, ok := r.indexLookup(resourceID, warehouse)
	if !ok {
		return nil, common.NewNotFoundError("inventory line", resourceID.String()+"@"+warehouse)
	}
	return r.GetByID(ctx, id)
}

func (r *memInventoryRepo) LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.InventoryLine, error) {
	ordered := sortedIDs(ids)
	keys := make([]string, len(ordered))
	for i, id := range ordered {
		keys[i] = entityKey("line", id)
	}
	if err := r.tx.lock(ctx, keys...); err != nil {
		return nil, err
	}
	lines := make(map[uuid.UUID]*models.InventoryLine, len(ordered))
	for _, id := range ordered {
		line, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		lines[id] = line
	}
	return lines, nil
}

func (r *memInventoryRepo) Ensure(ctx context.Context, resourceID uuid.UUID, warehouse string) (*models.InventoryLine, bool, error) {
	if err := r.tx.lock(ctx, "linekey:"+lineKey(resourceID, warehouse)); err != nil {
		return nil, false, err
	}
	if id, ok := r.indexLookup(resourceID, warehouse); ok {
		locked, err := r.LockByIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return nil, false, err
		}
		return locked[id], false, nil
	}

	line := models.InventoryLine{
		ID:                uuid.New(),
		ResourceID:        resourceID,
		WarehouseLocation: warehouse,
		LastUpdated:       time.Now().UTC(),
	}
	if err := r.tx.lock(ctx, entityKey("line", line.ID)); err != nil {
		return nil, false, err
	}
	r.tx.lines[line.ID] = line
	r.tx.lineIndex[lineKey(resourceID, warehouse)] = line.ID
	return &line, true, nil
}

func (r *memInventoryRepo) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int, at time.Time) error {
	if err := r.tx.lock(ctx, entityKey("line", id)); err != nil {
		return err
	}
	line, ok := lookup(r.tx, r.tx.lines, r.tx.s.lines, id)
	if !ok {
		return common.NewNotFoundError("inventory line", id)
	}
	if quantity < 0 {
		return &common.InvariantViolationError{Invariant: "inventory_quantity_non_negative",
			Detail: fmt.Sprintf("line %s would hold %d", id, quantity)}
	}
	line.QuantityAvailable = quantity
	line.LastUpdated = at
	r.tx.lines[id] = line
	return nil
}

func (r *memInventoryRepo) List(ctx context.Context) ([]*models.InventoryLine, error) {
	rows := merged(r.tx, r.tx.lines, r.tx.s.lines, func(models.InventoryLine) bool { return true })
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WarehouseLocation != rows[j].WarehouseLocation {
			return rows[i].WarehouseLocation < rows[j].WarehouseLocation
		}
		return rows[i].ResourceID.String() < rows[j].ResourceID.String()
	})
	out := make([]*models.InventoryLine, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (r *memInventoryRepo) ListLowStock(ctx context.Context) ([]*models.LowStockLine, error) {
	lines, _ := r.List(ctx)
	var result []*models.LowStockLine
	for _, line := range lines {
		res, ok := lookup(r.tx, r.tx.resources, r.tx.s.resources, line.ResourceID)
		if !ok {
			continue
		}
		status := line.StockStatus(res.MinStock)
		if status == models.StockStatusOK {
			continue
		}
		resource := res
		result = append(result, &models.LowStockLine{Line: line, Resource: &resource, Status: status})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Line.QuantityAvailable < result[j].Line.QuantityAvailable
	})
	return result, nil
}

type memReservationRepo struct{ tx *memTx }

func (r *memReservationRepo) Create(ctx context.Context, reservation *models.Reservation) error {
	if exists(r.tx, r.tx.reservations, r.tx.s.reservations, reservation.ID) {
		return duplicateError("reservation", reservation.ID)
	}
	r.tx.reservations[reservation.ID] = *reservation
	return nil
}

func (r *memReservationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if err := r.tx.lock(ctx, entityKey("reservation", id)); err != nil {
		return nil, err
	}
	v, ok := lookup(r.tx, r.tx.reservations, r.tx.s.reservations, id)
	if !ok {
		return nil, common.NewNotFoundError("reservation", id)
	}
	return &v, nil
}

func (r *memReservationRepo) MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	v, err := r.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if v.ReleasedAt == nil {
		v.ReleasedAt = &at
		r.tx.reservations[id] = *v
	}
	return nil
}

type memRequestRepo struct{ tx *memTx }

func (r *memRequestRepo) Create(ctx context.Context, req *models.Request) error {
	if exists(r.tx, r.tx.requests, r.tx.s.requests, req.ID) {
		return duplicateError("request", req.ID)
	}
	r.tx.requests[req.ID] = *req
	return nil
}

func (r *memRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	v, ok := lookup(r.tx, r.tx.requests, r.tx.s.requests, id)
	if !ok {
		return nil, common.NewNotFoundError("request", id)
	}
	return &v, nil
}

func (r *memRequestRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	if err := r.tx.lock(ctx, entityKey("request", id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *memRequestRepo) Update(ctx context.Context, req *models.Request) error {
	current, err := r.GetForUpdate(ctx, req.ID)
	if err != nil {
		return err
	}
	current.Urgency = req.Urgency
	current.Status = req.Status
	current.Remarks = req.Remarks
	r.tx.requests[req.ID] = *current
	return nil
}

func (r *memRequestRepo) ListEscalationCandidates(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows := merged(r.tx, r.tx.requests, r.tx.s.requests, func(q models.Request) bool {
		return q.Status == models.RequestPending && q.Urgency != models.UrgencyCritical && !q.RequestDate.After(cutoff)
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].RequestDate.Before(rows[j].RequestDate) })
	ids := make([]uuid.UUID, len(rows))
	for i, q := range rows {
		ids[i] = q.ID
	}
	return ids, nil
}

type memAllocationRepo struct{ tx *memTx }

func (r *memAllocationRepo) Create(ctx context.Context, a *models.Allocation) error {
	if exists(r.tx, r.tx.allocations, r.tx.s.allocations, a.ID) {
		return duplicateError("allocation", a.ID)
	}
	r.tx.allocations[a.ID] = *a
	return nil
}

func (r *memAllocationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Allocation, error) {
	v, ok := lookup(r.tx, r.tx.allocations, r.tx.s.allocations, id)
	if !ok {
		return nil, common.NewNotFoundError("allocation", id)
	}
	return &v, nil
}

func (r *memAllocationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Allocation, error) {
	if err := r.tx.lock(ctx, entityKey("allocation", id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *memAllocationRepo) Update(ctx context.Context, a *models.Allocation) error {
	current, err := r.GetForUpdate(ctx, a.ID)
	if err != nil {
		return err
	}
	current.DeliveryStatus = a.DeliveryStatus
	current.StatusChangedAt = a.StatusChangedAt
	current.DeliveredDate = a.DeliveredDate
	current.CancelledAt = a.CancelledAt
	r.tx.allocations[a.ID] = *current
	return nil
}

func (r *memAllocationRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Allocation, error) {
	rows := merged(r.tx, r.tx.allocations, r.tx.s.allocations, func(a models.Allocation) bool { return a.RequestID == requestID })
	return sortAllocations(rows), nil
}

func (r *memAllocationRepo) TotalsForRequest(ctx context.Context, requestID uuid.UUID) (models.RequestTotals, error) {
	var totals models.RequestTotals
	rows := merged(r.tx, r.tx.allocations, r.tx.s.allocations, func(a models.Allocation) bool {
		return a.RequestID == requestID && a.Active()
	})
	for _, a := range rows {
		totals.Allocated += a.QuantityAllocated
		if a.DeliveryStatus == models.DeliveryDelivered {
			totals.Delivered += a.QuantityAllocated
		}
	}
	return totals, nil
}

func (r *memAllocationRepo) ListStale(ctx context.Context, status models.DeliveryStatus, cutoff time.Time) ([]*models.Allocation, error) {
	rows := merged(r.tx, r.tx.allocations, r.tx.s.allocations, func(a models.Allocation) bool {
		return a.Active() && a.DeliveryStatus == status && a.StatusChangedAt.Before(cutoff)
	})
	out := sortAllocations(rows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StatusChangedAt.Before(out[j].StatusChangedAt) })
	return out, nil
}

func sortAllocations(rows []models.Allocation) []*models.Allocation {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].AllocationDate.Equal(rows[j].AllocationDate) {
			return rows[i].AllocationDate.Before(rows[j].AllocationDate)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
	out := make([]*models.Allocation, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

type memAuditRepo struct{ tx *memTx }

func (r *memAuditRepo) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	r.tx.s.mu.RLock()
	intercept := r.tx.s.auditInterceptor
	r.tx.s.mu.RUnlock()
	if intercept != nil {
		if err := intercept(entry); err != nil {
			return fmt.Errorf("write audit entry: %w", err)
		}
	}
	r.tx.audit = append(r.tx.audit, *entry)
	return nil
}

func (r *memAuditRepo) all() []*models.AuditEntry {
	r.tx.s.mu.RLock()
	out := make([]*models.AuditEntry, 0, len(r.tx.s.audit)+len(r.tx.audit))
	for i := range r.tx.s.audit {
		e := r.tx.s.audit[i]
		if _, gone := r.tx.deletedAudit[e.ID]; gone {
			continue
		}
		out = append(out, &e)
	}
	r.tx.s.mu.RUnlock()
	for i := range r.tx.audit {
		e := r.tx.audit[i]
		out = append(out, &e)
	}
	return out
}

func (r *memAuditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	return r.List(ctx, &models.AuditLogFilters{EntityType: &entityType, EntityID: &entityID})
}

func (r *memAuditRepo) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for _, e := range r.all() {
		if filters.Matches(e) {
			out = append(out, e)
		}
	}
	sortAudit(out)
	if filters != nil && filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	if filters != nil && filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (r *memAuditRepo) ListBefore(ctx context.Context, before time.Time, limit int) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for _, e := range r.all() {
		if e.Timestamp.Before(before) {
			out = append(out, e)
		}
	}
	sortAudit(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAuditRepo) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if err := r.tx.lock(ctx, "audit:archive"); err != nil {
		return 0, err
	}
	present := make(map[uuid.UUID]struct{})
	for _, e := range r.all() {
		present[e.ID] = struct{}{}
	}
	var n int64
	for _, id := range ids {
		if _, ok := present[id]; ok {
			r.tx.deletedAudit[id] = struct{}{}
			n++
		}
	}
	return n, nil
}

type memDonationRepo struct{ tx *memTx }

func (r *memDonationRepo) Create(ctx context.Context, d *models.Donation) error {
	if exists(r.tx, r.tx.donations, r.tx.s.donations, d.ID) {
		return duplicateError("donation", d.ID)
	}
	if _, taken := r.tx.receipts[d.ReceiptNumber]; taken {
		return &common.ValidationError{Field: "receipt_number", Message: "already exists"}
	}
	r.tx.s.mu.RLock()
	_, taken := r.tx.s.receipts[d.ReceiptNumber]
	r.tx.s.mu.RUnlock()
	if taken {
		return &common.ValidationError{Field: "receipt_number", Message: "already exists"}
	}
	r.tx.donations[d.ID] = *d
	r.tx.receipts[d.ReceiptNumber] = d.ID
	return nil
}

func (r *memDonationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	v, ok := lookup(r.tx, r.tx.donations, r.tx.s.donations, id)
	if !ok {
		return nil, common.NewNotFoundError("donation", id)
	}
	return &v, nil
}

func (r *memDonationRepo) NextReceiptSeq(ctx context.Context, year int) (int, error) {
	if err := r.tx.lock(ctx, fmt.Sprintf("receipts:%d", year)); err != nil {
		return 0, err
	}
	rows := merged(r.tx, r.tx.donations, r.tx.s.donations, func(d models.Donation) bool { return d.ReceiptYear == year })
	max := 0
	for _, d := range rows {
		if d.ReceiptSeq > max {
			max = d.ReceiptSeq
		}
	}
	return max + 1, nil
}

type memDisasterRepo struct{ tx *memTx }

func (r *memDisasterRepo) Create(ctx context.Context, d *models.Disaster) error {
	if exists(r.tx, r.tx.disasters, r.tx.s.disasters, d.ID) {
		return duplicateError("disaster", d.ID)
	}
	r.tx.disasters[d.ID] = *d
	return nil
}

func (r *memDisasterRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Disaster, error) {
	v, ok := lookup(r.tx, r.tx.disasters, r.tx.s.disasters, id)
	if !ok {
		return nil, common.NewNotFoundError("disaster", id)
	}
	return &v, nil
}

func (r *memDisasterRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Disaster, error) {
	if err := r.tx.lock(ctx, entityKey("disaster", id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *memDisasterRepo) Update(ctx context.Context, d *models.Disaster) error {
	current, err := r.GetForUpdate(ctx, d.ID)
	if err != nil {
		return err
	}
	current.Status = d.Status
	current.EndDate = d.EndDate
	r.tx.disasters[d.ID] = *current
	return nil
}

type memTeamRepo struct{ tx *memTx }

func (r *memTeamRepo) Create(ctx context.Context, t *models.ReliefTeam) error {
	if exists(r.tx, r.tx.teams, r.tx.s.teams, t.ID) {
		return duplicateError("relief team", t.ID)
	}
	r.tx.teams[t.ID] = *t
	return nil
}

func (r *memTeamRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ReliefTeam, error) {
	v, ok := lookup(r.tx, r.tx.teams, r.tx.s.teams, id)
	if !ok {
		return nil, common.NewNotFoundError("relief team", id)
	}
	return &v, nil
}

func (r *memTeamRepo) LockByDisaster(ctx context.Context, disasterID uuid.UUID) ([]*models.ReliefTeam, error) {
	rows := merged(r.tx, r.tx.teams, r.tx.s.teams, func(t models.ReliefTeam) bool { return t.DisasterID == disasterID })
	ids := make([]uuid.UUID, len(rows))
	for i, t := range rows {
		ids[i] = t.ID
	}
	ordered := sortedIDs(ids)
	keys := make([]string, len(ordered))
	for i, id := range ordered {
		keys[i] = entityKey("team", id)
	}
	if err := r.tx.lock(ctx, keys...); err != nil {
		return nil, err
	}
	out := make([]*models.ReliefTeam, 0, len(ordered))
	for _, id := range ordered {
		t, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memTeamRepo) Update(ctx context.Context, t *models.ReliefTeam) error {
	if err := r.tx.lock(ctx, entityKey("team", t.ID)); err != nil {
		return err
	}
	current, err := r.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	current.Status = t.Status
	r.tx.teams[t.ID] = *current
	return nil
}

type memVolunteerRepo struct{ tx *memTx }

func (r *memVolunteerRepo) Create(ctx context.Context, v *models.Volunteer) error {
	if exists(r.tx, r.tx.volunteers, r.tx.s.volunteers, v.ID) {
		return duplicateError("volunteer", v.ID)
	}
	r.tx.volunteers[v.ID] = *v
	return nil
}

func (r *memVolunteerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Volunteer, error) {
	v, ok := lookup(r.tx, r.tx.volunteers, r.tx.s.volunteers, id)
	if !ok {
		return nil, common.NewNotFoundError("volunteer", id)
	}
	return &v, nil
}

func (r *memVolunteerRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Volunteer, error) {
	if err := r.tx.lock(ctx, entityKey("volunteer", id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *memVolunteerRepo) LockByTeams(ctx context.Context, teamIDs []uuid.UUID) ([]*models.Volunteer, error) {
	teams := make(map[uuid.UUID]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		teams[id] = struct{}{}
	}
	rows := merged(r.tx, r.tx.volunteers, r.tx.s.volunteers, func(v models.Volunteer) bool {
		if v.TeamID == nil {
			return false
		}
		_, ok := teams[*v.TeamID]
		return ok
	})
	ids := make([]uuid.UUID, len(rows))
	for i, v := range rows {
		ids[i] = v.ID
	}
	ordered := sortedIDs(ids)
	keys := make([]string, len(ordered))
	for i, id := range ordered {
		keys[i] = entityKey("volunteer", id)
	}
	if err := r.tx.lock(ctx, keys...); err != nil {
		return nil, err
	}
	out := make([]*models.Volunteer, 0, len(ordered))
	for _, id := range ordered {
		v, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		// re-check after the lock: another transaction may have detached it
		if v.TeamID == nil {
			continue
		}
		if _, ok := teams[*v.TeamID]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memVolunteerRepo) Update(ctx context.Context, v *models.Volunteer) error {
	if err := r.tx.lock(ctx, entityKey("volunteer", v.ID)); err != nil {
		return err
	}
	current, err := r.GetByID(ctx, v.ID)
	if err != nil {
		return err
	}
	current.TeamID = v.TeamID
	current.Availability = v.Availability
	r.tx.volunteers[v.ID] = *current
	return nil
}

func (r *memVolunteerRepo) ListOrphaned(ctx context.Context) ([]*models.Volunteer, error) {
	attached := merged(r.tx, r.tx.volunteers, r.tx.s.volunteers, func(v models.Volunteer) bool { return v.TeamID != nil })
	sort.Slice(attached, func(i, j int) bool { return attached[i].ID.String() < attached[j].ID.String() })
	var out []*models.Volunteer
	for i := range attached {
		t, ok := lookup(r.tx, r.tx.teams, r.tx.s.teams, *attached[i].TeamID)
		if ok && t.Status == models.TeamDisbanded {
			out = append(out, &attached[i])
		}
	}
	return out, nil
}
