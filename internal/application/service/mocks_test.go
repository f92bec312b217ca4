package service

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// In-memory repositories shared by the service tests

type mockRFQRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*entity.RFQ
	plants map[int64][]int64

	touchErr  error
	createErr error
	touched   []int64
}

func newMockRFQRepo(rows ...*entity.RFQ) *mockRFQRepo {
	m := &mockRFQRepo{rows: map[int64]*entity.RFQ{}, plants: map[int64][]int64{}}
	for _, r := range rows {
		m.rows[r.ID] = r
		if r.ID > m.nextID {
			m.nextID = r.ID
		}
	}
	return m
}

func (m *mockRFQRepo) Create(ctx context.Context, rfq *entity.RFQ) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rfq.ID = m.nextID
	rfq.RowVersion = 1
	m.rows[rfq.ID] = rfq
	return nil
}

func (m *mockRFQRepo) GetByID(ctx context.Context, id int64) (*entity.RFQ, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

func (m *mockRFQRepo) List(ctx context.Context, limit, offset int) ([]*entity.RFQ, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.RFQ
	for _, r := range m.rows {
		if !r.IsRevision() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRFQRepo) CompareAndSetState(ctx context.Context, id, expectedRowVersion, stateID int64) error {
	return m.cas(id, expectedRowVersion, func(r *entity.RFQ) { r.StateID = stateID })
}

func (m *mockRFQRepo) CompareAndSetActive(ctx context.Context, id, expectedRowVersion int64, active bool) error {
	return m.cas(id, expectedRowVersion, func(r *entity.RFQ) { r.Active = active })
}

func (m *mockRFQRepo) Touch(ctx context.Context, id, expectedRowVersion int64) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touched = append(m.touched, id)
	return m.cas(id, expectedRowVersion, func(*entity.RFQ) {})
}

func (m *mockRFQRepo) cas(id, expected int64, apply func(*entity.RFQ)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.RowVersion != expected {
		return domainwf.ErrConcurrencyConflict
	}
	apply(r)
	r.RowVersion++
	return nil
}

func (m *mockRFQRepo) CreateRevision(ctx context.Context, revision *entity.RFQ) error {
	return m.Create(ctx, revision)
}

func (m *mockRFQRepo) MaxVersionNo(ctx context.Context, parentID int64) (int, error) {
	revs, _ := m.ListRevisions(ctx, parentID)
	max := 0
	for _, r := range revs {
		if r.VersionNo > max {
			max = r.VersionNo
		}
	}
	return max, nil
}

func (m *mockRFQRepo) AddPlants(ctx context.Context, rfqID int64, plantIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plants[rfqID] = append(m.plants[rfqID], plantIDs...)
	return nil
}

func (m *mockRFQRepo) ListPlants(ctx context.Context, rfqID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.plants[rfqID]...), nil
}

func (m *mockRFQRepo) ListRevisions(ctx context.Context, parentID int64) ([]*entity.RFQ, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.RFQ
	for _, r := range m.rows {
		if r.ParentRFQID != nil && *r.ParentRFQID == parentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNo < out[j].VersionNo })
	return out, nil
}

type mockSKURepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*entity.SKU

	updateFiguresErr error
}

func newMockSKURepo(rows ...*entity.SKU) *mockSKURepo {
	m := &mockSKURepo{rows: map[int64]*entity.SKU{}}
	for _, s := range rows {
		m.rows[s.ID] = s
		if s.ID > m.nextID {
			m.nextID = s.ID
		}
	}
	return m
}

func (m *mockSKURepo) Create(ctx context.Context, sku *entity.SKU) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sku.ID = m.nextID
	m.rows[sku.ID] = sku
	return nil
}

func (m *mockSKURepo) GetByID(ctx context.Context, id int64) (*entity.SKU, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id], nil
}

func (m *mockSKURepo) ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.SKU, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.SKU
	for _, s := range m.rows {
		if s.RFQID == rfqID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockSKURepo) UpdateCostInputs(ctx context.Context, id int64, inputs entity.CostInputs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		s.CostInputs = inputs
	}
	return nil
}

func (m *mockSKURepo) UpdateCostFigures(ctx context.Context, f entity.CostFigures) error {
	if m.updateFiguresErr != nil {
		return m.updateFiguresErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[f.SKUID]; ok {
		s.SubTotalCost = f.SubTotalCost
		s.FactoryOverhead = f.FactoryOverhead
		s.TotalFactoryCost = f.TotalFactoryCost
		s.FOBValue = f.FOBValue
		s.CIFValue = f.CIFValue
	}
	return nil
}

func (m *mockSKURepo) SetClientSelected(ctx context.Context, id int64, selected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		s.ClientSelected = &selected
	}
	return nil
}

type mockAuditRepo struct {
	entries []*entity.AuditEntry
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *entity.AuditEntry) error {
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.AuditEntry, error) {
	var out []*entity.AuditEntry
	for _, e := range m.entries {
		if e.RFQID == rfqID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockAssignmentRepo struct {
	edges []*entity.Assignment
}

func (m *mockAssignmentRepo) Create(ctx context.Context, a *entity.Assignment) error {
	a.ID = int64(len(m.edges) + 1)
	m.edges = append(m.edges, a)
	return nil
}

func (m *mockAssignmentRepo) ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.Assignment, error) {
	var out []*entity.Assignment
	for _, e := range m.edges {
		if e.RFQID == rfqID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) ListByRFQAndRole(ctx context.Context, rfqID int64, role string) ([]*entity.Assignment, error) {
	var out []*entity.Assignment
	for _, e := range m.edges {
		if e.RFQID == rfqID && e.AssignedToRole == role {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) Exists(ctx context.Context, rfqID, userID int64, role string) (bool, error) {
	for _, e := range m.edges {
		if e.RFQID == rfqID && e.AssignedToUser == userID && e.AssignedToRole == role {
			return true, nil
		}
	}
	return false, nil
}

type mockUserRepo struct {
	users []*entity.User
}

func (m *mockUserRepo) Create(ctx context.Context, u *entity.User) error {
	u.ID = int64(len(m.users) + 1)
	m.users = append(m.users, u)
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range m.users {
		if u.Role == role && u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) ListByPlantAndRole(ctx context.Context, plantID int64, role string) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range m.users {
		if u.Role == role && u.Active && u.PlantID != nil && *u.PlantID == plantID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) GetDefault(ctx context.Context, role string) (*entity.User, error) {
	for _, u := range m.users {
		if u.Role == role && u.Active && u.IsDefault {
			return u, nil
		}
	}
	return nil, nil
}

type mockPlantRepo struct {
	plants []*entity.Plant
}

func (m *mockPlantRepo) Create(ctx context.Context, p *entity.Plant) error {
	p.ID = int64(len(m.plants) + 1)
	m.plants = append(m.plants, p)
	return nil
}

func (m *mockPlantRepo) GetByID(ctx context.Context, id int64) (*entity.Plant, error) {
	for _, p := range m.plants {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPlantRepo) List(ctx context.Context) ([]*entity.Plant, error) {
	return m.plants, nil
}

// mockTxManager runs the function inline. It does not roll back.
type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockCalculator struct {
	err   error
	calls []*int64
}

func (m *mockCalculator) RecalculateCosts(ctx context.Context, rfqID int64, skuID *int64, mode domainwf.RecalcMode) ([]entity.CostFigures, error) {
	m.calls = append(m.calls, skuID)
	if m.err != nil {
		return nil, m.err
	}
	if skuID != nil {
		return []entity.CostFigures{{SKUID: *skuID, CIFValue: 1}}, nil
	}
	return nil, nil
}

func floatPtr(v float64) *float64 {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}
