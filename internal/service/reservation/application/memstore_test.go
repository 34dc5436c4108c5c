// internal/service/reservation/application/memstore_test.go
package application

import (
	"context"
	"sort"
	"strings"
	"sync"

	"taller/internal/service/reservation/domain"
)

// memStore 是测试用的内存存储，memTxManager 在它之上模拟
// "整体提交或整体回滚" 的事务语义：事务内的所有写都落在一份
// 暂存副本上，回调返回错误时副本被整个丢弃
type memStore struct {
	mu           sync.Mutex
	materials    map[string]*domain.Material
	subjects     map[string]*domain.Subject
	reservations map[string]*domain.Reservation
	allocations  []domain.MaterialAllocation
}

func newMemStore() *memStore {
	return &memStore{
		materials:    make(map[string]*domain.Material),
		subjects:     make(map[string]*domain.Subject),
		reservations: make(map[string]*domain.Reservation),
	}
}

// cloneLocked 产出深拷贝，调用方必须持有 s.mu
func (s *memStore) cloneLocked() *memStore {
	staged := newMemStore()
	for id, m := range s.materials {
		cp := *m
		staged.materials[id] = &cp
	}
	for id, sub := range s.subjects {
		cp := *sub
		staged.subjects[id] = &cp
	}
	for id, r := range s.reservations {
		cp := *r
		staged.reservations[id] = &cp
	}
	staged.allocations = append(staged.allocations, s.allocations...)
	return staged
}

// adoptLocked 把暂存副本整体换入，调用方必须持有 s.mu
func (s *memStore) adoptLocked(staged *memStore) {
	s.materials = staged.materials
	s.subjects = staged.subjects
	s.reservations = staged.reservations
	s.allocations = staged.allocations
}

// memTxManager 串行化所有事务：持有存储锁直到提交或回滚完成
// 并发提交因此逐个通过，和数据库行锁给出的隔离效果一致
type memTxManager struct {
	store *memStore
}

func (m *memTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	staged := m.store.cloneLocked()
	repos := domain.Repositories{
		Materials:    &memMaterialRepo{store: staged},
		Reservations: &memReservationRepo{store: staged},
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	m.store.adoptLocked(staged)
	return nil
}

type memMaterialRepo struct {
	store *memStore
}

func (r *memMaterialRepo) List(ctx context.Context) ([]*domain.Material, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*domain.Material, 0, len(r.store.materials))
	for _, m := range r.store.materials {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memMaterialRepo) FindByID(ctx context.Context, id string) (*domain.Material, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m, ok := r.store.materials[id]
	if !ok {
		return nil, domain.ErrMaterialNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMaterialRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.Material, error) {
	// memTxManager 已经串行化了事务，这里等价于普通读取
	return r.FindByID(ctx, id)
}

func (r *memMaterialRepo) DecrementStock(ctx context.Context, id string, quantity int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m, ok := r.store.materials[id]
	if !ok {
		return domain.ErrMaterialNotFound
	}
	if m.AvailableQuantity < quantity {
		return &domain.InsufficientStockError{MaterialID: id, Requested: quantity, Available: m.AvailableQuantity}
	}
	m.AvailableQuantity -= quantity
	return nil
}

func (r *memMaterialRepo) IncrementStock(ctx context.Context, id string, quantity int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m, ok := r.store.materials[id]
	if !ok {
		return domain.ErrMaterialNotFound
	}
	m.AvailableQuantity += quantity
	return nil
}

func (r *memMaterialRepo) StockSummary(ctx context.Context) (int, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	available := 0
	for _, m := range r.store.materials {
		available += m.AvailableQuantity
	}
	reserved := 0
	for _, a := range r.store.allocations {
		if res, ok := r.store.reservations[a.ReservationID]; ok && res.Status == domain.StatusActive {
			reserved += a.Quantity
		}
	}
	return available, available + reserved, nil
}

type memSubjectRepo struct {
	store *memStore
}

func (r *memSubjectRepo) List(ctx context.Context) ([]*domain.Subject, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*domain.Subject, 0, len(r.store.subjects))
	for _, s := range r.store.subjects {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memSubjectRepo) FindByID(ctx context.Context, id string) (*domain.Subject, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.subjects[id]
	if !ok {
		return nil, domain.ErrSubjectNotFound
	}
	cp := *s
	return &cp, nil
}

type memReservationRepo struct {
	store *memStore
}

func (r *memReservationRepo) Create(ctx context.Context, reservation *domain.Reservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.reservations[reservation.ID]; exists {
		return domain.NewValidationError("duplicate reservation id")
	}
	cp := *reservation
	cp.Allocations = nil
	r.store.reservations[reservation.ID] = &cp
	return nil
}

func (r *memReservationRepo) AddAllocation(ctx context.Context, allocation *domain.MaterialAllocation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.reservations[allocation.ReservationID]; !exists {
		return domain.ErrReservationNotFound
	}
	r.store.allocations = append(r.store.allocations, *allocation)
	return nil
}

// assembleLocked 组装带科目名称和分配行的完整预约，调用方必须持有 s.mu
func (r *memReservationRepo) assembleLocked(res *domain.Reservation) *domain.Reservation {
	cp := *res
	if sub, ok := r.store.subjects[res.SubjectID]; ok {
		cp.SubjectName = sub.Name
	}
	cp.Allocations = nil
	for _, a := range r.store.allocations {
		if a.ReservationID == res.ID {
			cp.Allocations = append(cp.Allocations, a)
		}
	}
	return &cp
}

func (r *memReservationRepo) Search(ctx context.Context, term string) ([]*domain.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	needle := strings.ToLower(term)
	out := make([]*domain.Reservation, 0)
	for _, res := range r.store.reservations {
		full := r.assembleLocked(res)
		if needle == "" ||
			strings.Contains(strings.ToLower(full.TeacherName), needle) ||
			strings.Contains(strings.ToLower(full.SubjectName), needle) ||
			strings.Contains(strings.ToLower(full.TeacherID), needle) {
			out = append(out, full)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memReservationRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	counts := make(map[domain.Status]int)
	for _, res := range r.store.reservations {
		counts[res.Status]++
	}
	return counts, nil
}

func (r *memReservationRepo) Upcoming(ctx context.Context, limit int) ([]*domain.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*domain.Reservation, 0)
	for _, res := range r.store.reservations {
		if res.Status == domain.StatusActive {
			out = append(out, r.assembleLocked(res))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageDate != out[j].UsageDate {
			return out[i].UsageDate < out[j].UsageDate
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memSnapshots 直接读存储，模拟无缓存的快照源
type memSnapshots struct {
	materials *memMaterialRepo
}

func (s *memSnapshots) Snapshot(ctx context.Context, materialID string) (*domain.Material, error) {
	return s.materials.FindByID(ctx, materialID)
}
