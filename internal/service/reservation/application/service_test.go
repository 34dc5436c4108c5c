// internal/service/reservation/application/service_test.go
package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"taller/internal/service/reservation/domain"
)

type testEnv struct {
	store   *memStore
	service *ReservationService
	query   *ReservationQueryService
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store := newMemStore()
	store.materials["m-drill"] = &domain.Material{ID: "m-drill", Name: "Power Drill", Unit: "piece", AvailableQuantity: 5}
	store.materials["m-glue"] = &domain.Material{ID: "m-glue", Name: "Wood Glue", Unit: "liter", AvailableQuantity: 8}
	store.materials["m-plank"] = &domain.Material{ID: "m-plank", Name: "Pine Plank", Unit: "piece", AvailableQuantity: 10}
	store.subjects["s-phy"] = &domain.Subject{ID: "s-phy", Name: "Physics"}
	store.subjects["s-rob"] = &domain.Subject{ID: "s-rob", Name: "Robotics"}

	materials := &memMaterialRepo{store: store}
	tracer := noop.NewTracerProvider().Tracer("test")
	service := NewReservationService(
		&memTxManager{store: store},
		materials,
		&memSubjectRepo{store: store},
		&memSnapshots{materials: materials},
		tracer,
		opts...,
	)
	query := NewReservationQueryService(&memReservationRepo{store: store}, materials, tracer)
	return &testEnv{store: store, service: service, query: query}
}

func (e *testEnv) stockOf(t *testing.T, id string) int {
	t.Helper()
	m, err := (&memMaterialRepo{store: e.store}).FindByID(context.Background(), id)
	require.NoError(t, err)
	return m.AvailableQuantity
}

var (
	instructor = domain.Principal{ID: "t-1", Name: "Ana Torres", Role: domain.RoleInstructor}
	admin      = domain.Principal{ID: "adm-1", Name: "Workshop Admin", Role: domain.RoleAdministrator}
)

func requestFor(p domain.Principal, lines ...domain.RequestLine) *domain.AllocationRequest {
	return &domain.AllocationRequest{
		TeacherID:       p.ID,
		TeacherName:     p.Name,
		SubjectID:       "s-phy",
		ReservationDate: "2026-09-01",
		UsageDate:       "2026-09-03",
		Lines:           lines,
	}
}

func TestCommitDecrementsStock(t *testing.T) {
	env := newTestEnv(t)

	r1, err := env.service.Commit(context.Background(), instructor,
		requestFor(instructor, domain.RequestLine{MaterialID: "m-drill", Quantity: 2}))
	require.NoError(t, err)
	require.Len(t, r1.Allocations, 1)
	assert.Equal(t, "Power Drill", r1.Allocations[0].MaterialName)

	_, err = env.service.Commit(context.Background(), instructor,
		requestFor(instructor, domain.RequestLine{MaterialID: "m-drill", Quantity: 1}))
	require.NoError(t, err)

	assert.Equal(t, 2, env.stockOf(t, "m-drill"))

	// 查询侧能看到完整的预约：反规范化的科目名和分配行
	views, err := env.query.Search(context.Background(), "physics")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Physics", views[0].SubjectName)
	assert.Equal(t, string(domain.StatusActive), views[0].Status)
}

func TestCommitAllOrNothing(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Commit(context.Background(), instructor, requestFor(instructor,
		domain.RequestLine{MaterialID: "m-drill", Quantity: 3},
		domain.RequestLine{MaterialID: "m-glue", Quantity: 100},
	))

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "m-glue", insufficient.MaterialID)
	assert.Equal(t, 100, insufficient.Requested)
	assert.Equal(t, 8, insufficient.Available)

	// 第一条行的扣减随事务一起回滚，存储里没有半个预约
	assert.Equal(t, 5, env.stockOf(t, "m-drill"))
	assert.Equal(t, 8, env.stockOf(t, "m-glue"))
	views, err := env.query.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestCommitDuplicateLinesSeeInTxDecrement(t *testing.T) {
	env := newTestEnv(t)

	// 库存 5：第一行扣掉 3 之后，第二行在事务内只看到 2
	_, err := env.service.Commit(context.Background(), instructor, requestFor(instructor,
		domain.RequestLine{MaterialID: "m-drill", Quantity: 3},
		domain.RequestLine{MaterialID: "m-drill", Quantity: 3},
	))

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.Requested)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 5, env.stockOf(t, "m-drill"))
}

func TestCommitConcurrentContention(t *testing.T) {
	env := newTestEnv(t)
	other := domain.Principal{ID: "t-2", Name: "Ben Ruiz", Role: domain.RoleInstructor}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []domain.Principal{instructor, other} {
		wg.Add(1)
		go func(i int, p domain.Principal) {
			defer wg.Done()
			_, errs[i] = env.service.Commit(context.Background(), p,
				requestFor(p, domain.RequestLine{MaterialID: "m-drill", Quantity: 3}))
		}(i, p)
	}
	wg.Wait()

	// 库存 5、两个并发请求各要 3：恰好一个成功，另一个看到剩余 2
	succeeded, failed := 0, 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		failed++
		var insufficient *domain.InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, "m-drill", insufficient.MaterialID)
		assert.Equal(t, 3, insufficient.Requested)
		assert.Equal(t, 2, insufficient.Available)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, env.stockOf(t, "m-drill"))
}

func TestCommitRejectsPrincipalMismatch(t *testing.T) {
	env := newTestEnv(t)
	other := domain.Principal{ID: "t-2", Name: "Ben Ruiz", Role: domain.RoleInstructor}

	_, err := env.service.Commit(context.Background(), other,
		requestFor(instructor, domain.RequestLine{MaterialID: "m-drill", Quantity: 1}))
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, 5, env.stockOf(t, "m-drill"))

	// 管理员可以代任何教师提交
	_, err = env.service.Commit(context.Background(), admin,
		requestFor(instructor, domain.RequestLine{MaterialID: "m-drill", Quantity: 1}))
	require.NoError(t, err)
}

func TestCommitRejectsUnknownSubject(t *testing.T) {
	env := newTestEnv(t)

	req := requestFor(instructor, domain.RequestLine{MaterialID: "m-drill", Quantity: 1})
	req.SubjectID = "s-missing"

	_, err := env.service.Commit(context.Background(), instructor, req)
	require.ErrorIs(t, err, domain.ErrSubjectNotFound)
	assert.Equal(t, 5, env.stockOf(t, "m-drill"))
}

func TestCommitAllowsZeroLines(t *testing.T) {
	env := newTestEnv(t)

	r, err := env.service.Commit(context.Background(), instructor, requestFor(instructor))
	require.NoError(t, err)
	assert.Empty(t, r.Allocations)

	views, err := env.query.Search(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].Materials)
}

func TestSubmitFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	handle := env.service.NewBuilder(ctx, instructor, "s-rob", "2026-09-01", "2026-09-03")
	_, err := env.service.AddLine(ctx, handle, "m-plank", 4)
	require.NoError(t, err)

	view, err := env.service.Submit(ctx, instructor, handle)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusActive), view.Status)
	require.Len(t, view.Materials, 1)
	assert.Equal(t, "Pine Plank", view.Materials[0].MaterialName)
	assert.Equal(t, 6, env.stockOf(t, "m-plank"))

	// 成功提交后构建器被丢弃
	_, err = env.service.Submit(ctx, instructor, handle)
	assert.ErrorIs(t, err, domain.ErrBuilderNotFound)
}

func TestSubmitExcludesRemovedLine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	handle := env.service.NewBuilder(ctx, instructor, "s-phy", "2026-09-01", "2026-09-03")
	first, err := env.service.AddLine(ctx, handle, "m-drill", 2)
	require.NoError(t, err)
	_, err = env.service.AddLine(ctx, handle, "m-glue", 1)
	require.NoError(t, err)
	require.NoError(t, env.service.RemoveLine(ctx, handle, first.ID))

	view, err := env.service.Submit(ctx, instructor, handle)
	require.NoError(t, err)
	require.Len(t, view.Materials, 1)
	assert.Equal(t, "m-glue", view.Materials[0].MaterialID)
	assert.Equal(t, 5, env.stockOf(t, "m-drill"))
	assert.Equal(t, 7, env.stockOf(t, "m-glue"))
}

func TestSubmitKeepsBuilderOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	handle := env.service.NewBuilder(ctx, instructor, "s-phy", "2026-09-01", "2026-09-03")
	_, err := env.service.AddLine(ctx, handle, "m-drill", 5)
	require.NoError(t, err)

	// 先被另一次提交抢走库存
	_, err = env.service.Commit(ctx, instructor,
		requestFor(instructor, domain.RequestLine{MaterialID: "m-drill", Quantity: 4}))
	require.NoError(t, err)

	_, err = env.service.Submit(ctx, instructor, handle)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// 失败的提交不丢构建器，调用方可以调整后重试
	require.NoError(t, env.service.RemoveLastLine(ctx, handle))
	_, err = env.service.AddLine(ctx, handle, "m-drill", 1)
	require.NoError(t, err)
	_, err = env.service.Submit(ctx, instructor, handle)
	require.NoError(t, err)
	assert.Equal(t, 0, env.stockOf(t, "m-drill"))
}

type policyFunc func(ctx context.Context, fact domain.LineFact) (bool, error)

func (f policyFunc) Evaluate(ctx context.Context, fact domain.LineFact) (bool, error) {
	return f(ctx, fact)
}

func TestCommitAppliesLinePolicy(t *testing.T) {
	deny := policyFunc(func(_ context.Context, fact domain.LineFact) (bool, error) {
		return fact.Quantity <= 2, nil
	})
	env := newTestEnv(t, WithLinePolicy(deny))

	_, err := env.service.Commit(context.Background(), instructor,
		requestFor(instructor, domain.RequestLine{MaterialID: "m-drill", Quantity: 3}))
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Msg, "m-drill")
	assert.Equal(t, 5, env.stockOf(t, "m-drill"))

	_, err = env.service.Commit(context.Background(), instructor,
		requestFor(instructor, domain.RequestLine{MaterialID: "m-drill", Quantity: 2}))
	require.NoError(t, err)
}

func TestRestock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.service.Restock(ctx, instructor, "m-drill", 10)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	err = env.service.Restock(ctx, admin, "m-drill", 0)
	require.ErrorAs(t, err, &validation)

	require.NoError(t, env.service.Restock(ctx, admin, "m-drill", 10))
	assert.Equal(t, 15, env.stockOf(t, "m-drill"))

	require.ErrorIs(t, env.service.Restock(ctx, admin, "m-missing", 1), domain.ErrMaterialNotFound)
}

type captureProducer struct {
	mu     sync.Mutex
	events []*domain.ReservationCommitted
}

func (p *captureProducer) PublishReservationCommitted(_ context.Context, event *domain.ReservationCommitted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type captureInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (c *captureInvalidator) Invalidate(_ context.Context, materialIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, materialIDs...)
}

func TestCommitPublishesEventAndInvalidatesSnapshots(t *testing.T) {
	producer := &captureProducer{}
	invalidator := &captureInvalidator{}
	env := newTestEnv(t, WithEventProducer(producer), WithSnapshotInvalidator(invalidator))

	r, err := env.service.Commit(context.Background(), instructor, requestFor(instructor,
		domain.RequestLine{MaterialID: "m-drill", Quantity: 1},
		domain.RequestLine{MaterialID: "m-glue", Quantity: 2},
	))
	require.NoError(t, err)

	require.Len(t, producer.events, 1)
	event := producer.events[0]
	assert.Equal(t, r.ID, event.ReservationID)
	assert.Equal(t, []domain.CommittedLine{
		{MaterialID: "m-drill", Quantity: 1},
		{MaterialID: "m-glue", Quantity: 2},
	}, event.Lines)
	assert.Equal(t, []string{"m-drill", "m-glue"}, invalidator.ids)
}

type captureLocker struct {
	mu       sync.Mutex
	acquired []string
	released []string
}

func (l *captureLocker) Acquire(materialID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, materialID)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = append(l.released, materialID)
	}, nil
}

func TestCommitAcquiresMaterialLocksInOrder(t *testing.T) {
	locker := &captureLocker{}
	env := newTestEnv(t, WithMaterialLocker(locker))

	_, err := env.service.Commit(context.Background(), instructor, requestFor(instructor,
		domain.RequestLine{MaterialID: "m-plank", Quantity: 1},
		domain.RequestLine{MaterialID: "m-drill", Quantity: 1},
		domain.RequestLine{MaterialID: "m-plank", Quantity: 1},
	))
	require.NoError(t, err)

	// 去重后按 ID 排序加锁，逆序释放
	assert.Equal(t, []string{"m-drill", "m-plank"}, locker.acquired)
	assert.Equal(t, []string{"m-plank", "m-drill"}, locker.released)
}

func TestListMaterialsSortedByName(t *testing.T) {
	env := newTestEnv(t)

	views, err := env.service.ListMaterials(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, []string{"Pine Plank", "Power Drill", "Wood Glue"},
		[]string{views[0].Name, views[1].Name, views[2].Name})
}
