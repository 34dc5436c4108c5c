// internal/service/reservation/application/query.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"taller/internal/service/reservation/domain"
)

// 状态面板默认展示的临近预约条数
const defaultUpcomingLimit = 5

// ReservationQueryService 是只读的查询投影
// 它绝不修改物料库存或预约状态
type ReservationQueryService struct {
	reservations domain.ReservationRepository
	materials    domain.MaterialRepository
	tracer       trace.Tracer
}

// NewReservationQueryService 创建查询服务实例
func NewReservationQueryService(reservations domain.ReservationRepository, materials domain.MaterialRepository, tracer trace.Tracer) *ReservationQueryService {
	return &ReservationQueryService{
		reservations: reservations,
		materials:    materials,
		tracer:       tracer,
	}
}

// Search 对教师姓名、科目名称和所属用户 ID 做大小写不敏感的子串匹配
// 空串返回全部历史，结果按预约 ID 稳定排序
func (q *ReservationQueryService) Search(ctx context.Context, term string) ([]ReservationView, error) {
	ctx, span := q.tracer.Start(ctx, "query.Search")
	defer span.End()
	span.SetAttributes(attribute.String("search.term", term))

	reservations, err := q.reservations.Search(ctx, term)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	views := make([]ReservationView, 0, len(reservations))
	for _, r := range reservations {
		views = append(views, toReservationView(r))
	}
	return views, nil
}

// StatusCounts 返回各状态的预约数量
func (q *ReservationQueryService) StatusCounts(ctx context.Context) (map[string]int, error) {
	ctx, span := q.tracer.Start(ctx, "query.StatusCounts")
	defer span.End()

	counts, err := q.reservations.CountByStatus(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out, nil
}

// Upcoming 返回按使用日期升序的前 limit 条生效预约
func (q *ReservationQueryService) Upcoming(ctx context.Context, limit int) ([]ReservationView, error) {
	ctx, span := q.tracer.Start(ctx, "query.Upcoming")
	defer span.End()

	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	reservations, err := q.reservations.Upcoming(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	views := make([]ReservationView, 0, len(reservations))
	for _, r := range reservations {
		views = append(views, toReservationView(r))
	}
	return views, nil
}

// Dashboard 聚合状态面板数据：状态计数、临近预约和物料总量
// 三路查询互相独立，用 errgroup 并发取回
func (q *ReservationQueryService) Dashboard(ctx context.Context) (*DashboardView, error) {
	ctx, span := q.tracer.Start(ctx, "query.Dashboard")
	defer span.End()

	view := &DashboardView{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := q.StatusCounts(gctx)
		if err != nil {
			return err
		}
		view.StatusCounts = counts
		return nil
	})
	g.Go(func() error {
		upcoming, err := q.Upcoming(gctx, defaultUpcomingLimit)
		if err != nil {
			return err
		}
		view.Upcoming = upcoming
		return nil
	})
	g.Go(func() error {
		available, total, err := q.materials.StockSummary(gctx)
		if err != nil {
			return err
		}
		view.AvailableUnits = available
		view.TotalUnits = total
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return view, nil
}
