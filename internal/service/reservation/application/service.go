// internal/service/reservation/application/service.go
package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taller/internal/pkg/logger"
	"taller/internal/service/reservation/domain"
)

// ReservationService 编排预约的构建与提交
// Commit 是唯一会改变物料库存的入口
type ReservationService struct {
	txm       domain.TxManager
	materials domain.MaterialRepository
	subjects  domain.SubjectRepository
	snapshots domain.SnapshotReader
	tracer    trace.Tracer

	// 以下依赖均可为 nil，对应能力按配置关闭
	invalidator domain.SnapshotInvalidator
	policy      domain.LinePolicy
	producer    domain.EventProducer
	locker      domain.MaterialLocker

	mu       sync.Mutex
	builders map[string]*domain.RequestBuilder
}

// Option 配置 ReservationService 的可选依赖
type Option func(*ReservationService)

func WithSnapshotInvalidator(inv domain.SnapshotInvalidator) Option {
	return func(s *ReservationService) { s.invalidator = inv }
}

func WithLinePolicy(policy domain.LinePolicy) Option {
	return func(s *ReservationService) { s.policy = policy }
}

func WithEventProducer(producer domain.EventProducer) Option {
	return func(s *ReservationService) { s.producer = producer }
}

func WithMaterialLocker(locker domain.MaterialLocker) Option {
	return func(s *ReservationService) { s.locker = locker }
}

// NewReservationService 创建预约服务实例
func NewReservationService(
	txm domain.TxManager,
	materials domain.MaterialRepository,
	subjects domain.SubjectRepository,
	snapshots domain.SnapshotReader,
	tracer trace.Tracer,
	opts ...Option,
) *ReservationService {
	s := &ReservationService{
		txm:       txm,
		materials: materials,
		subjects:  subjects,
		snapshots: snapshots,
		tracer:    tracer,
		builders:  make(map[string]*domain.RequestBuilder),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListMaterials 按名称排序返回物料目录
func (s *ReservationService) ListMaterials(ctx context.Context) ([]MaterialView, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.ListMaterials")
	defer span.End()

	materials, err := s.materials.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	views := make([]MaterialView, 0, len(materials))
	for _, m := range materials {
		views = append(views, toMaterialView(m))
	}
	return views, nil
}

// ListSubjects 返回科目目录
func (s *ReservationService) ListSubjects(ctx context.Context) ([]SubjectView, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.ListSubjects")
	defer span.End()

	subjects, err := s.subjects.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	views := make([]SubjectView, 0, len(subjects))
	for _, sub := range subjects {
		views = append(views, SubjectView{ID: sub.ID, Name: sub.Name})
	}
	return views, nil
}

// NewBuilder 为一次新的预约请求创建构建器并返回句柄
// 构建器只存在于进程内存中，随进程消失；它是交互状态，不是持久状态
func (s *ReservationService) NewBuilder(ctx context.Context, principal domain.Principal, subjectID, reservationDate, usageDate string) string {
	handle := uuid.New().String()
	builder := domain.NewRequestBuilder(principal, subjectID, reservationDate, usageDate, s.snapshots)

	s.mu.Lock()
	s.builders[handle] = builder
	s.mu.Unlock()

	logger.Ctx(ctx).Info().Str("handle", handle).Str("teacher", principal.ID).Msg("request builder created")
	return handle
}

func (s *ReservationService) builder(handle string) (*domain.RequestBuilder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	builder, ok := s.builders[handle]
	if !ok {
		return nil, domain.ErrBuilderNotFound
	}
	return builder, nil
}

// AddLine 向构建器追加一条候选行
func (s *ReservationService) AddLine(ctx context.Context, handle, materialID string, quantity int) (*PendingLineView, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.AddLine")
	defer span.End()
	span.SetAttributes(
		attribute.String("material.id", materialID),
		attribute.Int("material.quantity", quantity),
	)

	builder, err := s.builder(handle)
	if err != nil {
		return nil, err
	}
	line, err := builder.AddLine(ctx, materialID, quantity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	view := PendingLineView{
		ID:           line.ID,
		MaterialID:   line.MaterialID,
		MaterialName: line.MaterialName,
		Unit:         line.Unit,
		Quantity:     line.Quantity,
	}
	return &view, nil
}

// RemoveLine 删除构建器中的一条候选行
func (s *ReservationService) RemoveLine(ctx context.Context, handle, lineID string) error {
	builder, err := s.builder(handle)
	if err != nil {
		return err
	}
	return builder.RemoveLine(lineID)
}

// RemoveLastLine 删除最近添加的一行
func (s *ReservationService) RemoveLastLine(ctx context.Context, handle string) error {
	builder, err := s.builder(handle)
	if err != nil {
		return err
	}
	builder.RemoveLast()
	return nil
}

// ResetBuilder 清空构建器的全部内容
func (s *ReservationService) ResetBuilder(ctx context.Context, handle string) error {
	builder, err := s.builder(handle)
	if err != nil {
		return err
	}
	builder.Reset()
	return nil
}

// Submit 将构建器内容转成不可变载荷并提交给引擎
// 成功后丢弃构建器
func (s *ReservationService) Submit(ctx context.Context, principal domain.Principal, handle string) (*ReservationView, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.Submit")
	defer span.End()

	builder, err := s.builder(handle)
	if err != nil {
		return nil, err
	}
	request, err := builder.ToRequest()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	reservation, err := s.Commit(ctx, principal, request)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.builders, handle)
	s.mu.Unlock()

	view := toReservationView(reservation)
	return &view, nil
}

// Commit 是引擎的核心操作：在一个原子事务内创建预约、
// 逐行复核实时库存并扣减。任何一步失败都整体回滚，
// 存储里不会留下半个预约
func (s *ReservationService) Commit(ctx context.Context, principal domain.Principal, request *domain.AllocationRequest) (*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("teacher.id", request.TeacherID),
		attribute.Int("request.lines", len(request.Lines)),
	)

	// 非管理员只能以本人身份提交
	if !principal.IsAdministrator() && request.TeacherID != principal.ID {
		return nil, domain.NewValidationError("teacher does not match authenticated principal")
	}

	// 必填字段兜底校验（Builder 已经检查过一次）
	reservation, err := domain.NewReservation(request)
	if err != nil {
		span.RecordError(err)
		commitTotal.WithLabelValues("validation_error").Inc()
		return nil, err
	}

	// 科目必须存在，绝不隐式创建
	if _, err := s.subjects.FindByID(ctx, request.SubjectID); err != nil {
		span.RecordError(err)
		commitTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	if err := s.checkLinePolicy(ctx, principal, request); err != nil {
		span.RecordError(err)
		commitTotal.WithLabelValues("policy_rejected").Inc()
		return nil, err
	}

	// 可选的跨实例物料锁：按排序后的 ID 依次加锁，避免两个提交互相死锁
	if s.locker != nil {
		release, err := s.acquireMaterialLocks(request)
		if err != nil {
			commitTotal.WithLabelValues("transient_error").Inc()
			return nil, domain.WrapTransient(err)
		}
		defer release()
	}

	err = s.txm.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Reservations.Create(ctx, reservation); err != nil {
			return err
		}

		// 按提交顺序逐行处理；同一物料出现多行时，
		// 后面的行会看到前面的行在本事务内扣减后的余量
		for _, line := range request.Lines {
			material, err := repos.Materials.FindByIDForUpdate(ctx, line.MaterialID)
			if err != nil {
				return err
			}
			if line.Quantity > material.AvailableQuantity {
				return &domain.InsufficientStockError{
					MaterialID: line.MaterialID,
					Requested:  line.Quantity,
					Available:  material.AvailableQuantity,
				}
			}

			allocation := &domain.MaterialAllocation{
				ID:            uuid.New().String(),
				ReservationID: reservation.ID,
				MaterialID:    material.ID,
				MaterialName:  material.Name,
				Quantity:      line.Quantity,
			}
			if err := repos.Reservations.AddAllocation(ctx, allocation); err != nil {
				return err
			}
			if err := repos.Materials.DecrementStock(ctx, line.MaterialID, line.Quantity); err != nil {
				return err
			}
			reservation.Allocations = append(reservation.Allocations, *allocation)
		}
		return nil
	})
	if err != nil {
		// 回滚路径：清掉已暂存的分配行，调用方拿到的实体不包含任何已提交状态
		reservation.Allocations = nil
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation commit failed")

		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			insufficientStockTotal.WithLabelValues(insufficient.MaterialID).Inc()
			commitTotal.WithLabelValues("insufficient_stock").Inc()
		} else {
			commitTotal.WithLabelValues(outcomeLabel(err)).Inc()
		}
		logger.Ctx(ctx).Warn().Err(err).Str("teacher", request.TeacherID).Msg("reservation commit rejected")
		return nil, err
	}

	commitTotal.WithLabelValues("success").Inc()
	span.AddEvent("Reservation and allocations committed atomically")
	logger.Ctx(ctx).Info().
		Str("reservation_id", reservation.ID).
		Int("lines", len(reservation.Allocations)).
		Msg("reservation committed")

	s.afterCommit(ctx, reservation, request)
	return reservation, nil
}

// Restock 增加物料可用量，管理员专用
func (s *ReservationService) Restock(ctx context.Context, principal domain.Principal, materialID string, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "reservation.Restock")
	defer span.End()

	if !principal.IsAdministrator() {
		return domain.NewValidationError("restock requires administrator role")
	}
	if quantity <= 0 {
		return domain.NewValidationError("invalid quantity")
	}
	if err := s.materials.IncrementStock(ctx, materialID, quantity); err != nil {
		span.RecordError(err)
		return err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, materialID)
	}
	logger.Ctx(ctx).Info().Str("material_id", materialID).Int("quantity", quantity).Msg("material restocked")
	return nil
}

func (s *ReservationService) checkLinePolicy(ctx context.Context, principal domain.Principal, request *domain.AllocationRequest) error {
	if s.policy == nil {
		return nil
	}
	for _, line := range request.Lines {
		material, err := s.snapshots.Snapshot(ctx, line.MaterialID)
		if err != nil {
			return err
		}
		ok, err := s.policy.Evaluate(ctx, domain.LineFact{
			MaterialID: line.MaterialID,
			Quantity:   int64(line.Quantity),
			Available:  int64(material.AvailableQuantity),
			Role:       principal.Role,
		})
		if err != nil {
			return domain.WrapTransient(err)
		}
		if !ok {
			return domain.NewValidationError("line for material %s rejected by reservation policy", line.MaterialID)
		}
	}
	return nil
}

// acquireMaterialLocks 按排序去重后的物料 ID 依次加锁
func (s *ReservationService) acquireMaterialLocks(request *domain.AllocationRequest) (func(), error) {
	seen := make(map[string]struct{}, len(request.Lines))
	ids := make([]string, 0, len(request.Lines))
	for _, line := range request.Lines {
		if _, ok := seen[line.MaterialID]; ok {
			continue
		}
		seen[line.MaterialID] = struct{}{}
		ids = append(ids, line.MaterialID)
	}
	sort.Strings(ids)

	releases := make([]func(), 0, len(ids))
	releaseAll := func() {
		// 与加锁相反的顺序释放
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, id := range ids {
		release, err := s.locker.Acquire(id)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// afterCommit 处理提交成功后的尽力而为动作：事件发布与快照失效
// 这里的失败只记日志，不影响已提交的结果
func (s *ReservationService) afterCommit(ctx context.Context, reservation *domain.Reservation, request *domain.AllocationRequest) {
	if s.invalidator != nil {
		ids := make([]string, 0, len(request.Lines))
		for _, line := range request.Lines {
			ids = append(ids, line.MaterialID)
		}
		s.invalidator.Invalidate(ctx, ids...)
	}
	if s.producer != nil {
		if err := s.producer.PublishReservationCommitted(ctx, domain.NewReservationCommitted(reservation)); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("reservation_id", reservation.ID).Msg("failed to publish committed event")
		}
	}
}

func outcomeLabel(err error) string {
	var validation *domain.ValidationError
	var transient *domain.TransientError
	switch {
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &transient):
		return "transient_error"
	case errors.Is(err, domain.ErrMaterialNotFound), errors.Is(err, domain.ErrSubjectNotFound):
		return "not_found"
	default:
		return "error"
	}
}
