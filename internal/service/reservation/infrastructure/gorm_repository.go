// internal/service/reservation/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taller/internal/service/reservation/domain"
)

// GormMaterialRepository 是 MaterialRepository 的 GORM 实现
type GormMaterialRepository struct {
	db *gorm.DB
}

// NewGormMaterialRepository 创建一个新的 GORM 仓储实例
func NewGormMaterialRepository(db *gorm.DB) *GormMaterialRepository {
	return &GormMaterialRepository{db: db}
}

func (r *GormMaterialRepository) List(ctx context.Context) ([]*domain.Material, error) {
	var models []MaterialModel
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, domain.WrapTransient(pkgerrors.Wrap(err, "list materials"))
	}
	materials := make([]*domain.Material, 0, len(models))
	for i := range models {
		materials = append(materials, ToDomainMaterial(&models[i]))
	}
	return materials, nil
}

func (r *GormMaterialRepository) FindByID(ctx context.Context, id string) (*domain.Material, error) {
	var model MaterialModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMaterialNotFound
		}
		return nil, domain.WrapTransient(pkgerrors.Wrap(err, "find material"))
	}
	return ToDomainMaterial(&model), nil
}

// FindByIDForUpdate 用 SELECT ... FOR UPDATE 读取物料行
// 持有行锁直到外层事务结束，保证读到的可用量不会被并发提交修改
func (r *GormMaterialRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Material, error) {
	var model MaterialModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMaterialNotFound
		}
		return nil, domain.WrapTransient(pkgerrors.Wrap(err, "lock material"))
	}
	return ToDomainMaterial(&model), nil
}

// DecrementStock 带守护条件的扣减：available_quantity >= quantity
// 引擎已经在行锁下复核过余量，这里的条件是数据库层面的最后一道兜底，
// 保证 available_quantity 在任何路径下都不会变成负数
func (r *GormMaterialRepository) DecrementStock(ctx context.Context, id string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&MaterialModel{}).
		Where("id = ? AND available_quantity >= ?", id, quantity).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity - ?", quantity))
	if res.Error != nil {
		return domain.WrapTransient(pkgerrors.Wrap(res.Error, "decrement stock"))
	}
	if res.RowsAffected == 0 {
		// 区分是物料不存在还是余量不足
		material, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return &domain.InsufficientStockError{
			MaterialID: id,
			Requested:  quantity,
			Available:  material.AvailableQuantity,
		}
	}
	return nil
}

func (r *GormMaterialRepository) IncrementStock(ctx context.Context, id string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&MaterialModel{}).
		Where("id = ?", id).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity + ?", quantity))
	if res.Error != nil {
		return domain.WrapTransient(pkgerrors.Wrap(res.Error, "increment stock"))
	}
	if res.RowsAffected == 0 {
		return domain.ErrMaterialNotFound
	}
	return nil
}

func (r *GormMaterialRepository) StockSummary(ctx context.Context) (int, int, error) {
	var available int64
	err := r.db.WithContext(ctx).Model(&MaterialModel{}).
		Select("COALESCE(SUM(available_quantity), 0)").
		Scan(&available).Error
	if err != nil {
		return 0, 0, domain.WrapTransient(pkgerrors.Wrap(err, "sum available stock"))
	}

	// 生效预约占用的数量，加回去得到总量
	var allocated int64
	err = r.db.WithContext(ctx).Model(&ReservationMaterialModel{}).
		Joins("JOIN reservations ON reservations.id = reservation_materials.reservation_id").
		Where("reservations.status = ?", string(domain.StatusActive)).
		Select("COALESCE(SUM(reservation_materials.quantity), 0)").
		Scan(&allocated).Error
	if err != nil {
		return 0, 0, domain.WrapTransient(pkgerrors.Wrap(err, "sum allocated stock"))
	}
	return int(available), int(available + allocated), nil
}

// GormSubjectRepository 是 SubjectRepository 的 GORM 实现
type GormSubjectRepository struct {
	db *gorm.DB
}

func NewGormSubjectRepository(db *gorm.DB) *GormSubjectRepository {
	return &GormSubjectRepository{db: db}
}

func (r *GormSubjectRepository) List(ctx context.Context) ([]*domain.Subject, error) {
	var models []SubjectModel
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, domain.WrapTransient(pkgerrors.Wrap(err, "list subjects"))
	}
	subjects := make([]*domain.Subject, 0, len(models))
	for i := range models {
		subjects = append(subjects, ToDomainSubject(&models[i]))
	}
	return subjects, nil
}

func (r *GormSubjectRepository) FindByID(ctx context.Context, id string) (*domain.Subject, error) {
	var model SubjectModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSubjectNotFound
		}
		return nil, domain.WrapTransient(pkgerrors.Wrap(err, "find subject"))
	}
	return ToDomainSubject(&model), nil
}

// GormReservationRepository 是 ReservationRepository 的 GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	model := FromDomainReservation(reservation)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateEntry(err) {
			// 同一 ID 重复插入说明调用方在未知结果的情况下重放了请求
			return domain.NewValidationError("reservation %s already exists", reservation.ID)
		}
		return domain.WrapTransient(pkgerrors.Wrap(err, "create reservation"))
	}
	return nil
}

func (r *GormReservationRepository) AddAllocation(ctx context.Context, allocation *domain.MaterialAllocation) error {
	model := FromDomainAllocation(allocation)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domain.WrapTransient(pkgerrors.Wrap(err, "create allocation"))
	}
	return nil
}

func (r *GormReservationRepository) Search(ctx context.Context, term string) ([]*domain.Reservation, error) {
	query := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Joins("LEFT JOIN subjects ON subjects.id = reservations.subject_id").
		Preload("Subject").
		Preload("Allocations").
		Order("reservations.id")

	if term = strings.TrimSpace(term); term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		query = query.Where(
			"LOWER(reservations.teacher_name) LIKE ? OR LOWER(subjects.name) LIKE ? OR LOWER(reservations.user_id) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var models []ReservationModel
	if err := query.Find(&models).Error; err != nil {
		return nil, domain.WrapTransient(pkgerrors.Wrap(err, "search reservations"))
	}
	reservations := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		reservations = append(reservations, ToDomainReservation(&models[i]))
	}
	return reservations, nil
}

func (r *GormReservationRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	type row struct {
		Status string
		Count  int
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, domain.WrapTransient(pkgerrors.Wrap(err, "count reservations"))
	}
	counts := make(map[domain.Status]int, len(rows))
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *GormReservationRepository) Upcoming(ctx context.Context, limit int) ([]*domain.Reservation, error) {
	var models []ReservationModel
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Preload("Allocations").
		Where("status = ?", string(domain.StatusActive)).
		Order("usage_date ASC, id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, domain.WrapTransient(pkgerrors.Wrap(err, "list upcoming reservations"))
	}
	reservations := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		reservations = append(reservations, ToDomainReservation(&models[i]))
	}
	return reservations, nil
}

// GormTxManager 把引擎的提交映射到一个数据库事务
type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

// WithinTx 在一个事务内执行 fn，fn 返回错误时整体回滚
// 事务内的仓储实例全部绑定在同一个 tx 上
func (m *GormTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, domain.Repositories{
			Materials:    NewGormMaterialRepository(tx),
			Reservations: NewGormReservationRepository(tx),
		})
	})
}

// isDuplicateEntry 识别 MySQL 的唯一键冲突 (errno 1062)
func isDuplicateEntry(err error) bool {
	var mysqlErr *gomysql.MySQLError
	return pkgerrors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
