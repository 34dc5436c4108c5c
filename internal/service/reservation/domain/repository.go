// internal/service/reservation/domain/repository.go
package domain

import "context"

// MaterialRepository 定义了物料目录的持久化接口。
// 它位于领域层，但由基础设施层实现。
type MaterialRepository interface {
	// List 按名称排序返回全部物料
	List(ctx context.Context) ([]*Material, error)

	// FindByID 根据 ID 查找物料，不存在时返回 ErrMaterialNotFound
	FindByID(ctx context.Context, id string) (*Material, error)

	// FindByIDForUpdate 对物料行加锁后读取，只允许在事务内调用
	// 引擎靠它拿到不会被并发提交修改的实时可用量
	FindByIDForUpdate(ctx context.Context, id string) (*Material, error)

	// DecrementStock 扣减可用量，带 available_quantity >= quantity 守护条件
	// 作为外层事务的一个步骤执行，事务回滚时扣减一并撤销
	DecrementStock(ctx context.Context, id string, quantity int) error

	// IncrementStock 补货（管理操作）
	IncrementStock(ctx context.Context, id string, quantity int) error

	// StockSummary 返回 (当前可用总量, 可用 + 生效预约占用的总量)
	StockSummary(ctx context.Context) (available int, total int, err error)
}

// SubjectRepository 是科目目录的只读接口
type SubjectRepository interface {
	List(ctx context.Context) ([]*Subject, error)
	FindByID(ctx context.Context, id string) (*Subject, error)
}

// ReservationRepository 定义了预约聚合的持久化接口
type ReservationRepository interface {
	// Create 插入预约行（不含分配行）
	Create(ctx context.Context, reservation *Reservation) error

	// AddAllocation 插入一条分配行，只在创建预约的同一事务内调用
	AddAllocation(ctx context.Context, allocation *MaterialAllocation) error

	// Search 大小写不敏感的子串匹配：教师姓名 / 科目名称 / 所属用户 ID
	// 结果按预约 ID 稳定排序，带反规范化的名称和分配行
	Search(ctx context.Context, term string) ([]*Reservation, error)

	// CountByStatus 返回各状态的预约数量
	CountByStatus(ctx context.Context) (map[Status]int, error)

	// Upcoming 返回按使用日期升序的前 limit 条生效预约
	Upcoming(ctx context.Context, limit int) ([]*Reservation, error)
}

// Repositories 是事务内可用的仓储集合
type Repositories struct {
	Materials    MaterialRepository
	Reservations ReservationRepository
}

// TxManager 抽象了持久化存储的事务原语
// fn 返回错误时整个事务回滚：不留下预约行、分配行和库存扣减
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// SnapshotReader 提供物料状态的时点快照，供 Builder 做提前校验
// 快照可以任意陈旧，引擎提交时的事务内复核才是唯一权威
type SnapshotReader interface {
	Snapshot(ctx context.Context, materialID string) (*Material, error)
}

// SnapshotInvalidator 在库存变更后使快照失效
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, materialIDs ...string)
}

// MaterialLocker 是可选的跨实例物料互斥原语
// 在存储不提供行级隔离时，引擎用它串行化同一物料上的提交
type MaterialLocker interface {
	Acquire(materialID string) (release func(), err error)
}

// LineFact 是行策略表达式的求值输入
type LineFact struct {
	MaterialID string
	Quantity   int64
	Available  int64
	Role       string
}

// LinePolicy 对提交前的每条物料行做管理员可配置的校验
type LinePolicy interface {
	Evaluate(ctx context.Context, fact LineFact) (bool, error)
}

// EventProducer 在预约成功提交后对外发布事件
type EventProducer interface {
	PublishReservationCommitted(ctx context.Context, event *ReservationCommitted) error
}
