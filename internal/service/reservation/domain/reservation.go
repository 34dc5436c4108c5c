// internal/service/reservation/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status 定义了预约的生命周期状态
type Status string

const (
	StatusActive    Status = "ACTIVE"    // 生效中
	StatusCompleted Status = "COMPLETED" // 已完成
	StatusCancelled Status = "CANCELLED" // 已取消
)

// Principal 是外部认证服务提供的已认证主体
// 所有核心操作都显式接收它，而不是依赖隐式的会话状态
type Principal struct {
	ID   string
	Name string
	Role string
}

const (
	RoleInstructor    = "instructor"
	RoleAdministrator = "administrator"
)

// IsAdministrator 判断主体是否具有管理员角色
func (p Principal) IsAdministrator() bool {
	return p.Role == RoleAdministrator
}

// Reservation 是预约聚合的根实体
// 它独占拥有自己的 Allocations（组合关系），一次成功的引擎提交
// 原子地创建预约和它的全部物料分配
type Reservation struct {
	ID              string
	TeacherID       string // 提交预约的教师（认证主体）
	TeacherName     string
	SubjectID       string
	ReservationDate string // yyyy-mm-dd
	UsageDate       string // yyyy-mm-dd，核心不校验其与 ReservationDate 的先后
	Status          Status
	Allocations     []MaterialAllocation
	CreatedAt       time.Time

	// 查询侧展示用，提交路径不依赖它
	SubjectName string
}

// MaterialAllocation 是预约的一条物料分配行
// 生命周期完全绑定在所属 Reservation 上，绝不独立创建或删除
type MaterialAllocation struct {
	ID            string
	ReservationID string
	MaterialID    string
	MaterialName  string // 提交时的名称快照，用于展示
	Quantity      int    // 正整数
}

// NewReservation 用工厂函数创建一个新的预约实体
// 这里对必填字段做兜底校验（Builder 已经校验过一次），
// 引擎创建的预约永远处于 ACTIVE 状态
func NewReservation(req *AllocationRequest) (*Reservation, error) {
	if field, ok := req.firstMissingField(); !ok {
		return nil, NewValidationError("missing required field: %s", field)
	}
	// 零行的预约是允许的（只占用车间，不占用物料），与历史行为保持一致
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, NewValidationError("invalid quantity for material %s", line.MaterialID)
		}
	}

	return &Reservation{
		ID:              uuid.New().String(),
		TeacherID:       req.TeacherID,
		TeacherName:     req.TeacherName,
		SubjectID:       req.SubjectID,
		ReservationDate: req.ReservationDate,
		UsageDate:       req.UsageDate,
		Status:          StatusActive,
		CreatedAt:       time.Now(),
	}, nil
}
