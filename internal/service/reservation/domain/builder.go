// internal/service/reservation/domain/builder.go
package domain

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// PendingLine 是提交前暂存的候选分配行，不会被持久化
// 名称和单位是加行时刻的快照，仅用于展示
type PendingLine struct {
	ID           string
	MaterialID   string
	MaterialName string
	Unit         string
	Quantity     int
}

// RequestBuilder 在提交前累积一次预约请求的全部内容
// 它对库存的校验基于时点快照，只是交互层面的提前提示；
// 权威校验永远发生在引擎的提交事务内
type RequestBuilder struct {
	mu sync.Mutex

	principal       Principal
	teacherName     string
	subjectID       string
	reservationDate string
	usageDate       string
	lines           []PendingLine

	snapshots SnapshotReader
}

// NewRequestBuilder 创建一个新的请求构建器
// 教师姓名默认取自认证主体，可以被覆盖（管理员代为预约的场景）
func NewRequestBuilder(principal Principal, subjectID, reservationDate, usageDate string, snapshots SnapshotReader) *RequestBuilder {
	return &RequestBuilder{
		principal:       principal,
		teacherName:     principal.Name,
		subjectID:       subjectID,
		reservationDate: reservationDate,
		usageDate:       usageDate,
		snapshots:       snapshots,
	}
}

// SetTeacherName 覆盖展示用的教师姓名
func (b *RequestBuilder) SetTeacherName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teacherName = name
}

// AddLine 校验并追加一条候选行
// 数量必须是正整数；超过快照可用量时直接拒绝，
// 但快照可能已经过期，所以这里通过不代表提交一定成功
func (b *RequestBuilder) AddLine(ctx context.Context, materialID string, quantity int) (*PendingLine, error) {
	if quantity <= 0 {
		return nil, NewValidationError("invalid quantity")
	}

	material, err := b.snapshots.Snapshot(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if quantity > material.AvailableQuantity {
		return nil, NewValidationError("exceeds stock: only %d %s available", material.AvailableQuantity, material.Unit)
	}

	line := PendingLine{
		ID:           uuid.New().String(),
		MaterialID:   material.ID,
		MaterialName: material.Name,
		Unit:         material.Unit,
		Quantity:     quantity,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	return &line, nil
}

// RemoveLine 按行 ID 删除一条候选行
func (b *RequestBuilder) RemoveLine(lineID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, line := range b.lines {
		if line.ID == lineID {
			b.lines = append(b.lines[:i], b.lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// RemoveLast 删除最近添加的一行，没有行时为 no-op
func (b *RequestBuilder) RemoveLast() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) > 0 {
		b.lines = b.lines[:len(b.lines)-1]
	}
}

// Reset 清空所有候选行和日期/科目字段
// 教师姓名恢复为认证主体的姓名
func (b *RequestBuilder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.subjectID = ""
	b.reservationDate = ""
	b.usageDate = ""
	b.teacherName = b.principal.Name
}

// Lines 返回候选行的副本，供展示使用
func (b *RequestBuilder) Lines() []PendingLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PendingLine, len(b.lines))
	copy(out, b.lines)
	return out
}

// ToRequest 产出不可变的提交载荷
// 四个顶层必填字段必须全部非空，否则报出第一个缺失的字段
func (b *RequestBuilder) ToRequest() (*AllocationRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &AllocationRequest{
		TeacherID:       b.principal.ID,
		TeacherName:     b.teacherName,
		SubjectID:       b.subjectID,
		ReservationDate: b.reservationDate,
		UsageDate:       b.usageDate,
	}
	if field, ok := req.firstMissingField(); !ok {
		return nil, NewValidationError("missing required field: %s", field)
	}

	req.Lines = make([]RequestLine, 0, len(b.lines))
	for _, line := range b.lines {
		req.Lines = append(req.Lines, RequestLine{MaterialID: line.MaterialID, Quantity: line.Quantity})
	}
	return req, nil
}
