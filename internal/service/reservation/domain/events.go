// internal/service/reservation/domain/events.go
package domain

import "time"

// CommittedLine 是事件中的一条已提交分配
type CommittedLine struct {
	MaterialID string `json:"material_id"`
	Quantity   int    `json:"quantity"`
}

// ReservationCommitted 在引擎成功提交后发布
// 事件携带预约 ID，下游消费者可以据此去重
type ReservationCommitted struct {
	ReservationID string          `json:"reservation_id"`
	TeacherID     string          `json:"teacher_id"`
	SubjectID     string          `json:"subject_id"`
	UsageDate     string          `json:"usage_date"`
	Lines         []CommittedLine `json:"lines"`
	CommittedAt   time.Time       `json:"committed_at"`
}

// NewReservationCommitted 从已提交的预约构造事件
func NewReservationCommitted(r *Reservation) *ReservationCommitted {
	event := &ReservationCommitted{
		ReservationID: r.ID,
		TeacherID:     r.TeacherID,
		SubjectID:     r.SubjectID,
		UsageDate:     r.UsageDate,
		CommittedAt:   time.Now(),
	}
	for _, a := range r.Allocations {
		event.Lines = append(event.Lines, CommittedLine{MaterialID: a.MaterialID, Quantity: a.Quantity})
	}
	return event
}
