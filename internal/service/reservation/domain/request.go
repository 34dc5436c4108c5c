// internal/service/reservation/domain/request.go
package domain

// RequestLine 是提交载荷中的一条物料行
type RequestLine struct {
	MaterialID string
	Quantity   int
}

// AllocationRequest 是 Builder 产出的不可变提交载荷
// 同一物料允许出现在多条行上（不合并），引擎在事务内逐行复核
type AllocationRequest struct {
	TeacherID       string
	TeacherName     string
	SubjectID       string
	ReservationDate string
	UsageDate       string
	Lines           []RequestLine
}

// firstMissingField 按固定顺序返回第一个缺失的必填字段
func (r *AllocationRequest) firstMissingField() (string, bool) {
	switch {
	case r.TeacherID == "" || r.TeacherName == "":
		return "teacher", false
	case r.SubjectID == "":
		return "subject", false
	case r.ReservationDate == "":
		return "reservation date", false
	case r.UsageDate == "":
		return "usage date", false
	}
	return "", true
}
