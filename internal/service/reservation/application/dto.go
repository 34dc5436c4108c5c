// internal/service/reservation/application/dto.go
package application

import "taller/internal/service/reservation/domain"

// MaterialView 是物料目录的展示数据
type MaterialView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Unit              string `json:"unit"`
	AvailableQuantity int    `json:"available_quantity"`
}

// SubjectView 是科目目录的展示数据
type SubjectView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PendingLineView 是构建器中一条候选行的展示数据
type PendingLineView struct {
	ID           string `json:"id"`
	MaterialID   string `json:"material_id"`
	MaterialName string `json:"material_name"`
	Unit         string `json:"unit"`
	Quantity     int    `json:"quantity"`
}

// BuilderView 是构建器当前内容的展示数据
type BuilderView struct {
	Handle string            `json:"handle"`
	Lines  []PendingLineView `json:"lines"`
}

// AllocationView 是一条已提交分配行的展示数据
type AllocationView struct {
	MaterialID   string `json:"material_id"`
	MaterialName string `json:"material_name"`
	Quantity     int    `json:"quantity"`
}

// ReservationView 是预约的展示数据，带反规范化的名称
type ReservationView struct {
	ID              string           `json:"id"`
	TeacherID       string           `json:"teacher_id"`
	TeacherName     string           `json:"teacher_name"`
	SubjectName     string           `json:"subject_name"`
	ReservationDate string           `json:"reservation_date"`
	UsageDate       string           `json:"usage_date"`
	Status          string           `json:"status"`
	Materials       []AllocationView `json:"materials"`
}

// DashboardView 聚合车间状态面板所需的全部数据
type DashboardView struct {
	StatusCounts   map[string]int    `json:"status_counts"`
	Upcoming       []ReservationView `json:"upcoming"`
	AvailableUnits int               `json:"available_units"`
	TotalUnits     int               `json:"total_units"`
}

func toMaterialView(m *domain.Material) MaterialView {
	return MaterialView{ID: m.ID, Name: m.Name, Unit: m.Unit, AvailableQuantity: m.AvailableQuantity}
}

func toReservationView(r *domain.Reservation) ReservationView {
	view := ReservationView{
		ID:              r.ID,
		TeacherID:       r.TeacherID,
		TeacherName:     r.TeacherName,
		SubjectName:     r.SubjectName,
		ReservationDate: r.ReservationDate,
		UsageDate:       r.UsageDate,
		Status:          string(r.Status),
		Materials:       []AllocationView{},
	}
	for _, a := range r.Allocations {
		view.Materials = append(view.Materials, AllocationView{
			MaterialID:   a.MaterialID,
			MaterialName: a.MaterialName,
			Quantity:     a.Quantity,
		})
	}
	return view
}
