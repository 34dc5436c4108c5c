// internal/service/reservation/infrastructure/mapper.go
package infrastructure

import (
	"taller/internal/service/reservation/domain"
)

// ToDomainMaterial 将数据库模型转换为领域模型
func ToDomainMaterial(model *MaterialModel) *domain.Material {
	if model == nil {
		return nil
	}
	return &domain.Material{
		ID:                model.ID,
		Name:              model.Name,
		Unit:              model.Unit,
		AvailableQuantity: model.AvailableQuantity,
	}
}

// ToDomainSubject 将数据库模型转换为领域模型
func ToDomainSubject(model *SubjectModel) *domain.Subject {
	if model == nil {
		return nil
	}
	return &domain.Subject{ID: model.ID, Name: model.Name}
}

// ToDomainReservation 将数据库模型转换为领域模型，带分配行和反规范化的科目名
func ToDomainReservation(model *ReservationModel) *domain.Reservation {
	if model == nil {
		return nil
	}
	r := &domain.Reservation{
		ID:              model.ID,
		TeacherID:       model.UserID,
		TeacherName:     model.TeacherName,
		SubjectID:       model.SubjectID,
		SubjectName:     model.Subject.Name,
		ReservationDate: model.ReservationDate,
		UsageDate:       model.UsageDate,
		Status:          domain.Status(model.Status),
		CreatedAt:       model.CreatedAt,
	}
	for _, a := range model.Allocations {
		r.Allocations = append(r.Allocations, domain.MaterialAllocation{
			ID:            a.ID,
			ReservationID: a.ReservationID,
			MaterialID:    a.MaterialID,
			MaterialName:  a.MaterialName,
			Quantity:      a.Quantity,
		})
	}
	return r
}

// FromDomainReservation 将领域模型转换为数据库模型（用于插入）
func FromDomainReservation(r *domain.Reservation) *ReservationModel {
	if r == nil {
		return nil
	}
	return &ReservationModel{
		ID:              r.ID,
		UserID:          r.TeacherID,
		TeacherName:     r.TeacherName,
		SubjectID:       r.SubjectID,
		ReservationDate: r.ReservationDate,
		UsageDate:       r.UsageDate,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
	}
}

// FromDomainAllocation 将分配行领域模型转换为数据库模型
func FromDomainAllocation(a *domain.MaterialAllocation) *ReservationMaterialModel {
	if a == nil {
		return nil
	}
	return &ReservationMaterialModel{
		ID:            a.ID,
		ReservationID: a.ReservationID,
		MaterialID:    a.MaterialID,
		MaterialName:  a.MaterialName,
		Quantity:      a.Quantity,
	}
}
