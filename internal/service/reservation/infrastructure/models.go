// internal/service/reservation/infrastructure/models.go
package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// MaterialModel 是 Material 领域对象在数据库中的表示。
type MaterialModel struct {
	ID                string `gorm:"primaryKey;size:36"`
	Name              string `gorm:"size:255;index"`
	Unit              string `gorm:"size:32"`
	AvailableQuantity int    `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (MaterialModel) TableName() string {
	return "materials"
}

// SubjectModel 是 Subject 领域对象在数据库中的表示。
type SubjectModel struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"size:255"`
}

func (SubjectModel) TableName() string {
	return "subjects"
}

// ReservationModel 是 Reservation 领域对象在数据库中的表示。
type ReservationModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	UserID          string `gorm:"size:36;index"`
	TeacherName     string `gorm:"size:255"`
	SubjectID       string `gorm:"size:36"`
	ReservationDate string `gorm:"size:10"`
	UsageDate       string `gorm:"size:10;index"`
	Status          string `gorm:"size:16;index"`
	CreatedAt       time.Time

	Subject     SubjectModel               `gorm:"foreignKey:SubjectID"`
	Allocations []ReservationMaterialModel `gorm:"foreignKey:ReservationID"`
}

func (ReservationModel) TableName() string {
	return "reservations"
}

// ReservationMaterialModel 是一条物料分配行在数据库中的表示。
// 表名沿用历史系统的 reservation_materials
type ReservationMaterialModel struct {
	ID            string `gorm:"primaryKey;size:36"`
	ReservationID string `gorm:"size:36;index"`
	MaterialID    string `gorm:"size:36;index"`
	MaterialName  string `gorm:"size:255"`
	Quantity      int    `gorm:"not null"`
}

func (ReservationMaterialModel) TableName() string {
	return "reservation_materials"
}

// AutoMigrate 建表（开发与测试环境使用，生产建议走独立迁移脚本）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&MaterialModel{},
		&SubjectModel{},
		&ReservationModel{},
		&ReservationMaterialModel{},
	)
}
