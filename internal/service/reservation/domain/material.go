// internal/service/reservation/domain/material.go
package domain

// Material 是车间里一种可预约的物料
// AvailableQuantity 是整个核心中唯一的共享可变资源，
// 只能在引擎的提交事务内被扣减，或由补货操作增加
type Material struct {
	ID                string
	Name              string
	Unit              string // 计量单位，例如 "piece"、"liter"
	AvailableQuantity int    // 不变式: 任何时刻 >= 0，包括事务中途
}

// Subject 是预约可以关联的课程科目，只读参考数据
type Subject struct {
	ID   string
	Name string
}
