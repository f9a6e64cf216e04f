package model

type Employee struct {
	ID       string `gorm:"primaryKey;column:id" json:"id"`
	FullName string `gorm:"column:full_name" json:"full_name"`
}

func (Employee) TableName() string { return "employees" }
