package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"weekly-assistant/internal/model"
)

type EmployeeRepository struct {
	db *gorm.DB
}

func NewEmployeeRepository(db *gorm.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// ListByIDs returns the employees whose id is in ids. Unknown ids are simply absent.
func (r *EmployeeRepository) ListByIDs(ctx context.Context, ids []string) ([]model.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var employees []model.Employee
	if err := r.db.WithContext(ctx).Select("id", "full_name").Where("id IN ?", ids).Find(&employees).Error; err != nil {
		return nil, fmt.Errorf("list employees by ids failed: %w", err)
	}
	return employees, nil
}
