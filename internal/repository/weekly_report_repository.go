package repository

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"weekly-assistant/internal/model"
)

// Dates and ids are cast to text so they come back exactly as stored.
const matchWeeklyReportsSQL = `SELECT employee_id::text AS employee_id,
       week_ending::text AS week_ending,
       answers_json,
       similarity
  FROM match_weekly_reports(query_embedding => ?, match_count => ?)`

type WeeklyReportRepository struct {
	db *gorm.DB
}

func NewWeeklyReportRepository(db *gorm.DB) *WeeklyReportRepository {
	return &WeeklyReportRepository{db: db}
}

// Match runs the nearest-neighbour procedure and returns rows in the order the
// procedure yields them. The error is returned unwrapped so its message can be
// reported to callers as-is.
func (r *WeeklyReportRepository) Match(ctx context.Context, embedding []float32, count int) ([]model.MatchRow, error) {
	var rows []model.MatchRow
	err := r.db.WithContext(ctx).
		Raw(matchWeeklyReportsSQL, pgvector.NewVector(embedding), count).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
