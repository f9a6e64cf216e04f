package model

import (
	"bytes"
	"encoding/json"

	"gorm.io/datatypes"
)

// MatchRow is one row returned by the match_weekly_reports() procedure.
type MatchRow struct {
	EmployeeID  string         `gorm:"column:employee_id" json:"employee_id"`
	WeekEnding  string         `gorm:"column:week_ending" json:"week_ending"`
	AnswersJSON datatypes.JSON `gorm:"column:answers_json" json:"answers_json"`
	Similarity  float64        `gorm:"column:similarity" json:"similarity"`
}

// AnswersText renders the answers document as compact JSON text.
// A missing document renders as "null".
func (r MatchRow) AnswersText() string {
	if len(r.AnswersJSON) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, r.AnswersJSON); err != nil {
		return string(r.AnswersJSON)
	}
	return buf.String()
}
