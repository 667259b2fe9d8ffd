package postgres

import (
	"context"
	"fmt"
	"time"

	"bmitracker/internal/domain"
)

var _ domain.RecordRepository = (*DB)(nil)

type recordRow struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	WeightKg   float64   `db:"weight_kg"`
	HeightM    float64   `db:"height_m"`
	BMI        float64   `db:"bmi"`
	Category   string    `db:"category"`
	RecordedAt time.Time `db:"recorded_at"`
}

// AppendRecord inserts a new BMI record and returns its ID.
func (d *DB) AppendRecord(ctx context.Context, userID int64, m domain.Measurement, r domain.BMIResult, recordedAt time.Time) (int64, error) {
	var id int64
	err := d.sql.QueryRowxContext(ctx,
		"INSERT INTO bmi_records (user_id, weight_kg, height_m, bmi, category, recorded_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id;",
		userID, m.WeightKg, m.HeightM, r.Value, string(r.Category), recordedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert bmi record: %w", err)
	}
	return id, nil
}

// ListRecords returns the user's records, most recent first.
func (d *DB) ListRecords(ctx context.Context, userID int64) ([]domain.Record, error) {
	var rows []recordRow
	err := d.sql.SelectContext(ctx, &rows,
		"SELECT id, user_id, weight_kg, height_m, bmi, category, recorded_at FROM bmi_records WHERE user_id = $1 ORDER BY recorded_at DESC, id DESC;",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bmi records: %w", err)
	}

	out := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Record{
			ID:          row.ID,
			UserID:      row.UserID,
			Measurement: domain.Measurement{WeightKg: row.WeightKg, HeightM: row.HeightM},
			BMIResult:   domain.BMIResult{Value: row.BMI, Category: domain.Category(row.Category)},
			RecordedAt:  row.RecordedAt.UTC(),
		})
	}
	return out, nil
}
