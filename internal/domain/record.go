package domain

import (
	"context"
	"time"
)

// Record is one persisted measurement with its evaluated BMI.
type Record struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"userId"`
	Measurement
	BMIResult
	RecordedAt time.Time `json:"recordedAt"`
}

// RecordRepository is the port for BMI record persistence. Records are
// append-only.
type RecordRepository interface {
	AppendRecord(ctx context.Context, userID int64, m Measurement, r BMIResult, recordedAt time.Time) (int64, error)
	// ListRecords returns the user's history, most recent first.
	ListRecords(ctx context.Context, userID int64) ([]Record, error)
}
