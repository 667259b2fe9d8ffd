package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"bmitracker/internal/domain"
)

var (
	// ErrInvalidHeight is returned when the evaluator reports the invalid-height sentinel.
	ErrInvalidHeight = errors.New("height must be greater than zero")
	// ErrInvalidWeight is returned for a non-positive weight.
	ErrInvalidWeight = errors.New("weight must be greater than zero")
	// ErrUnknownUnit is returned for an unsupported weight or height unit.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrNonFiniteBMI is returned when a measurement overflows to an infinite or NaN BMI.
	ErrNonFiniteBMI = errors.New("bmi is not a finite number")
)

// RecentLimit is the number of records returned alongside statistics.
const RecentLimit = 5

// EvaluationObserver is notified of every evaluation and stored record.
type EvaluationObserver interface {
	ObserveEvaluation(category domain.Category)
	ObserveRecordAppended()
}

// MeasurementInput is a raw submission before unit conversion. Empty units
// default to kg and m.
type MeasurementInput struct {
	Weight     float64 `json:"weight"`
	Height     float64 `json:"height"`
	WeightUnit string  `json:"weightUnit,omitempty"`
	HeightUnit string  `json:"heightUnit,omitempty"`
}

// Measurement converts the input to kilograms and meters.
func (in MeasurementInput) Measurement() (domain.Measurement, error) {
	wu, hu := in.WeightUnit, in.HeightUnit
	if wu == "" {
		wu = "kg"
	}
	if hu == "" {
		hu = "m"
	}
	if !domain.ValidWeightUnit(wu) {
		return domain.Measurement{}, fmt.Errorf("%w: weight unit %q, want kg or lb", ErrUnknownUnit, wu)
	}
	heightM, ok := domain.HeightToMeters(in.Height, hu)
	if !ok {
		return domain.Measurement{}, fmt.Errorf("%w: height unit %q, want m, cm or in", ErrUnknownUnit, hu)
	}
	return domain.Measurement{
		WeightKg: domain.ConvertWeight(in.Weight, wu, "kg"),
		HeightM:  heightM,
	}, nil
}

// BMIService encapsulates BMI evaluation and history use cases.
type BMIService struct {
	repo     domain.RecordRepository
	observer EvaluationObserver
	now      func() time.Time
}

// NewBMIService creates a BMIService backed by the given repository. observer
// may be nil.
func NewBMIService(repo domain.RecordRepository, observer EvaluationObserver) *BMIService {
	return &BMIService{repo: repo, observer: observer, now: time.Now}
}

// Evaluate converts and evaluates a submission without storing it. The
// invalid-height sentinel is returned as a result, not an error.
func (s *BMIService) Evaluate(in MeasurementInput) (domain.Measurement, domain.BMIResult, error) {
	m, err := in.Measurement()
	if err != nil {
		return domain.Measurement{}, domain.BMIResult{}, err
	}
	if m.WeightKg <= 0 {
		return m, domain.BMIResult{}, ErrInvalidWeight
	}
	if !finite(m.WeightKg) || !finite(m.HeightM) {
		return m, domain.BMIResult{}, ErrNonFiniteBMI
	}
	res := domain.Evaluate(m.WeightKg, m.HeightM)
	if !finite(res.Value) {
		return m, domain.BMIResult{}, ErrNonFiniteBMI
	}
	if s.observer != nil {
		s.observer.ObserveEvaluation(res.Category)
	}
	return m, res, nil
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Record evaluates a submission and appends it to the user's history.
// Invalid heights are rejected before anything is stored.
func (s *BMIService) Record(ctx context.Context, userID int64, in MeasurementInput) (*domain.Record, error) {
	m, res, err := s.Evaluate(in)
	if err != nil {
		return nil, err
	}
	if !res.Valid() {
		return nil, ErrInvalidHeight
	}
	at := s.now().UTC()
	id, err := s.repo.AppendRecord(ctx, userID, m, res, at)
	if err != nil {
		return nil, fmt.Errorf("append record: %w", err)
	}
	if s.observer != nil {
		s.observer.ObserveRecordAppended()
	}
	return &domain.Record{ID: id, UserID: userID, Measurement: m, BMIResult: res, RecordedAt: at}, nil
}

// History returns the user's records, most recent first.
func (s *BMIService) History(ctx context.Context, userID int64) ([]domain.Record, error) {
	return s.repo.ListRecords(ctx, userID)
}

// Statistics aggregates the user's history. stats is nil when the user has no
// records; recent holds at most RecentLimit records.
func (s *BMIService) Statistics(ctx context.Context, userID int64) (stats *domain.Statistics, recent []domain.Record, err error) {
	series, err := s.repo.ListRecords(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	recent = series
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	return domain.Aggregate(series), recent, nil
}

// ExportCSV writes the user's history as CSV, most recent first.
func (s *BMIService) ExportCSV(ctx context.Context, userID int64, w io.Writer) error {
	series, err := s.repo.ListRecords(ctx, userID)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"weight", "height", "bmi", "category", "recorded_at"}); err != nil {
		return err
	}
	for _, r := range series {
		row := []string{
			strconv.FormatFloat(r.WeightKg, 'f', -1, 64),
			strconv.FormatFloat(r.HeightM, 'f', -1, 64),
			strconv.FormatFloat(r.Value, 'f', 2, 64),
			string(r.Category),
			r.RecordedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
