package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bmitracker/internal/domain"
)

// ChartsService shapes a user's history into chart series.
type ChartsService struct {
	repo domain.RecordRepository
}

// NewChartsService creates a ChartsService backed by the given repository.
func NewChartsService(repo domain.RecordRepository) *ChartsService {
	return &ChartsService{repo: repo}
}

// Point is one timestamped chart value.
type Point struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// ReferenceLine is a horizontal marker at a category boundary.
type ReferenceLine struct {
	Value float64         `json:"value"`
	Label domain.Category `json:"label"`
}

// CategoryCount is one slice of the category distribution.
type CategoryCount struct {
	Category domain.Category `json:"category"`
	Count    int             `json:"count"`
}

// Trends holds every chart series for one user. Series run oldest first.
type Trends struct {
	BMI          []Point         `json:"bmi"`
	BMIReference []ReferenceLine `json:"bmiReference"`
	Weight       []Point         `json:"weight"`
	WeightUnit   string          `json:"weightUnit"`
	Distribution []CategoryCount `json:"distribution"`
}

// ReferenceLines returns one line per lower category boundary, labelled with
// the category that ends there.
func ReferenceLines() []ReferenceLine {
	lines := make([]ReferenceLine, 0, len(domain.Bands)-1)
	for i := 1; i < len(domain.Bands); i++ {
		lines = append(lines, ReferenceLine{Value: domain.Bands[i].Min, Label: domain.Bands[i-1].Category})
	}
	return lines
}

// GetTrends returns chart data with weights converted to unit ("kg" or "lb").
// It returns nil when the user has no records.
func (s *ChartsService) GetTrends(ctx context.Context, userID int64, unit string) (*Trends, error) {
	if !domain.ValidWeightUnit(unit) {
		return nil, fmt.Errorf("%w: chart unit %q, want kg or lb", ErrUnknownUnit, unit)
	}
	series, err := s.repo.ListRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, nil
	}

	t := &Trends{
		BMI:          make([]Point, 0, len(series)),
		BMIReference: ReferenceLines(),
		Weight:       make([]Point, 0, len(series)),
		WeightUnit:   unit,
	}
	counts := make(map[domain.Category]int)
	for i := len(series) - 1; i >= 0; i-- {
		r := series[i]
		t.BMI = append(t.BMI, Point{At: r.RecordedAt, Value: r.Value})
		t.Weight = append(t.Weight, Point{At: r.RecordedAt, Value: domain.ConvertWeight(r.WeightKg, "kg", unit)})
		counts[r.Category]++
	}

	for _, b := range domain.Bands {
		if n := counts[b.Category]; n > 0 {
			t.Distribution = append(t.Distribution, CategoryCount{Category: b.Category, Count: n})
		}
	}
	sort.SliceStable(t.Distribution, func(i, j int) bool {
		return t.Distribution[i].Count > t.Distribution[j].Count
	})
	return t, nil
}
