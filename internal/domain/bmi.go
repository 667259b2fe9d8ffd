package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// Category is the BMI classification label.
type Category string

// BMI categories. CategoryInvalidHeight is a sentinel, not a real band.
const (
	CategoryUnderweight   Category = "Underweight"
	CategoryNormal        Category = "Normal weight"
	CategoryOverweight    Category = "Overweight"
	CategoryObese         Category = "Obese"
	CategoryInvalidHeight Category = "Invalid height"
)

// Band is one row of the category boundary table. Min is inclusive and Max
// exclusive; infinite bounds mark the open ends.
type Band struct {
	Category Category `json:"category"`
	Min      float64  `json:"-"`
	Max      float64  `json:"-"`
}

// Bands is the category boundary table in ascending order.
var Bands = []Band{
	{Category: CategoryUnderweight, Min: math.Inf(-1), Max: 18.5},
	{Category: CategoryNormal, Min: 18.5, Max: 25},
	{Category: CategoryOverweight, Min: 25, Max: 30},
	{Category: CategoryObese, Min: 30, Max: math.Inf(1)},
}

// Contains reports whether bmi falls inside the band.
func (b Band) Contains(bmi float64) bool {
	return bmi >= b.Min && bmi < b.Max
}

// Measurement is a single weight/height submission in kilograms and meters.
type Measurement struct {
	WeightKg float64 `json:"weight"`
	HeightM  float64 `json:"height"`
}

// BMIResult is the outcome of evaluating a Measurement.
type BMIResult struct {
	Value    float64  `json:"bmi"`
	Category Category `json:"category"`
}

// Valid reports whether the result carries a real BMI rather than the
// invalid-height sentinel.
func (r BMIResult) Valid() bool {
	return r.Category != CategoryInvalidHeight
}

// Classify maps an unrounded BMI value to its category.
func Classify(bmi float64) Category {
	for _, b := range Bands {
		if b.Contains(bmi) {
			return b.Category
		}
	}
	// NaN falls through every comparison.
	return CategoryObese
}

// Evaluate computes the BMI for weightKg and heightM. A height that is not
// positive yields the CategoryInvalidHeight sentinel with a zero value; callers
// must check Valid before using the result.
func Evaluate(weightKg, heightM float64) BMIResult {
	if heightM <= 0 {
		return BMIResult{Value: 0, Category: CategoryInvalidHeight}
	}
	bmi := weightKg / (heightM * heightM)
	return BMIResult{Value: Round2(bmi), Category: Classify(bmi)}
}

// Round2 rounds v to two decimal places, half away from zero, on the shortest
// decimal representation of v.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
