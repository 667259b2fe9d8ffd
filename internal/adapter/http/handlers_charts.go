package adapthttp

import (
	"net/http"

	"bmitracker/internal/app"
)

func (s *Server) handleChartsTrends(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	unit := r.URL.Query().Get("unit")
	if unit == "" {
		unit = "kg"
	}

	trends, err := s.charts.GetTrends(r.Context(), user.ID, unit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if trends == nil {
		trends = &app.Trends{
			BMI:          []app.Point{},
			BMIReference: app.ReferenceLines(),
			Weight:       []app.Point{},
			WeightUnit:   unit,
			Distribution: []app.CategoryCount{},
		}
	}
	writeJSON(w, http.StatusOK, trends)
}
