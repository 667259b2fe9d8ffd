package adapthttp

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"bmitracker/internal/app"
	"bmitracker/internal/domain"
)

type categoryBand struct {
	Category domain.Category `json:"category"`
	Min      *float64        `json:"min"`
	Max      *float64        `json:"max"`
}

type evaluation struct {
	domain.Measurement
	domain.BMIResult
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	items := make([]categoryBand, 0, len(domain.Bands))
	for _, b := range domain.Bands {
		cb := categoryBand{Category: b.Category}
		// Open ends are null.
		if !math.IsInf(b.Min, 0) {
			lo := b.Min
			cb.Min = &lo
		}
		if !math.IsInf(b.Max, 0) {
			hi := b.Max
			cb.Max = &hi
		}
		items = append(items, cb)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var in app.MeasurementInput
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	m, res, err := s.bmi.Evaluate(in)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluation{Measurement: m, BMIResult: res})
}

func (s *Server) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)

	var in app.MeasurementInput
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := s.bmi.Record(r.Context(), user.ID, in)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)

	items, err := s.bmi.History(r.Context(), user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)

	var buf bytes.Buffer
	if err := s.bmi.ExportCSV(r.Context(), user.ID, &buf); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "bmi_history_"+user.Username+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)

	stats, recent, err := s.bmi.Statistics(r.Context(), user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if recent == nil {
		recent = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":  stats,
		"recent": recent,
	})
}
