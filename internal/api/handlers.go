package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lox/railscore/internal/metrics"
	"github.com/lox/railscore/internal/reliability"
	"github.com/lox/railscore/internal/timeutil"
)

// reliabilityParams are the raw query parameters for /v1/reliability.
type reliabilityParams struct {
	From          string `validate:"required,len=3,alpha"`
	To            string `validate:"required,len=3,alpha"`
	Date          string `validate:"required,datetime=2006-01-02"`
	ArriveBy      string `validate:"required,datetime=15:04"`
	Operator      string `validate:"omitempty,max=4,alphanum"`
	WindowMinutes int    `validate:"min=30,max=360"`
	MinServices   int    `validate:"min=1,max=200"`
}

func (s *Server) handleReliability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := reliabilityParams{
		From:          q.Get("from_loc"),
		To:            q.Get("to_loc"),
		Date:          q.Get("date"),
		ArriveBy:      q.Get("arrive_by"),
		Operator:      q.Get("operator"),
		WindowMinutes: 120,
		MinServices:   10,
	}

	if v := q.Get("window_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.badRequest(w, "window_minutes must be an integer")
			return
		}
		params.WindowMinutes = n
	}
	if v := q.Get("min_services"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.badRequest(w, "min_services must be an integer")
			return
		}
		params.MinServices = n
	}

	if err := s.validate.Struct(params); err != nil {
		s.badRequest(w, validationMessage(err))
		return
	}

	date, err := timeutil.ParseServiceDate(params.Date)
	if err != nil {
		s.badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	arriveBy, err := time.Parse("15:04", params.ArriveBy)
	if err != nil {
		s.badRequest(w, "arrive_by must be HH:MM")
		return
	}

	results, err := s.rel.DepartureReliability(reliability.Query{
		Origin:      params.From,
		Destination: params.To,
		Date:        date,
		ArriveHour:  arriveBy.Hour(),
		ArriveMin:   arriveBy.Minute(),
		Operator:    params.Operator,
		WindowMin:   params.WindowMinutes,
		MinServices: params.MinServices,
	})
	if errors.Is(err, reliability.ErrNotPrimed) {
		metrics.ReliabilityQueries.WithLabelValues("not_primed").Inc()
		s.serverError(w, "no slot metrics computed yet; run the compute job")
		return
	}
	if err != nil {
		metrics.ReliabilityQueries.WithLabelValues("error").Inc()
		log.Printf("api: reliability query failed: %v", err)
		s.serverError(w, "internal error")
		return
	}

	metrics.ReliabilityQueries.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	metrics.ReliabilityQueries.WithLabelValues("invalid").Inc()
	writeError(w, http.StatusBadRequest, msg)
}

func (s *Server) serverError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusInternalServerError, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// validationMessage flattens validator errors into one user-facing line
// without leaking struct internals.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid parameters"
	}
	switch verrs[0].Field() {
	case "From":
		return "from_loc must be a 3-letter CRS code"
	case "To":
		return "to_loc must be a 3-letter CRS code"
	case "Date":
		return "date must be YYYY-MM-DD"
	case "ArriveBy":
		return "arrive_by must be HH:MM"
	case "Operator":
		return "operator must be a TOC code"
	case "WindowMinutes":
		return "window_minutes must be between 30 and 360"
	case "MinServices":
		return "min_services must be between 1 and 200"
	}
	return "invalid parameters"
}
