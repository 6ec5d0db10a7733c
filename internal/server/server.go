package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamevents/internal/database"
	"streamevents/internal/log"
	"streamevents/internal/models"
	"streamevents/internal/summary"
)

const (
	defaultExceedanceLimit = 100
	maxExceedanceLimit     = 10000
)

// Server represents the HTTP server
type Server struct {
	db     *database.DB
	router chi.Router
}

// NewServer creates a new HTTP server over the analysis results in db
func NewServer(db *database.DB) *Server {
	s := &Server{db: db}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", s.handleHealth)
	r.Get("/stations", s.handleStations)
	r.Get("/summary", s.handleSummary)
	r.Route("/stations/{siteNo}", func(r chi.Router) {
		r.Get("/", s.handleStation)
		r.Get("/frequencies", s.handleFrequencies)
		r.Get("/exceedances", s.handleExceedances)
		r.Get("/gaps", s.handleGaps)
	})
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

// handleHealth returns the server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := s.db.Ping(); err != nil {
		log.Warnf("health check: %v", err)
		render.Status(r, http.StatusServiceUnavailable)
		status = "unhealthy"
	}

	resp := map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if run, err := s.db.GetLatestRun(); err == nil && run != nil {
		resp["last_run"] = run
	}
	render.JSON(w, r, resp)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.db.GetAllStations()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if stations == nil {
		stations = []models.Station{}
	}

	render.JSON(w, r, map[string]interface{}{
		"count":    len(stations),
		"stations": stations,
	})
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	station, err := s.db.GetStation(chi.URLParam(r, "siteNo"))
	if errors.Is(err, database.ErrStationNotFound) {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, station)
}

// handleSummary returns the station frequency table, as JSON rows or as CSV
// with ?format=csv.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	table, err := s.db.LoadSummary()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := table.WriteCSV(w); err != nil {
			log.Errorf("failed to write summary csv: %v", err)
		}
		return
	}

	rows := make([]map[string]interface{}, 0, len(table.Stations()))
	for _, site := range table.Stations() {
		row, _ := table.Row(site)
		out := map[string]interface{}{summary.KeyColumn: site}
		for k, v := range row {
			if v.Valid {
				out[k] = v.Float64
			} else {
				out[k] = nil
			}
		}
		rows = append(rows, out)
	}

	render.JSON(w, r, map[string]interface{}{
		"columns": table.Columns(),
		"rows":    rows,
	})
}

func (s *Server) handleFrequencies(w http.ResponseWriter, r *http.Request) {
	siteNo := chi.URLParam(r, "siteNo")
	freqs, err := s.db.GetFrequencies(siteNo)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if len(freqs) == 0 {
		respondError(w, r, http.StatusNotFound, "no frequencies for station "+siteNo)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		summary.KeyColumn: siteNo,
		"frequencies":     freqs,
	})
}

// handleExceedances returns the latest fired flags of a station
func (s *Server) handleExceedances(w http.ResponseWriter, r *http.Request) {
	siteNo := chi.URLParam(r, "siteNo")
	limit := defaultExceedanceLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			respondError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(l, maxExceedanceLimit)
	}

	exceedances, err := s.db.GetExceedances(siteNo, limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if exceedances == nil {
		exceedances = []models.Exceedance{}
	}

	render.JSON(w, r, map[string]interface{}{
		"count":       len(exceedances),
		"exceedances": exceedances,
	})
}

// handleGaps returns the stored gap intervals, ?kind= defaults to gauge height
func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	kind := models.GaugeHeight
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := models.ParseDataKind(k)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		kind = parsed
	}

	gaps, err := s.db.GetGaps(chi.URLParam(r, "siteNo"), kind)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if gaps == nil {
		gaps = []models.GapInterval{}
	}

	render.JSON(w, r, map[string]interface{}{
		"kind":  kind,
		"count": len(gaps),
		"gaps":  gaps,
	})
}
