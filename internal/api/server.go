// Package api exposes the detector's read-only HTTP surface: health,
// runtime statistics, recent encounters, and the latest water levels.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fairwater-data/encounter.report/internal/db"
	"github.com/fairwater-data/encounter.report/internal/tracker"
	"github.com/fairwater-data/encounter.report/internal/version"
)

const defaultEncounterLimit = 50

// StatsSource reports live tracker counters.
type StatsSource interface {
	Stats() tracker.Stats
}

// DepthSource reports how many rows are waiting in the write buffer.
type DepthSource interface {
	Depth() (positions, encounterPositions int)
}

// Store is the query surface the server reads from.
type Store interface {
	RecentEncounters(limit int) ([]db.Encounter, error)
	LatestWaterLevels() ([]db.WaterLevel, error)
}

type Server struct {
	runID   string
	store   Store
	tracker StatsSource
	buffer  DepthSource
}

func NewServer(runID string, store Store, tracker StatsSource, buffer DepthSource) *Server {
	return &Server{
		runID:   runID,
		store:   store,
		tracker: tracker,
		buffer:  buffer,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/encounters", s.listEncounters)
	mux.HandleFunc("/api/water/latest", s.showWaterLevels)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

type statsResponse struct {
	RunID                   string `json:"run_id"`
	Version                 string `json:"version"`
	GitSHA                  string `json:"git_sha"`
	ActiveVessels           int    `json:"active_vessels"`
	ActiveEncounters        int    `json:"active_encounters"`
	TotalEncounters         int64  `json:"total_encounters"`
	BufferedPositions       int    `json:"buffered_positions"`
	BufferedEncounterPoints int    `json:"buffered_encounter_positions"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	st := s.tracker.Stats()
	positions, encPositions := s.buffer.Depth()

	resp := statsResponse{
		RunID:                   s.runID,
		Version:                 version.Version,
		GitSHA:                  version.GitSHA,
		ActiveVessels:           st.ActiveVessels,
		ActiveEncounters:        st.ActiveEncounters,
		TotalEncounters:         st.TotalEncounters,
		BufferedPositions:       positions,
		BufferedEncounterPoints: encPositions,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
	}
}

type encounterResponse struct {
	ID            int64   `json:"id"`
	VesselA       string  `json:"vessel_a_mmsi"`
	VesselB       string  `json:"vessel_b_mmsi"`
	StartTime     string  `json:"start_time"`
	EndTime       *string `json:"end_time"`
	MinDistanceM  float64 `json:"min_distance_m"`
	EncounterType string  `json:"encounter_type"`
	CPAMeters     float64 `json:"cpa_m"`
	TCPASeconds   float64 `json:"tcpa_s"`
}

func (s *Server) listEncounters(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultEncounterLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	encounters, err := s.store.RecentEncounters(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve encounters: %v", err))
		return
	}

	resp := make([]encounterResponse, 0, len(encounters))
	for _, e := range encounters {
		resp = append(resp, encounterResponse{
			ID:            e.ID,
			VesselA:       e.VesselA,
			VesselB:       e.VesselB,
			StartTime:     e.StartTime,
			EndTime:       e.EndTime,
			MinDistanceM:  e.MinDistanceM,
			EncounterType: e.EncounterType,
			CPAMeters:     e.CPAMeters,
			TCPASeconds:   e.TCPASeconds,
		})
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write encounters")
	}
}

type waterLevelResponse struct {
	StationID      string  `json:"station_id"`
	StationName    string  `json:"station_name"`
	Source         string  `json:"source"`
	ReferenceDatum string  `json:"reference_datum"`
	Timestamp      string  `json:"timestamp"`
	LevelCM        float64 `json:"water_level_cm"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
}

func (s *Server) showWaterLevels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	levels, err := s.store.LatestWaterLevels()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve water levels: %v", err))
		return
	}

	resp := make([]waterLevelResponse, 0, len(levels))
	for _, wl := range levels {
		resp = append(resp, waterLevelResponse{
			StationID:      wl.StationID,
			StationName:    wl.StationName,
			Source:         wl.Source,
			ReferenceDatum: wl.ReferenceDatum,
			Timestamp:      wl.Timestamp,
			LevelCM:        wl.LevelCM,
			Lat:            wl.Lat,
			Lon:            wl.Lon,
		})
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write water levels")
	}
}
