// Package water polls the Rijkswaterstaat Waterinfo API (ddapi20) for the
// latest water level at the configured stations. The API needs no key and
// publishes new observations roughly every ten minutes.
package water

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fairwater-data/encounter.report/internal/config"
	"github.com/fairwater-data/encounter.report/internal/db"
)

// DefaultBaseURL is the production Waterinfo endpoint.
const DefaultBaseURL = "https://ddapi20-waterwebservices.rijkswaterstaat.nl"

const latestPath = "/ONLINEWAARNEMINGENSERVICES/OphalenLaatsteWaarnemingen"

// Levels are requested as WATHTE (water height) in cm relative to NAP.
var aquoMetadata = map[string]any{
	"AquoMetadata": map[string]any{
		"Grootheid":    map[string]string{"Code": "WATHTE"},
		"Eenheid":      map[string]string{"Code": "cm"},
		"Hoedanigheid": map[string]string{"Code": "NAP"},
	},
}

type latestRequest struct {
	Locatie                  map[string]string `json:"Locatie"`
	AquoPlusWaarnemingMetadata map[string]any  `json:"AquoPlusWaarnemingMetadata"`
}

type latestResponse struct {
	WaarnemingenLijst []struct {
		MetingenLijst []struct {
			Tijdstip   string `json:"Tijdstip"`
			Meetwaarde struct {
				WaardeNumeriek *float64 `json:"Waarde_Numeriek"`
			} `json:"Meetwaarde"`
		} `json:"MetingenLijst"`
	} `json:"WaarnemingenLijst"`
}

// Observation is one station's latest reading.
type Observation struct {
	Timestamp string
	LevelCM   float64
}

// Store is the persistence surface the poller writes to.
type Store interface {
	UpsertWaterLevel(wl db.WaterLevel) error
}

// Poller periodically fetches the latest reading for each station.
type Poller struct {
	baseURL  string
	stations []config.Station
	interval time.Duration
	store    Store
	client   *http.Client
	logger   *log.Logger
}

// NewPoller creates a Poller. A nil logger falls back to log.Default(); an
// empty baseURL uses the production endpoint.
func NewPoller(baseURL string, stations []config.Station, interval time.Duration, store Store, logger *log.Logger) *Poller {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		baseURL:  baseURL,
		stations: stations,
		interval: interval,
		store:    store,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Run polls all stations immediately and then on every interval tick until
// the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Printf("water: polling started (%d stations, interval %s)", len(p.stations), p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("water: polling stopped")
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

// pollAll fetches every station once. A failing station is logged and
// skipped; the rest of the round proceeds.
func (p *Poller) pollAll(ctx context.Context) {
	ok := 0
	for _, st := range p.stations {
		obs, err := p.fetchLatest(ctx, st.Code)
		if err != nil {
			p.logger.Printf("water: poll failed for station %s: %v", st.Code, err)
			continue
		}
		if obs == nil {
			continue
		}

		err = p.store.UpsertWaterLevel(db.WaterLevel{
			StationID:   st.Code,
			StationName: st.Name,
			Timestamp:   obs.Timestamp,
			LevelCM:     obs.LevelCM,
			Lat:         st.Lat,
			Lon:         st.Lon,
		})
		if err != nil {
			p.logger.Printf("water: store failed for station %s: %v", st.Code, err)
			continue
		}
		ok++
	}
	p.logger.Printf("water: poll round complete, %d/%d stations", ok, len(p.stations))
}

// fetchLatest returns the most recent observation for one station, or nil
// when the API has no data for it.
func (p *Poller) fetchLatest(ctx context.Context, stationCode string) (*Observation, error) {
	body, err := json.Marshal(latestRequest{
		Locatie:                    map[string]string{"Code": stationCode},
		AquoPlusWaarnemingMetadata: aquoMetadata,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+latestPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.WaarnemingenLijst) == 0 || len(parsed.WaarnemingenLijst[0].MetingenLijst) == 0 {
		return nil, nil
	}

	metingen := parsed.WaarnemingenLijst[0].MetingenLijst
	laatste := metingen[len(metingen)-1]
	if laatste.Meetwaarde.WaardeNumeriek == nil || laatste.Tijdstip == "" {
		return nil, nil
	}

	ts, err := normalizeTimestamp(laatste.Tijdstip)
	if err != nil {
		return nil, fmt.Errorf("timestamp %q: %w", laatste.Tijdstip, err)
	}

	return &Observation{Timestamp: ts, LevelCM: *laatste.Meetwaarde.WaardeNumeriek}, nil
}

// normalizeTimestamp converts the API's local-offset timestamp (for example
// "2026-02-18T12:00:00.000+01:00") to UTC "2006-01-02T15:04:05Z".
func normalizeTimestamp(ts string) (string, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", err
	}
	return t.UTC().Format("2006-01-02T15:04:05Z"), nil
}
