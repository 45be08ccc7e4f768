package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// DefaultLiveStatusURL is the Tesla Fleet API energy site endpoint; {siteId}
// is substituted at construction.
const DefaultLiveStatusURL = "https://fleet-api.prd.na.vn.cloud.tesla.com/api/1/energy_sites/{siteId}/live_status"

type teslaLiveStatus struct {
	Response struct {
		SolarPower        float64 `json:"solar_power"`
		BatteryPower      float64 `json:"battery_power"`
		GridPower         float64 `json:"grid_power"`
		LoadPower         float64 `json:"load_power"`
		PercentageCharged float64 `json:"percentage_charged"`
		GridStatus        string  `json:"grid_status"`
		Timestamp         string  `json:"timestamp"`
	} `json:"response"`
}

// LiveStatus is the compact power flow summary sent to the device. Power
// values are watts; positive battery power means discharging and positive
// grid power means importing.
type LiveStatus struct {
	SolarW     int    `json:"solar_w"`
	BatteryW   int    `json:"battery_w"`
	GridW      int    `json:"grid_w"`
	LoadW      int    `json:"load_w"`
	BatteryPct int    `json:"battery_pct"`
	GridStatus string `json:"grid_status"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// LiveStatusFetcher reads an energy site's live status
type LiveStatusFetcher struct {
	Endpoint string
	client   client
}

func NewLiveStatusFetcher(endpoint, siteID string, httpClient *http.Client) (*LiveStatusFetcher, error) {
	if endpoint == "" {
		endpoint = DefaultLiveStatusURL
	}
	if strings.Contains(endpoint, "{siteId}") {
		if siteID == "" {
			return nil, fmt.Errorf("energy site ID is required")
		}
		endpoint = strings.ReplaceAll(endpoint, "{siteId}", siteID)
	}
	return &LiveStatusFetcher{Endpoint: endpoint, client: newClient(httpClient)}, nil
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

func (f *LiveStatusFetcher) Fetch(ctx context.Context, accessToken string) (any, error) {
	var ls teslaLiveStatus
	found, err := f.client.getJSON(ctx, f.Endpoint, accessToken, &ls)
	if err != nil || !found {
		return nil, err
	}

	r := ls.Response
	return &LiveStatus{
		SolarW:     round(r.SolarPower),
		BatteryW:   round(r.BatteryPower),
		GridW:      round(r.GridPower),
		LoadW:      round(r.LoadPower),
		BatteryPct: round(r.PercentageCharged),
		GridStatus: r.GridStatus,
		Timestamp:  r.Timestamp,
	}, nil
}
