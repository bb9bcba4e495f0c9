package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/adapters/store"
	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/projects"
	"tg-meme-pulse/internal/usecase/series"
)

var version = domain.Version{Classifier: "gpt-4o-mini", Schema: "v1"}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	fs := store.NewFS(t.TempDir())
	reg, err := projects.Parse([]byte("zyn:\n  source: \"@zynchat\"\n  coingecko_id: zyn\nempty:\n  source: \"@empty\"\n"))
	if err != nil {
		t.Fatalf("реестр: %v", err)
	}
	vibes := 60
	doc := domain.RollupDocument{
		ProjectName:       "zyn",
		ClassifierVersion: version.Classifier,
		SchemaVersion:     version.Schema,
		GeneratedAt:       time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		DateData: map[string]domain.RollupDay{
			"2024-10-15": {UserStats: domain.UserStats{MessageCount: 10}},
			"2024-10-16": {
				Metrics:   domain.CommunityMetrics{EmotionalMetrics: map[string]domain.Intensity{"vibes": {Intensity: &vibes, Context: "ok"}}},
				UserStats: domain.UserStats{MessageCount: 20},
			},
		},
	}
	if err := fs.SaveRollup(doc); err != nil {
		t.Fatalf("свёртка: %v", err)
	}
	if err := fs.SavePrices("zyn", domain.PriceSeries{"2024-10-16": {Open: 1, High: 2, Low: 1, Close: 2}}); err != nil {
		t.Fatalf("цены: %v", err)
	}

	srv := NewServer(zerolog.Nop())
	NewDashboard(fs, reg, version, zerolog.Nop()).Mount(srv.Router)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("запрос %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("разбор ответа: %v", err)
		}
	}
	return resp.StatusCode
}

func TestSeriesEndpoint(t *testing.T) {
	ts := testServer(t)
	var chart series.Chart
	if code := get(t, ts.URL+"/api/projects/zyn/series?metrics=message_count,vibes&window=2", &chart); code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", code)
	}
	if len(chart.Dates) != 2 || len(chart.Series) != 2 || chart.Window != 2 {
		t.Fatalf("неожиданный ответ: %+v", chart)
	}
	counts := chart.Series[0].Values
	if counts[0] == nil || *counts[0] != 10 || counts[1] == nil || *counts[1] != 15 {
		t.Fatalf("неожиданное среднее: %v", counts)
	}
	if v := chart.Series[1].Values; v[0] != nil || v[1] == nil || *v[1] != 60 {
		t.Fatalf("неожиданные значения vibes")
	}
	if len(chart.Price) != 2 || chart.Price[0].Price != nil || chart.Price[1].Price == nil {
		t.Fatalf("цена должна быть выровнена по датам: %+v", chart.Price)
	}
}

func TestSeriesEndpointErrors(t *testing.T) {
	ts := testServer(t)
	cases := map[string]int{
		"/api/projects/zyn/series?metrics=nope":         http.StatusBadRequest,
		"/api/projects/zyn/series?window=0":             http.StatusBadRequest,
		"/api/projects/unknown/series":                  http.StatusNotFound,
		"/api/projects/empty/metrics":                   http.StatusNotFound,
		"/api/projects/zyn/metrics?llm=other&prompt=v2": http.StatusNotFound,
		"/healthz": http.StatusOK,
	}
	for path, want := range cases {
		if code := get(t, ts.URL+path, nil); code != want {
			t.Fatalf("%s: ожидали %d, получили %d", path, want, code)
		}
	}
}

func TestProjectsEndpoint(t *testing.T) {
	ts := testServer(t)
	var out []projectView
	if code := get(t, ts.URL+"/api/projects", &out); code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", code)
	}
	if len(out) != 2 {
		t.Fatalf("ожидали 2 проекта, получили %d", len(out))
	}
}
