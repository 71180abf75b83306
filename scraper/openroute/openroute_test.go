package openroute

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"house-finder/client"
	"house-finder/models"
	"house-finder/storage"
)

func TestCyclingKm(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req directionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Coordinates[0] != [2]float64{23.76, 61.49} {
			t.Errorf("coordinates must be [lon, lat]: %v", req.Coordinates)
		}
		_, _ = w.Write([]byte(`{"routes":[{"summary":{"distance":12.34}}]}`))
	}))
	defer srv.Close()

	c := client.New("openroute", client.WithCache(storage.NewFileCache(t.TempDir(), "openroute", "json")))
	p := New(c, "secret").WithURL(srv.URL)

	from := models.Coordinates{Latitude: 61.49, Longitude: 23.76}
	to := models.Coordinates{Latitude: 61.5, Longitude: 23.8}
	for i := 0; i < 2; i++ {
		km, err := p.CyclingKm(context.Background(), from, to)
		if err != nil {
			t.Fatalf("CyclingKm: %v", err)
		}
		if km != 12.34 {
			t.Errorf("km: got %v, want 12.34", km)
		}
	}
	if calls != 1 {
		t.Errorf("directions calls: got %d, want 1 (second served from cache)", calls)
	}
}

func TestCyclingKmNoRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[]}`))
	}))
	defer srv.Close()

	p := New(client.New("openroute"), "secret").WithURL(srv.URL)
	_, err := p.CyclingKm(context.Background(), models.Coordinates{}, models.Coordinates{})
	if !errors.Is(err, client.ErrDecode) {
		t.Errorf("expected decode error, got %v", err)
	}
}
