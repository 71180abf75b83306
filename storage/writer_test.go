package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"house-finder/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func sampleResults() []*models.EnrichedResult {
	return []*models.EnrichedResult{
		{URL: "https://www.etuovi.com/kohde/1"},
		{
			ListingID: "2", URL: "https://www.etuovi.com/kohde/2",
			Price: intPtr(189000), HouseArea: floatPtr(120), PricePerHouseArea: intPtr(1575),
			Broadband: []models.BroadbandOffer{
				{Name: "Kuitu (fiber)", EurosPerMonth: 39.9, Mbps: 1000},
				{Name: "Kaapeli (cable)", EurosPerMonth: 19.9, Mbps: 100},
			},
		},
	}
}

func TestCSVWriterWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, "run-1")
	w.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	if err := w.WriteResults(sampleResults()); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	want := filepath.Join(dir, "results_20240506_070809_run-1.csv")
	if w.Path() != want {
		t.Errorf("path: got %s, want %s", w.Path(), want)
	}

	f, err := os.Open(want)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 3 {
		t.Fatalf("records: got %d, want header + 2", len(records))
	}
	header := strings.Join(records[0], "|")
	wantHeader := "URL|Price k€|Floors|Area (house) m²|Price/Area (house) €/m²|Area (total) m²|" +
		"Price/Area (total) €/m²|Straight to location km|Biking to location km|Year|Internet"
	if header != wantHeader {
		t.Errorf("header:\ngot  %s\nwant %s", header, wantHeader)
	}
	if records[2][1] != "189" || records[2][4] != "1575" {
		t.Errorf("row values: %q", records[2])
	}
	if records[2][10] != "\nKuitu (fiber): 39.90 €/kk 1000 Mbit/s\nKaapeli (cable): 19.90 €/kk 100 Mbit/s" {
		t.Errorf("internet cell: %q", records[2][10])
	}
	if records[1][1] != "" {
		t.Errorf("missing price should be empty: %q", records[1])
	}
}

func TestCSVWriterNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, "run-1")
	w.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	if err := w.WriteResults(nil); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteResults(nil); err == nil {
		t.Error("second write with the same name should fail instead of overwriting")
	}
}

func TestInsertBatchPlaceholders(t *testing.T) {
	query, args := insertBatch("run-1", sampleResults())

	if len(args) != 2*resultColumns {
		t.Fatalf("args: got %d, want %d", len(args), 2*resultColumns)
	}
	if !strings.Contains(query, "$30)") || strings.Contains(query, "$31") {
		t.Errorf("unexpected placeholders in %s", query)
	}
	if !strings.Contains(query, "ON CONFLICT (run_id, url) DO NOTHING") {
		t.Error("insert should be idempotent per run and url")
	}
	if args[0] != "run-1" || args[2] != "https://www.etuovi.com/kohde/1" {
		t.Errorf("first row args: %v", args[:3])
	}
}
