package etuovi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"house-finder/client"
	"house-finder/utils"
)

const detailHTML = `<html><head>
<meta name="description" content="Rintamamiestalo hyvällä paikalla">
<script>window.__STATE__={"postCode":"33100","floorCount":2,"x":1}</script>
</head><body><h1>Omakotitalo</h1><p>Sauna ja   takka.</p></body></html>`

type fakeEtuovi struct {
	searches int64
	details  int64
	pages    map[int][]announcementRecord
	total    int
}

func (f *fakeEtuovi) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/listpage", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.searches, 1)
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode search request: %v", err)
		}
		if req.ResidentialPropertyTypes[0] != "DETACHED_HOUSE" || req.PropertyType != "RESIDENTIAL" {
			t.Errorf("unexpected search criteria: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(searchResponse{
			Announcements:     f.pages[req.Pagination.Page],
			CountOfAllResults: f.total,
		})
	})
	mux.HandleFunc("/kohde/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.details, 1)
		_, _ = w.Write([]byte(detailHTML))
	})
	return mux
}

func rec(id string, area float64) announcementRecord {
	price := 200000
	lat, lon := 61.49, 23.76
	return announcementRecord{
		FriendlyID: id, AddressLine1: "Testikatu " + id,
		Latitude: &lat, Longitude: &lon, SearchPrice: &price, Area: &area,
	}
}

func newTestSource(srv *httptest.Server) *Source {
	c := client.New("etuovi")
	return New(c, c, Config{
		Cities:     []string{"tampere"},
		PageSize:   2,
		SearchURL:  srv.URL + "/listpage",
		DetailBase: srv.URL + "/kohde/",
	}, utils.NewLogger())
}

func TestListingsPaginatesUntilTotal(t *testing.T) {
	fake := &fakeEtuovi{
		pages: map[int][]announcementRecord{
			1: {rec("1", 100), rec("2", 120)},
			2: {rec("2", 120), rec("3", 90.7)},
			3: {rec("4", 80)},
		},
		total: 3,
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	listings, err := newTestSource(srv).Listings(context.Background())
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("listings: got %d, want 3", len(listings))
	}
	if fake.searches != 2 {
		t.Errorf("search calls: got %d, want 2", fake.searches)
	}
	if got := *listings[2].HouseArea(); got != 90 {
		t.Errorf("area should be floored: got %v", got)
	}
	if !strings.HasSuffix(listings[0].URL(), "/kohde/1") {
		t.Errorf("url: got %q", listings[0].URL())
	}
}

func TestListingsStopsOnPageWithoutNewItems(t *testing.T) {
	fake := &fakeEtuovi{
		pages: map[int][]announcementRecord{
			1: {rec("1", 100), rec("2", 120)},
			2: {rec("1", 100), rec("2", 120)},
		},
		total: 50,
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	listings, err := newTestSource(srv).Listings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 2 || fake.searches != 2 {
		t.Errorf("got %d listings after %d searches, want 2 after 2", len(listings), fake.searches)
	}
}

func TestDetailDocumentFetchedOnce(t *testing.T) {
	fake := &fakeEtuovi{pages: map[int][]announcementRecord{1: {rec("1", 100)}}, total: 1}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	listings, err := newTestSource(srv).Listings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	l := listings[0]
	ctx := context.Background()

	postal, err := l.PostalCode(ctx)
	if err != nil || postal != "33100" {
		t.Errorf("PostalCode: got (%q, %v)", postal, err)
	}
	floors, err := l.Floors(ctx)
	if err != nil || floors == nil || *floors != 2 {
		t.Errorf("Floors: got (%v, %v)", floors, err)
	}
	text, err := l.FreeText(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Rintamamiestalo", "Sauna ja takka."} {
		if !strings.Contains(text, want) {
			t.Errorf("FreeText missing %q: %q", want, text)
		}
	}
	if strings.Contains(text, "postCode") {
		t.Errorf("FreeText should not include script contents: %q", text)
	}
	if fake.details != 1 {
		t.Errorf("detail fetches: got %d, want 1", fake.details)
	}
}

func TestFloorsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script>{"postCode":"00100"}</script></html>`)
	}))
	defer srv.Close()

	a := &Announcement{detail: client.New("etuovi"), detailURL: srv.URL + "/kohde/9"}
	floors, err := a.Floors(context.Background())
	if err != nil || floors != nil {
		t.Errorf("Floors: got (%v, %v), want (nil, nil)", floors, err)
	}
}
