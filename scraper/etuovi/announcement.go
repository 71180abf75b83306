package etuovi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"house-finder/client"
	"house-finder/models"
)

var (
	postCodePattern   = regexp.MustCompile(`"postCode":"([0-9]{5})"`)
	floorCountPattern = regexp.MustCompile(`"floorCount":([0-9]+),`)
)

// Announcement is one search hit. Its detail page is fetched on first use
// and kept for the lifetime of the value.
type Announcement struct {
	rec       announcementRecord
	detail    *client.Client
	detailURL string
	cache     bool

	mu      sync.Mutex
	html    string
	fetched bool
}

func (s *Source) newAnnouncement(rec announcementRecord) *Announcement {
	return &Announcement{
		rec:       rec,
		detail:    s.detail,
		detailURL: s.cfg.DetailBase + rec.FriendlyID,
		cache:     s.cfg.CacheDetail,
	}
}

func (a *Announcement) ID() string  { return a.rec.FriendlyID }
func (a *Announcement) URL() string { return a.detailURL }

func (a *Announcement) Location() *models.Coordinates {
	if a.rec.Latitude == nil || a.rec.Longitude == nil {
		return nil
	}
	return &models.Coordinates{Latitude: *a.rec.Latitude, Longitude: *a.rec.Longitude}
}

func (a *Announcement) HouseArea() *float64 { return floorArea(a.rec.Area) }
func (a *Announcement) TotalArea() *float64 { return floorArea(a.rec.TotalArea) }

func (a *Announcement) Price() *int            { return a.rec.SearchPrice }
func (a *Announcement) StreetAddress() string  { return a.rec.AddressLine1 }
func (a *Announcement) ConstructionYear() *int { return a.rec.ConstructionFinishedYear }

func floorArea(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := math.Floor(*v)
	return &f
}

func (a *Announcement) document(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fetched {
		return a.html, nil
	}
	html, err := a.detail.Text(ctx, client.Request{Method: http.MethodGet, URL: a.detailURL, Cache: a.cache})
	if err != nil {
		return "", fmt.Errorf("etuovi: detail %s: %w", a.rec.FriendlyID, err)
	}
	a.html = html
	a.fetched = true
	return html, nil
}

// PostalCode extracts the five-digit postal code from the detail page.
func (a *Announcement) PostalCode(ctx context.Context) (string, error) {
	html, err := a.document(ctx)
	if err != nil {
		return "", err
	}
	m := postCodePattern.FindStringSubmatch(html)
	if m == nil {
		return "", fmt.Errorf("etuovi: postal code for %s: %w", a.rec.FriendlyID, client.ErrPatternNotFound)
	}
	return m[1], nil
}

// Floors returns the floor count, or nil when the page does not state it.
func (a *Announcement) Floors(ctx context.Context) (*int, error) {
	html, err := a.document(ctx)
	if err != nil {
		return nil, err
	}
	m := floorCountPattern.FindStringSubmatch(html)
	if m == nil {
		return nil, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: floor count %q: %w", client.ErrDecode, m[1], err)
	}
	return &n, nil
}

// FreeText returns the visible text of the detail page plus its meta
// description.
func (a *Announcement) FreeText(ctx context.Context) (string, error) {
	html, err := a.document(ctx)
	if err != nil {
		return "", err
	}
	return visibleText(html)
}

var errEmptyDocument = errors.New("empty document")

func visibleText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", fmt.Errorf("%w: %w", client.ErrDecode, errEmptyDocument)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("%w: parse detail page: %w", client.ErrDecode, err)
	}
	doc.Find("script, style, noscript").Remove()

	parts := []string{}
	doc.Find(`meta[name="description"], meta[property="og:description"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			parts = append(parts, content)
		}
	})
	parts = append(parts, doc.Find("body").Text())

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}
