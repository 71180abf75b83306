// Package etuovi discovers detached-house listings from etuovi.com.
package etuovi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"house-finder/client"
	"house-finder/services"
	"house-finder/utils"
)

const (
	defaultSearchURL  = "https://www.etuovi.com/api/v2/announcements/search/listpage"
	defaultDetailBase = "https://www.etuovi.com/kohde/"
	defaultPageSize   = 100
	// maxPages guards against a provider that keeps returning new ids forever.
	maxPages = 200
)

// PublishingTimes lists the accepted recency windows.
var PublishingTimes = []string{
	"ANY_DAY", "WITHIN_ONE_DAY", "WITHIN_TWO_DAYS", "WITHIN_SEVEN_DAYS", "WITHIN_TWO_WEEKS",
}

// Config describes one search.
type Config struct {
	PriceMax       *int
	PublishingTime string
	Cities         []string
	PageSize       int

	CacheSearch bool
	CacheDetail bool

	// Overridable for tests.
	SearchURL  string
	DetailBase string
}

// Source pages through the listpage search API.
type Source struct {
	search *client.Client
	detail *client.Client
	cfg    Config
	logger *utils.Logger
}

// New creates a Source. search and detail may share a rate limiter but
// normally carry different caches.
func New(search, detail *client.Client, cfg Config, logger *utils.Logger) *Source {
	if cfg.SearchURL == "" {
		cfg.SearchURL = defaultSearchURL
	}
	if cfg.DetailBase == "" {
		cfg.DetailBase = defaultDetailBase
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PublishingTime == "" {
		cfg.PublishingTime = "ANY_DAY"
	}
	return &Source{search: search, detail: detail, cfg: cfg, logger: logger}
}

type locationTerm struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type pagination struct {
	FirstResult int `json:"firstResult"`
	MaxResults  int `json:"maxResults"`
	Page        int `json:"page"`
}

type searchRequest struct {
	PropertyType                 string   `json:"propertyType"`
	PriceMax                     *int     `json:"priceMax,omitempty"`
	PublishingTimeSearchCriteria string   `json:"publishingTimeSearchCriteria"`
	OwnershipTypes               []string `json:"ownershipTypes"`
	PlotHoldingTypes             []string `json:"plotHoldingTypes"`
	ResidentialPropertyTypes     []string `json:"residentialPropertyTypes"`
	LocationSearchCriteria       struct {
		ClassifiedLocationTerms []locationTerm `json:"classifiedLocationTerms"`
	} `json:"locationSearchCriteria"`
	Pagination pagination `json:"pagination"`
}

type searchResponse struct {
	Announcements     []announcementRecord `json:"announcements"`
	CountOfAllResults int                  `json:"countOfAllResults"`
}

type announcementRecord struct {
	FriendlyID               string   `json:"friendlyId"`
	AddressLine1             string   `json:"addressLine1"`
	Latitude                 *float64 `json:"latitude"`
	Longitude                *float64 `json:"longitude"`
	ConstructionFinishedYear *int     `json:"constructionFinishedYear"`
	SearchPrice              *int     `json:"searchPrice"`
	Area                     *float64 `json:"area"`
	TotalArea                *float64 `json:"totalArea"`
}

func (s *Source) request(page int) searchRequest {
	req := searchRequest{
		PropertyType:                 "RESIDENTIAL",
		PriceMax:                     s.cfg.PriceMax,
		PublishingTimeSearchCriteria: s.cfg.PublishingTime,
		OwnershipTypes:               []string{"OWN"},
		PlotHoldingTypes:             []string{"OWN"},
		ResidentialPropertyTypes:     []string{"DETACHED_HOUSE"},
		Pagination: pagination{
			FirstResult: (page - 1) * s.cfg.PageSize,
			MaxResults:  s.cfg.PageSize,
			Page:        page,
		},
	}
	terms := make([]locationTerm, 0, len(s.cfg.Cities))
	for _, city := range s.cfg.Cities {
		terms = append(terms, locationTerm{Type: "CITY", Code: strings.ToUpper(strings.TrimSpace(city))})
	}
	req.LocationSearchCriteria.ClassifiedLocationTerms = terms
	return req
}

// Listings pages through the search until a page yields no new ids or the
// provider-reported total is reached.
func (s *Source) Listings(ctx context.Context) ([]services.Listing, error) {
	seen := utils.NewSeenSet()
	var listings []services.Listing

	for page := 1; page <= maxPages; page++ {
		resp, err := client.JSON[searchResponse](ctx, s.search, client.Request{
			Method:  http.MethodPost,
			URL:     s.cfg.SearchURL,
			Payload: s.request(page),
			Cache:   s.cfg.CacheSearch,
		})
		if err != nil {
			return listings, fmt.Errorf("etuovi: search page %d: %w", page, err)
		}

		added := 0
		for _, rec := range resp.Announcements {
			if rec.FriendlyID == "" || !seen.Add(rec.FriendlyID) {
				continue
			}
			listings = append(listings, s.newAnnouncement(rec))
			added++
		}

		s.logger.Info("[etuovi] Page %d: %d new (%d/%d total)", page, added, seen.Size(), resp.CountOfAllResults)

		if added == 0 || seen.Size() >= resp.CountOfAllResults {
			break
		}
	}

	return listings, nil
}
