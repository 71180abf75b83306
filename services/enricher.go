package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"

	"house-finder/models"
	"house-finder/utils"
)

const defaultGeohashPrecision = 7

// ListingError records why one listing could not be evaluated.
type ListingError struct {
	URL string
	Err error
}

func (e *ListingError) Error() string { return e.URL + ": " + e.Err.Error() }
func (e *ListingError) Unwrap() error { return e.Err }

// RunReport is the aggregate outcome of one run.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Discovered int
	Excluded   int
	// Results are sorted by price per house area, missing first.
	Results  []*models.EnrichedResult
	Failures []*ListingError
}

// Enricher evaluates listings against the criteria and enriches the ones
// that pass.
type Enricher struct {
	criteria  models.Criteria
	routing   RoutingProvider
	broadband BroadbandProvider
	logger    *utils.Logger
	text      *TextFilter

	concurrency int
	precision   uint
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithConcurrency bounds the number of listings evaluated at once.
func WithConcurrency(n int) EnricherOption {
	return func(e *Enricher) { e.concurrency = n }
}

// WithGeohashPrecision sets the geohash length stored on results.
func WithGeohashPrecision(p uint) EnricherOption {
	return func(e *Enricher) { e.precision = p }
}

// NewEnricher creates an Enricher. routing and broadband may be nil, in
// which case cycling distance and offers are not computed.
func NewEnricher(criteria models.Criteria, routing RoutingProvider, broadband BroadbandProvider, logger *utils.Logger, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		criteria:    criteria,
		routing:     routing,
		broadband:   broadband,
		logger:      logger,
		text:        NewTextFilter(criteria.ExcludedWords),
		concurrency: 4,
		precision:   defaultGeohashPrecision,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// task carries per-listing memoized values.
type task struct {
	listing Listing

	cyclingKm   *float64
	cyclingDone bool
}

func (t *task) cycling(ctx context.Context, routing RoutingProvider, from, to models.Coordinates) (*float64, error) {
	if t.cyclingDone {
		return t.cyclingKm, nil
	}
	km, err := routing.CyclingKm(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("cycling distance: %w", err)
	}
	t.cyclingKm = &km
	t.cyclingDone = true
	return t.cyclingKm, nil
}

// Enrich evaluates one listing. It returns (nil, nil) when the listing is
// excluded by the criteria.
func (e *Enricher) Enrich(ctx context.Context, l Listing) (*models.EnrichedResult, error) {
	res, reason, err := e.enrich(ctx, &task{listing: l})
	if err != nil {
		return nil, err
	}
	if res == nil {
		e.logger.Debug("[enricher] Excluded %s: %s", l.URL(), reason)
	}
	return res, nil
}

func (e *Enricher) enrich(ctx context.Context, t *task) (*models.EnrichedResult, string, error) {
	l := t.listing

	// Area.
	if minArea := e.criteria.HouseMinSquareMeters; minArea != nil {
		area := l.HouseArea()
		if area == nil {
			area = l.TotalArea()
		}
		if area != nil && *area < *minArea {
			return nil, fmt.Sprintf("area %.0f m² below %.0f m²", *area, *minArea), nil
		}
	}

	ref, loc := e.criteria.Reference, l.Location()

	// Straight distance.
	var straightKm *float64
	if ref != nil && loc != nil {
		d := models.DistanceKm(*ref, *loc)
		straightKm = &d
		if maxKm := e.criteria.MaxDistanceKm; maxKm != nil && d > *maxKm {
			return nil, fmt.Sprintf("straight distance %.2f km over %.2f km", d, *maxKm), nil
		}
	}

	// Cycling distance.
	if maxKm := e.criteria.MaxDistanceKm; maxKm != nil && ref != nil && loc != nil && e.routing != nil {
		km, err := t.cycling(ctx, e.routing, *loc, *ref)
		if err != nil {
			return nil, "", err
		}
		if *km > *maxKm {
			return nil, fmt.Sprintf("cycling distance %.2f km over %.2f km", *km, *maxKm), nil
		}
	}

	// Excluded words.
	if !e.text.Empty() {
		text, err := l.FreeText(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("free text: %w", err)
		}
		if word, ok := e.text.Match(text); ok {
			return nil, fmt.Sprintf("text contains %q", word), nil
		}
	}

	// Included: fetch the remaining details.
	postal, err := l.PostalCode(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("postal code: %w", err)
	}
	floors, err := l.Floors(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("floors: %w", err)
	}

	var offers []models.BroadbandOffer
	if e.broadband != nil {
		all, err := e.broadband.Offers(ctx, postal, l.StreetAddress())
		if err != nil {
			return nil, "", fmt.Errorf("broadband offers: %w", err)
		}
		for _, o := range all {
			if e.criteria.MinMbps == nil || o.MeetsSpeed(*e.criteria.MinMbps) {
				offers = append(offers, o)
			}
		}
	}

	var cyclingKm *float64
	if ref != nil && loc != nil && e.routing != nil {
		if cyclingKm, err = t.cycling(ctx, e.routing, *loc, *ref); err != nil {
			return nil, "", err
		}
	}

	res := &models.EnrichedResult{
		ListingID:         l.ID(),
		URL:               l.URL(),
		Price:             l.Price(),
		Floors:            floors,
		HouseArea:         l.HouseArea(),
		PricePerHouseArea: pricePerArea(l.Price(), l.HouseArea()),
		TotalArea:         l.TotalArea(),
		PricePerTotalArea: pricePerArea(l.Price(), l.TotalArea()),
		StraightKm:        straightKm,
		CyclingKm:         cyclingKm,
		Year:              l.ConstructionYear(),
		PostalCode:        postal,
		Broadband:         offers,
	}
	if loc != nil {
		res.Geohash = geohash.EncodeWithPrecision(loc.Latitude, loc.Longitude, e.precision)
	}
	return res, "", nil
}

// pricePerArea is ceil(price / area), or nil when either is unknown.
func pricePerArea(price *int, area *float64) *int {
	if price == nil || area == nil || *area <= 0 {
		return nil
	}
	v := int(math.Ceil(float64(*price) / *area))
	return &v
}

// Run evaluates all listings concurrently. A failing listing is recorded
// in the report and does not affect the others.
func (e *Enricher) Run(ctx context.Context, listings []Listing) *RunReport {
	report := &RunReport{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now(),
		Discovered: len(listings),
	}
	log := e.logger.With("run_id", report.RunID)
	log.Info("[enricher] Run %s: evaluating %d listings (concurrency %d)", report.RunID, len(listings), e.concurrency)

	var mu sync.Mutex
	pool := utils.NewWorkerPool(e.concurrency)

	for _, l := range listings {
		l := l
		pool.Submit(ctx, func(ctx context.Context) {
			var (
				res *models.EnrichedResult
				err = ctx.Err()
			)
			if err == nil {
				res, err = e.Enrich(ctx, l)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Warn("[enricher] %s failed: %v", l.URL(), err)
				report.Failures = append(report.Failures, &ListingError{URL: l.URL(), Err: err})
			case res == nil:
				report.Excluded++
			default:
				report.Results = append(report.Results, res)
			}
		})
	}
	pool.Wait()

	SortResults(report.Results)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].URL < report.Failures[j].URL
	})
	report.FinishedAt = time.Now()

	log.Info("[enricher] Run %s done in %v: %d included, %d excluded, %d failed",
		report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		len(report.Results), report.Excluded, len(report.Failures))
	return report
}

// SortResults orders results ascending by price per house area. A missing
// value counts as zero and sorts first; ties keep their input order.
func SortResults(results []*models.EnrichedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SortKey() < results[j].SortKey()
	})
}
