package models

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// BroadbandOffer is one fixed broadband product available at an address.
type BroadbandOffer struct {
	Name          string
	EurosPerMonth float64
	Mbps          int
	DeliveryDate  string
}

// MeetsSpeed reports whether the offer passes a minimum-speed filter.
// Offers with an unknown (zero) speed always pass.
func (o BroadbandOffer) MeetsSpeed(minMbps int) bool {
	return o.Mbps == 0 || o.Mbps >= minMbps
}

// Criteria holds the user's inclusion criteria. Nil fields are not applied.
type Criteria struct {
	HouseMinSquareMeters *float64
	MaxDistanceKm        *float64
	Reference            *Coordinates
	MinMbps              *int
	// ExcludedWords are matched as lower-cased substrings of the listing text.
	ExcludedWords []string
}

// EnrichedResult is an included listing plus everything derived for it.
// It is built once by the enricher and not modified afterwards.
type EnrichedResult struct {
	ListingID string
	URL       string

	Price             *int
	Floors            *int
	HouseArea         *float64
	PricePerHouseArea *int
	TotalArea         *float64
	PricePerTotalArea *int

	StraightKm *float64
	CyclingKm  *float64

	Year       *int
	PostalCode string
	Geohash    string

	Broadband []BroadbandOffer
}

// SortKey is the price per house area, with a missing value treated as zero.
func (r *EnrichedResult) SortKey() int {
	if r.PricePerHouseArea == nil {
		return 0
	}
	return *r.PricePerHouseArea
}
