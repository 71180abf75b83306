package services

import (
	"context"

	"house-finder/models"
)

// Listing is one property announcement as seen by the enricher. Detail
// accessors fetch a document on first use and memoize it.
type Listing interface {
	ID() string
	URL() string
	Location() *models.Coordinates
	HouseArea() *float64
	TotalArea() *float64
	Price() *int
	StreetAddress() string
	ConstructionYear() *int

	PostalCode(ctx context.Context) (string, error)
	Floors(ctx context.Context) (*int, error)
	FreeText(ctx context.Context) (string, error)
}

// ListingSource discovers listings.
type ListingSource interface {
	Listings(ctx context.Context) ([]Listing, error)
}

// RoutingProvider measures travel distance between two points.
type RoutingProvider interface {
	CyclingKm(ctx context.Context, from, to models.Coordinates) (float64, error)
}

// BroadbandProvider lists fixed broadband offers available at an address.
type BroadbandProvider interface {
	Offers(ctx context.Context, postalCode, streetAddress string) ([]models.BroadbandOffer, error)
}

// Notifier delivers an already formatted message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// ReportWriter persists the sorted results of a run.
type ReportWriter interface {
	WriteResults(results []*models.EnrichedResult) error
}
