// Package elisa looks up fixed broadband products available at an address.
package elisa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"house-finder/client"
	"house-finder/models"
	"house-finder/utils"
)

const (
	defaultBaseURL = "https://elisa.fi/kauppa/rest"
	mobileType     = "fixedWirelessBroadband"
)

type address struct {
	AddressID json.Number `json:"addressId"`
}

type product struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Price         float64 `json:"price"`
	DataSpeedKbps int     `json:"dataSpeedInKbps"`
	DeliveryDate  string  `json:"deliveryDate"`
}

type productsResponse struct {
	FbbProducts []product `json:"fbbProducts"`
}

// Provider queries the Elisa shop API.
type Provider struct {
	addresses     *client.Client
	products      *client.Client
	cacheProducts bool
	baseURL       string
	logger        *utils.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at another host, for tests.
func WithBaseURL(u string) Option { return func(p *Provider) { p.baseURL = u } }

// New creates a Provider. Address lookups are always cached by the caller's
// addresses client; product lookups are cached only if cacheProducts is set.
func New(addresses, products *client.Client, cacheProducts bool, logger *utils.Logger, opts ...Option) *Provider {
	p := &Provider{
		addresses:     addresses,
		products:      products,
		cacheProducts: cacheProducts,
		baseURL:       defaultBaseURL,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Offers returns every non-mobile product for every address matching
// postalCode and streetAddress.
func (p *Provider) Offers(ctx context.Context, postalCode, streetAddress string) ([]models.BroadbandOffer, error) {
	searchURL := fmt.Sprintf("%s/address/search/%s/%s",
		p.baseURL, url.PathEscape(postalCode), url.PathEscape(streetAddress))

	addrs, err := client.JSON[[]address](ctx, p.addresses, client.Request{
		Method: http.MethodGet,
		URL:    searchURL,
		Cache:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("elisa: address search: %w", err)
	}

	var offers []models.BroadbandOffer
	for _, a := range addrs {
		productsURL := fmt.Sprintf("%s/products/fixedBroadbandProducts/%s/%s",
			p.baseURL, url.PathEscape(postalCode), a.AddressID.String())

		resp, err := client.JSON[productsResponse](ctx, p.products, client.Request{
			Method: http.MethodGet,
			URL:    productsURL,
			Cache:  p.cacheProducts,
		})
		if err != nil {
			return nil, fmt.Errorf("elisa: products for address %s: %w", a.AddressID, err)
		}

		for _, pr := range resp.FbbProducts {
			if pr.Type == mobileType {
				continue
			}
			offers = append(offers, models.BroadbandOffer{
				Name:          pr.Name + " (" + pr.Type + ")",
				EurosPerMonth: pr.Price,
				Mbps:          pr.DataSpeedKbps / 1000,
				DeliveryDate:  pr.DeliveryDate,
			})
		}
	}

	p.logger.Debug("[elisa] %s %s: %d addresses, %d offers", postalCode, streetAddress, len(addrs), len(offers))
	return offers, nil
}
