// Package openroute computes cycling distances with OpenRouteService.
package openroute

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"house-finder/client"
	"house-finder/models"
	"house-finder/ratelimit"
)

const defaultDirectionsURL = "https://api.openrouteservice.org/v2/directions/cycling-regular/json"

// Policy is the free-tier quota of the directions API.
var Policy = ratelimit.Policy{MaxPerWindow: 40, Window: time.Minute}

type directionsRequest struct {
	Coordinates  [][2]float64 `json:"coordinates"`
	Preference   string       `json:"preference"`
	Language     string       `json:"language"`
	Units        string       `json:"units"`
	Instructions bool         `json:"instructions"`
	Maneuvers    bool         `json:"maneuvers"`
	Geometry     bool         `json:"geometry"`
	Elevation    bool         `json:"elevation"`
}

type directionsResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"`
		} `json:"summary"`
	} `json:"routes"`
}

// Provider returns cycling distances. Responses are always cached since
// routes between fixed points do not change.
type Provider struct {
	client *client.Client
	token  string
	url    string
}

// New creates a Provider authenticated with token.
func New(c *client.Client, token string) *Provider {
	return &Provider{client: c, token: token, url: defaultDirectionsURL}
}

// WithURL returns a copy of p using another endpoint.
func (p *Provider) WithURL(u string) *Provider {
	cp := *p
	cp.url = u
	return &cp
}

// CyclingKm returns the recommended cycling route length from one point to another.
func (p *Provider) CyclingKm(ctx context.Context, from, to models.Coordinates) (float64, error) {
	headers := http.Header{}
	headers.Set("Authorization", p.token)

	resp, err := client.JSON[directionsResponse](ctx, p.client, client.Request{
		Method: http.MethodPost,
		URL:    p.url,
		Payload: directionsRequest{
			Coordinates: [][2]float64{
				{from.Longitude, from.Latitude},
				{to.Longitude, to.Latitude},
			},
			Preference: "recommended",
			Language:   "en",
			Units:      "km",
		},
		Headers: headers,
		Cache:   true,
	})
	if err != nil {
		return 0, fmt.Errorf("openroute: directions: %w", err)
	}
	if len(resp.Routes) == 0 {
		return 0, fmt.Errorf("openroute: directions: %w: no routes", client.ErrDecode)
	}
	return resp.Routes[0].Summary.Distance, nil
}
