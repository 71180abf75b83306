package models

import (
	"fmt"
	"math"
	"strconv"
)

// Field is one column of the result table.
type Field struct {
	Title string
	Unit  string
}

// Heading is the title followed by the unit, if any.
func (f Field) Heading() string {
	if f.Unit == "" {
		return f.Title
	}
	return f.Title + " " + f.Unit
}

// ResultFields lists the report columns in order. The last one holds the
// broadband offers.
var ResultFields = []Field{
	{Title: "URL"},
	{Title: "Price", Unit: "k€"},
	{Title: "Floors"},
	{Title: "Area (house)", Unit: "m²"},
	{Title: "Price/Area (house)", Unit: "€/m²"},
	{Title: "Area (total)", Unit: "m²"},
	{Title: "Price/Area (total)", Unit: "€/m²"},
	{Title: "Straight to location", Unit: "km"},
	{Title: "Biking to location", Unit: "km"},
	{Title: "Year"},
	{Title: "Internet"},
}

// String renders an offer as "name: 49.90 €/kk 1000 Mbit/s".
func (o BroadbandOffer) String() string {
	return fmt.Sprintf("%s: %.2f €/kk %d Mbit/s", o.Name, o.EurosPerMonth, o.Mbps)
}

// Values returns the formatted scalar fields, aligned with ResultFields
// minus the trailing Internet column. Missing values are "".
func (r *EnrichedResult) Values() []string {
	var price string
	if r.Price != nil {
		price = strconv.Itoa(*r.Price / 1000)
	}
	return []string{
		r.URL,
		price,
		intString(r.Floors),
		floatString(r.HouseArea),
		intString(r.PricePerHouseArea),
		floatString(r.TotalArea),
		intString(r.PricePerTotalArea),
		kmString(r.StraightKm),
		kmString(r.CyclingKm),
		intString(r.Year),
	}
}

// OfferLines returns one line per broadband offer.
func (r *EnrichedResult) OfferLines() []string {
	lines := make([]string, 0, len(r.Broadband))
	for _, o := range r.Broadband {
		lines = append(lines, o.String())
	}
	return lines
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(math.Floor(*v), 'f', -1, 64)
}

func kmString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(math.Ceil(*v), 'f', -1, 64)
}
