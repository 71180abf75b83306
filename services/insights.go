package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"house-finder/models"
)

// Insights are console statistics over a run.
type Insights struct {
	Discovered int
	Included   int
	Excluded   int
	Failed     int

	MinPricePerM2 int
	MaxPricePerM2 int
	AvgPricePerM2 float64
	Cheapest      *models.EnrichedResult

	ByPostalCode map[string]int
}

// GenerateInsights computes Insights over a RunReport.
func GenerateInsights(r *RunReport) *Insights {
	ins := &Insights{
		Discovered:   r.Discovered,
		Included:     len(r.Results),
		Excluded:     r.Excluded,
		Failed:       len(r.Failures),
		ByPostalCode: make(map[string]int),
	}

	var priced []*models.EnrichedResult
	for _, res := range r.Results {
		if res.PricePerHouseArea != nil {
			priced = append(priced, res)
		}
		if res.PostalCode != "" {
			ins.ByPostalCode[res.PostalCode]++
		}
	}

	if len(priced) > 0 {
		ins.MinPricePerM2 = *priced[0].PricePerHouseArea
		ins.MaxPricePerM2 = *priced[0].PricePerHouseArea
		ins.Cheapest = priced[0]
		total := 0
		for _, res := range priced {
			v := *res.PricePerHouseArea
			total += v
			if v < ins.MinPricePerM2 {
				ins.MinPricePerM2 = v
				ins.Cheapest = res
			}
			if v > ins.MaxPricePerM2 {
				ins.MaxPricePerM2 = v
			}
		}
		ins.AvgPricePerM2 = round2(float64(total) / float64(len(priced)))
	}

	return ins
}

// PrintInsights writes a human readable overview to w.
func PrintInsights(w io.Writer, ins *Insights) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  HOUSE FINDER RUN\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Discovered : \033[1m%d\033[0m\n", ins.Discovered)
	fmt.Fprintf(w, "  Included   : \033[1m%d\033[0m\n", ins.Included)
	fmt.Fprintf(w, "  Excluded   : \033[1m%d\033[0m\n", ins.Excluded)
	fmt.Fprintf(w, "  Failed     : \033[1m%d\033[0m\n\n", ins.Failed)

	fmt.Fprintf(w, "\033[1;33m  Price per house area\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if ins.Cheapest != nil {
		fmt.Fprintf(w, "  Average : \033[1;32m%.2f €/m²\033[0m\n", ins.AvgPricePerM2)
		fmt.Fprintf(w, "  Minimum : \033[1;32m%d €/m²\033[0m\n", ins.MinPricePerM2)
		fmt.Fprintf(w, "  Maximum : \033[1;32m%d €/m²\033[0m\n", ins.MaxPricePerM2)
		fmt.Fprintf(w, "  Cheapest: %s\n", truncate(ins.Cheapest.URL, 50))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Results by postal code\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(ins.ByPostalCode) == 0 {
		fmt.Fprintf(w, "  No results\n")
	} else {
		type codeCount struct {
			code  string
			count int
		}
		var codes []codeCount
		for code, cnt := range ins.ByPostalCode {
			codes = append(codes, codeCount{code, cnt})
		}
		sort.Slice(codes, func(i, j int) bool {
			if codes[i].count != codes[j].count {
				return codes[i].count > codes[j].count
			}
			return codes[i].code < codes[j].code
		})
		for _, cc := range codes {
			fmt.Fprintf(w, "  %-8s %s (%d)\n", cc.code, strings.Repeat("█", cc.count), cc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
