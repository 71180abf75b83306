package services

import (
	"context"
	"fmt"
	"strings"

	"house-finder/models"
	"house-finder/utils"
)

const maxListedFailures = 10

// Summary is the headline notification of a run: the number of included
// results, followed by the failures if there were any.
func Summary(r *RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d!", len(r.Results))

	if len(r.Failures) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "\nFailed to evaluate %d of %d listings:", len(r.Failures), r.Discovered)
	for i, f := range r.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(&b, "\n- ... and %d more", len(r.Failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(&b, "\n- %s: %v", f.URL, f.Err)
	}
	return b.String()
}

// Message renders one result as a notification: the URL, then one
// indented line per known field, then the broadband offers.
func Message(r *models.EnrichedResult) string {
	values := r.Values()

	var b strings.Builder
	b.WriteString(values[0])
	b.WriteString(":")
	for i := 1; i < len(values); i++ {
		if values[i] == "" {
			continue
		}
		writeLine(&b, models.ResultFields[i], values[i])
	}

	if lines := r.OfferLines(); len(lines) > 0 {
		var offers strings.Builder
		for _, line := range lines {
			offers.WriteString("\n\t- ")
			offers.WriteString(line)
		}
		writeLine(&b, models.ResultFields[len(models.ResultFields)-1], offers.String())
	}
	return b.String()
}

func writeLine(b *strings.Builder, f models.Field, value string) {
	fmt.Fprintf(b, "\n\t%s: %s", f.Title, value)
	if f.Unit != "" {
		b.WriteString(" " + f.Unit)
	}
}

// Announce sends the run summary and then one message per result. Delivery
// is best-effort: failures are logged and counted, never returned.
func Announce(ctx context.Context, n Notifier, r *RunReport, logger *utils.Logger) (sent, failed int) {
	messages := make([]string, 0, len(r.Results)+1)
	messages = append(messages, Summary(r))
	for _, res := range r.Results {
		messages = append(messages, Message(res))
	}

	for _, msg := range messages {
		if err := n.Notify(ctx, msg); err != nil {
			logger.Warn("[notify] Delivery failed: %v", err)
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}
