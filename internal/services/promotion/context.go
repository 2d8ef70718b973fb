// Package promotion moves work between departments: it creates a target
// project seeded with a token-budgeted summary of the source's research or
// trend context, copies membership, and records provenance. Any failure
// after the target project exists rolls back in reverse step order.
package promotion

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/fabrica/internal/models"
)

// TruncationMarker is appended whenever forwarded context is cut to budget.
const TruncationMarker = "\n\n[context truncated]"

// EstimateTokens approximates the token count of text as its byte length
// divided by four. Crude, but stable and cheap; the budget is advisory.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Truncate cuts text to the token budget, appending the truncation marker
// when anything was removed. The returned text minus the marker is always a
// prefix of the input, and the total stays within budget.
func Truncate(text string, budgetTokens int) (string, bool) {
	if budgetTokens <= 0 || EstimateTokens(text) <= budgetTokens {
		return text, false
	}

	maxBytes := budgetTokens*4 - len(TruncationMarker)
	if maxBytes <= 0 {
		return "", true
	}

	cut := maxBytes
	// Back off to a rune boundary so the cut never splits a character.
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	return text[:cut] + TruncationMarker, true
}

// trendSummary synthesizes forwarded context from a trend cluster: the
// cluster summary plus its top signals by confidence.
func trendSummary(trend *models.TrendCluster, signalLimit int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Trend: %s\n", trend.Name))
	if trend.Summary != "" {
		b.WriteString(trend.Summary)
		b.WriteString("\n")
	}

	if len(trend.Signals) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}

	signals := make([]models.TrendSignal, len(trend.Signals))
	copy(signals, trend.Signals)
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})
	if signalLimit > 0 && len(signals) > signalLimit {
		signals = signals[:signalLimit]
	}

	b.WriteString("\nTop signals:\n")
	for _, sig := range signals {
		b.WriteString(fmt.Sprintf("- %s (%s, velocity %.2f, confidence %.2f)\n",
			sig.Name, sig.Lifecycle, sig.Velocity, sig.Confidence))
	}
	return strings.TrimRight(b.String(), "\n")
}
