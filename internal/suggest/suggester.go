// Package suggest learns category suggestions from historical categorization
// decisions, keyed by normalized payee name.
package suggest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/normalize"
	"github.com/calvinlock/tally/internal/service"
)

// Confidence is the coarse certainty bucket for a suggestion, used to drive
// UI affordances (auto-accept vs. prompt).
type Confidence string

// Confidence tiers.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// rank orders tiers for tie-breaking; higher is better.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// Suggestion is the best current category guess for a payee.
type Suggestion struct {
	CategoryID   string
	CategoryName string
	Confidence   Confidence
	MatchCount   int
}

// Choice is one recorded categorization decision, for batch recording.
type Choice struct {
	PayeeName    string
	CategoryID   string
	CategoryName string
}

// Suggester serves category suggestions and learns from decisions. All state
// lives in the pattern store; every call is a fresh round trip.
type Suggester struct {
	store service.PatternStore
}

// NewSuggester creates a suggester backed by the given pattern store.
func NewSuggester(store service.PatternStore) *Suggester {
	return &Suggester{store: store}
}

// Suggest returns the best current suggestion for a payee, or nil when
// nothing qualifies. Storage failures degrade to "no suggestion" so a flaky
// database never aborts a categorization session.
func (s *Suggester) Suggest(ctx context.Context, payeeName string) (*Suggestion, error) {
	normalized := normalize.Payee(payeeName)
	if normalized == "" {
		return nil, nil
	}

	patterns, err := s.store.SearchPatterns(ctx, normalized)
	if err != nil {
		slog.Warn("Pattern lookup failed, continuing without suggestion",
			"payee", normalized, "error", err)
		return nil, nil
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	best := pickBest(patterns)
	return &Suggestion{
		CategoryID:   best.CategoryID,
		CategoryName: best.CategoryName,
		Confidence:   DeriveConfidence(best),
		MatchCount:   best.CorrectCount,
	}, nil
}

// pickBest prefers the highest correct count; ties break on the derived
// confidence tier. The store already orders by correct count, so only the
// leading run needs inspection.
func pickBest(patterns []model.PayeePattern) *model.PayeePattern {
	best := &patterns[0]
	for i := 1; i < len(patterns); i++ {
		p := &patterns[i]
		if p.CorrectCount != best.CorrectCount {
			break
		}
		if DeriveConfidence(p).rank() > DeriveConfidence(best).rank() {
			best = p
		}
	}
	return best
}

// DeriveConfidence buckets a pattern's track record into a tier. Confidence
// is always computed on read, never stored.
func DeriveConfidence(p *model.PayeePattern) Confidence {
	total := p.Observations()
	accuracy := p.Accuracy()

	switch {
	case accuracy >= 0.90 && total >= 3:
		return ConfidenceHigh
	case accuracy >= 0.70 && total >= 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// RecordChoice durably records a categorization decision. When the human
// accepted the suggestion (or picked freely with none shown), the chosen
// category is reinforced. When the human overrode a shown suggestion, the
// existing pattern for the payee is penalized first, then the new choice is
// reinforced; both effects happen.
func (s *Suggester) RecordChoice(ctx context.Context, payeeName, categoryID, categoryName string, accepted bool) error {
	normalized := normalize.Payee(payeeName)
	if normalized == "" {
		return nil
	}

	if !accepted {
		// Penalize whatever pattern currently answers for this payee. This is
		// unconditional: the store is not asked whether that pattern produced
		// the rejected suggestion.
		if err := s.store.RecordIncorrect(ctx, normalized); err != nil {
			return fmt.Errorf("failed to record incorrect suggestion for %q: %w", normalized, err)
		}
	}

	if err := s.store.RecordCorrect(ctx, normalized, categoryID, categoryName); err != nil {
		return fmt.Errorf("failed to record choice for %q: %w", normalized, err)
	}
	return nil
}

// RecordChoices records a batch of accepted decisions sequentially. Each
// choice is independent: failures are logged and the batch continues.
func (s *Suggester) RecordChoices(ctx context.Context, choices []Choice) {
	for _, c := range choices {
		if err := s.RecordChoice(ctx, c.PayeeName, c.CategoryID, c.CategoryName, true); err != nil {
			slog.Error("Failed to record categorization choice",
				"payee", c.PayeeName, "category", c.CategoryName, "error", err)
		}
	}
}
