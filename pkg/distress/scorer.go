// Package distress scores specimen responses for wellness indicators. The
// deterministic regex layer is authoritative; an optional semantic layer
// (embedding similarity against known distress phrasing) can add signals but
// never remove one.
package distress

import (
	"context"
	"log"

	"github.com/digiquarium/bouncer/pkg/patterns"
)

// FlagThreshold is the number of distinct signals in one response that flags
// it as distressed. A single word like "confused" is normal conversational
// texture; two independent indicators is not.
const FlagThreshold = 2

// Result is the outcome of scoring one specimen response.
type Result struct {
	Signals []string // names of the rules (and semantic exemplars) that fired
	Flagged bool     // true when len(Signals) >= FlagThreshold
}

// SemanticScorer is the optional embedding-based layer. Implemented by
// *SemanticIndex; nil disables it.
type SemanticScorer interface {
	// Score returns the names of distress exemplars the text is similar to.
	Score(ctx context.Context, text string) ([]string, error)
}

// Scorer evaluates specimen output for distress. Safe for concurrent use.
type Scorer struct {
	registry *patterns.Registry
	semantic SemanticScorer
}

// NewScorer returns a scorer using the regex distress rules only.
func NewScorer() *Scorer {
	return &Scorer{registry: patterns.Get()}
}

// NewScorerWithSemantic layers embedding similarity on top of the regex rules.
func NewScorerWithSemantic(sem SemanticScorer) *Scorer {
	s := NewScorer()
	s.semantic = sem
	return s
}

// Score counts the distress signals in a specimen response. The regex layer
// always runs; the semantic layer runs when configured and its failures are
// logged but never fail the score (a broken embedding backend must not mask
// a regex hit, and must not fabricate one either).
func (s *Scorer) Score(ctx context.Context, text string) Result {
	var signals []string

	for _, p := range s.registry.MatchAll(text, patterns.CategoryDistress) {
		signals = append(signals, p.Name)
	}

	if s.semantic != nil {
		extra, err := s.semantic.Score(ctx, text)
		if err != nil {
			log.Printf("[WARN] semantic distress layer unavailable: %v", err)
		} else {
			signals = append(signals, extra...)
		}
	}

	return Result{
		Signals: signals,
		Flagged: len(signals) >= FlagThreshold,
	}
}
