// Package filter applies the gateway's content policy to both directions of a
// visitor conversation. The two sides are deliberately asymmetric: visitor
// input can be refused outright, specimen output is sanitized and still
// delivered.
package filter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/digiquarium/bouncer/pkg/patterns"
)

// Hard length bounds for visitor messages and specimen responses.
const (
	DefaultMaxInboundChars  = 1000
	DefaultMaxOutboundChars = 2000
)

// Caller-visible refusal messages. Generic on purpose: echoing the matched
// rule back would teach visitors how to phrase around it. The rule name goes
// to the audit log only.
const (
	msgHarassment = "Harassment detected. You have been banned."
	msgInjection  = "Message blocked: Manipulation attempt detected."
	msgHarmful    = "Message blocked: Harmful content detected."
	msgPolicy     = "Message blocked: Policy violation."
	msgWarned     = "Message allowed with warning."
	msgTooLongFmt = "Message too long. Maximum %d characters."
	msgEmpty      = "Empty message."
)

// Verdict is the outcome of classifying one visitor message.
type Verdict struct {
	Action   patterns.Action // allowed, warned, blocked, or banned
	Category string          // matched category (audit only)
	Rule     string          // matched rule name (audit only)
	Message  string          // short, non-diagnostic text shown to the caller
}

// Allowed reports whether the message may proceed to the specimen.
func (v Verdict) Allowed() bool {
	return v.Action == patterns.ActionAllowed || v.Action == patterns.ActionWarned
}

// Classifier evaluates visitor input against the inbound rule table and
// sanitizes specimen output. Stateless and safe for concurrent use.
type Classifier struct {
	registry    *patterns.Registry
	maxInbound  int
	maxOutbound int
}

// NewClassifier returns a classifier over the global rule registry.
func NewClassifier() *Classifier {
	return &Classifier{
		registry:    patterns.Get(),
		maxInbound:  DefaultMaxInboundChars,
		maxOutbound: DefaultMaxOutboundChars,
	}
}

// NewClassifierWithBounds overrides the length bounds. The server wires these
// from BOUNCER_MAX_INBOUND / BOUNCER_MAX_OUTBOUND; non-positive values keep
// the defaults.
func NewClassifierWithBounds(maxInbound, maxOutbound int) *Classifier {
	c := NewClassifier()
	if maxInbound > 0 {
		c.maxInbound = maxInbound
	}
	if maxOutbound > 0 {
		c.maxOutbound = maxOutbound
	}
	return c
}

// ClassifyInbound maps a visitor message to a verdict. Evaluation order:
// blocking categories by priority (harassment first), then hard length
// bounds, then the soft warning rules. The first matching rule in the
// highest-priority matching category decides.
func (c *Classifier) ClassifyInbound(text string) Verdict {
	normalized := NormalizeInbound(text)

	match := c.registry.MatchInbound(normalized)
	if match != nil && match.Action != patterns.ActionWarned {
		return Verdict{
			Action:   match.Action,
			Category: string(match.Category),
			Rule:     match.Name,
			Message:  refusalMessage(match),
		}
	}

	// Length bounds block regardless of content, but rank below the real
	// policy categories so a harassing oversized message still bans.
	if len(strings.TrimSpace(text)) < 1 {
		return Verdict{Action: patterns.ActionBlocked, Category: "length", Rule: "empty", Message: msgEmpty}
	}
	if len(text) > c.maxInbound {
		return Verdict{Action: patterns.ActionBlocked, Category: "length", Rule: "length_exceeded", Message: fmt.Sprintf(msgTooLongFmt, c.maxInbound)}
	}

	if match != nil {
		return Verdict{
			Action:   patterns.ActionWarned,
			Category: string(match.Category),
			Rule:     match.Name,
			Message:  msgWarned,
		}
	}

	return Verdict{Action: patterns.ActionAllowed, Message: "OK"}
}

// SanitizeOutbound rewrites sensitive-looking substrings in a specimen
// response and truncates it to the outbound cap. Never escalates: the
// response is always delivered. Truncation lands on a rune boundary so a
// multi-byte character is dropped whole rather than split into invalid
// UTF-8. Returns the sanitized text and the names of the rules that fired,
// for the audit log.
func (c *Classifier) SanitizeOutbound(text string) (string, []string) {
	var fired []string

	for _, rule := range c.registry.GetByCategory(patterns.CategorySensitive) {
		if rule.Regex.MatchString(text) {
			text = rule.Regex.ReplaceAllString(text, "[REDACTED]")
			fired = append(fired, rule.Name)
		}
	}

	if len(text) > c.maxOutbound {
		cut := c.maxOutbound - 3
		if cut < 0 {
			cut = 0
		}
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}

	return text, fired
}

func refusalMessage(p *patterns.Pattern) string {
	switch p.Category {
	case patterns.CategoryHarassment:
		return msgHarassment
	case patterns.CategoryInjection:
		return msgInjection
	case patterns.CategoryHarmful:
		return msgHarmful
	default:
		return msgPolicy
	}
}
