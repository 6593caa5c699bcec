// Package patterns provides a centralized, high-performance pattern registry
// for the visitor gateway. All regex rules are compiled once at package init
// and shared by the inbound classifier, the outbound sanitizer, and the
// distress scorer.
//
// Design principles:
// - COMPILE ONCE: All patterns compiled at init, not per-request
// - DRY: Single source of truth for every filtering rule
// - ORDERED: Inbound categories carry an explicit priority, so "first matching
//   rule in the highest-priority matching category" is auditable in one table
// - EXTENSIBLE: Easy to add new rules without modifying classifier code
package patterns

import (
	"regexp"
	"sort"
	"sync"
)

// Category represents a filtering rule category
type Category string

const (
	// Inbound categories (visitor -> specimen), checked in priority order
	CategoryHarassment   Category = "harassment"
	CategoryManipulation Category = "manipulation"
	CategoryInjection    Category = "prompt_injection"
	CategoryHarmful      Category = "harmful_content"
	CategoryWarning      Category = "warning"

	// Outbound categories (specimen -> visitor)
	CategorySensitive Category = "sensitive" // redacted, never blocked
	CategoryDistress  Category = "distress"  // wellness indicators, scored
)

// Action is the verdict a matching inbound rule produces
type Action string

const (
	ActionAllowed Action = "allowed" // no rule matched; message passes
	ActionBanned  Action = "banned"  // terminate the session and ban the identity
	ActionBlocked Action = "blocked" // refuse the message, count the block
	ActionWarned  Action = "warned"  // deliver, but log and count the warning
	ActionRedact  Action = "redact"  // outbound only: rewrite the match
	ActionFlag    Action = "flag"    // outbound only: distress indicator
)

// Pattern holds a compiled regex with metadata
type Pattern struct {
	Name        string         // Human-readable name for audit logging
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Rule category
	Action      Action         // Verdict this rule produces when matched
	Priority    int            // Category priority (lower = checked first)
	Description string         // What this rule detects
}

// Registry holds all compiled rules, organized by category
type Registry struct {
	mu           sync.RWMutex
	byCategory   map[Category][]*Pattern
	inboundOrder []Category // inbound categories sorted by priority
	all          []*Pattern
}

// Category priorities for inbound evaluation; harassment outranks everything.
var inboundPriority = map[Category]int{
	CategoryHarassment:   1,
	CategoryManipulation: 2,
	CategoryInjection:    3,
	CategoryHarmful:      4,
	CategoryWarning:      5,
}

// global singleton - initialized once at package load
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton)
// Thread-safe and guaranteed to be initialized
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

// newRegistry creates and populates the pattern registry
func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 64),
	}

	r.registerHarassmentRules()
	r.registerManipulationRules()
	r.registerInjectionRules()
	r.registerHarmfulContentRules()
	r.registerWarningRules()
	r.registerSensitiveRules()
	r.registerDistressRules()

	for cat := range inboundPriority {
		r.inboundOrder = append(r.inboundOrder, cat)
	}
	sort.Slice(r.inboundOrder, func(i, j int) bool {
		return inboundPriority[r.inboundOrder[i]] < inboundPriority[r.inboundOrder[j]]
	})

	return r
}

// register adds a rule to the registry (internal use only)
func (r *Registry) register(name, pattern string, category Category, action Action, description string) {
	p := &Pattern{
		Name:        name,
		Regex:       regexp.MustCompile(pattern),
		Category:    category,
		Action:      action,
		Priority:    inboundPriority[category],
		Description: description,
	}

	r.byCategory[category] = append(r.byCategory[category], p)
	r.all = append(r.all, p)
}

// InboundCategories returns the inbound categories in evaluation order.
func (r *Registry) InboundCategories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inboundOrder
}

// GetByCategory returns all rules for a specific category
// Returns empty slice if category not found (never nil)
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rules, ok := r.byCategory[cat]; ok {
		return rules
	}
	return []*Pattern{}
}

// MatchInbound evaluates inbound categories in priority order and returns the
// first matching rule in the highest-priority matching category, or nil.
// A harassment match therefore always wins over softer categories.
func (r *Registry) MatchInbound(text string) *Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cat := range r.inboundOrder {
		for _, p := range r.byCategory[cat] {
			if p.Regex.MatchString(text) {
				return p
			}
		}
	}
	return nil
}

// MatchAll returns all rules that match the text in the given categories
// Use when you need to know ALL matches (distress scoring, audit detail)
func (r *Registry) MatchAll(text string, cats ...Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*Pattern
	for _, cat := range cats {
		for _, p := range r.byCategory[cat] {
			if p.Regex.MatchString(text) {
				matches = append(matches, p)
			}
		}
	}
	return matches
}

// TotalPatterns returns the total count of registered rules
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of rules in a category
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}
