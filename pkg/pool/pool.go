// Package pool manages the fixed set of visitor tanks. Each tank hosts one
// specimen and carries at most one session; acquiring a tank is the atomic
// admission step, so the pool can never be oversubscribed.
package pool

import (
	"errors"
	"sync"
)

// ErrNoFreeTank is returned when every tank is occupied.
var ErrNoFreeTank = errors.New("no visitor tank available")

// Tank is one visitor-facing specimen slot.
type Tank struct {
	ID       string `yaml:"id"`
	Specimen string `yaml:"specimen"`
	Model    string `yaml:"model,omitempty"` // overrides the default backend model
}

// Pool tracks which tanks are free. All state changes happen under one
// mutex, so Acquire either gets a whole tank or nothing.
type Pool struct {
	mu       sync.Mutex
	tanks    []Tank
	occupant map[string]string // tank ID -> session ID
}

// New creates a pool over the given tanks. Tank IDs must be unique.
func New(tanks []Tank) (*Pool, error) {
	if len(tanks) == 0 {
		return nil, errors.New("pool needs at least one tank")
	}
	seen := make(map[string]bool, len(tanks))
	for _, t := range tanks {
		if t.ID == "" {
			return nil, errors.New("tank with empty ID")
		}
		if seen[t.ID] {
			return nil, errors.New("duplicate tank ID: " + t.ID)
		}
		seen[t.ID] = true
	}
	return &Pool{
		tanks:    tanks,
		occupant: make(map[string]string, len(tanks)),
	}, nil
}

// Acquire assigns the first free tank to the session. Returns ErrNoFreeTank
// when the pool is full.
func (p *Pool) Acquire(sessionID string) (Tank, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.tanks {
		if _, busy := p.occupant[t.ID]; !busy {
			p.occupant[t.ID] = sessionID
			return t, nil
		}
	}
	return Tank{}, ErrNoFreeTank
}

// Release frees a tank. Releasing a tank that is already free is a no-op, so
// idempotent session teardown cannot double-free a slot into a negative
// occupancy.
func (p *Pool) Release(tankID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.occupant, tankID)
}

// Capacity returns the total number of tanks.
func (p *Pool) Capacity() int {
	return len(p.tanks)
}

// Free returns the number of unoccupied tanks.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tanks) - len(p.occupant)
}

// Occupancy returns a snapshot of tank ID to session ID for occupied tanks.
func (p *Pool) Occupancy() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]string, len(p.occupant))
	for k, v := range p.occupant {
		out[k] = v
	}
	return out
}

// DefaultTanks is the stock three-tank configuration used when no tanks file
// is supplied.
func DefaultTanks() []Tank {
	return []Tank{
		{ID: "tank-visitor-01", Specimen: "Aria"},
		{ID: "tank-visitor-02", Specimen: "Felix"},
		{ID: "tank-visitor-03", Specimen: "Luna"},
	}
}
