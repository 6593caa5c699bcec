package identity

import (
	"strings"
	"testing"
)

func TestTokenStable(t *testing.T) {
	h := NewHasher("digiquarium")

	a := h.Token("203.0.113.7")
	b := h.Token("203.0.113.7")
	if a != b {
		t.Errorf("same input produced different tokens: %s vs %s", a, b)
	}
	if len(a) != TokenLength {
		t.Errorf("expected %d hex chars, got %d (%s)", TokenLength, len(a), a)
	}
}

func TestTokenSaltSensitive(t *testing.T) {
	a := NewHasher("salt-a").Token("203.0.113.7")
	b := NewHasher("salt-b").Token("203.0.113.7")
	if a == b {
		t.Error("different salts should produce different tokens")
	}
}

func TestTokenNeverEchoesInput(t *testing.T) {
	h := NewHasher("digiquarium")
	raw := "203.0.113.7"
	if strings.Contains(h.Token(raw), raw) {
		t.Error("token must not contain the raw identifier")
	}
}

func TestNewSessionID(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()

	if !strings.HasPrefix(a, "vs-") {
		t.Errorf("expected vs- prefix, got %s", a)
	}
	if a == b {
		t.Error("session IDs must be unique")
	}
}
