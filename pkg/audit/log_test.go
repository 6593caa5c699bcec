package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/digiquarium/bouncer/pkg/session"
)

func TestRecordAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}

	l.Record("vs-1", KindSessionStart, map[string]string{"tank": "tank-visitor-01"})
	l.Record("vs-1", KindBlocked, map[string]string{"rule": "inj_ignore_previous"})
	l.Record("vs-2", KindSessionStart, nil)

	f, err := os.Open(filepath.Join(dir, "visitor_sessions", "vs-1.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		events = append(events, e)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events for vs-1, got %d", len(events))
	}
	if events[0].Kind != KindSessionStart || events[1].Kind != KindBlocked {
		t.Errorf("unexpected event kinds: %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[1].Detail["rule"] != "inj_ignore_previous" {
		t.Errorf("detail lost: %v", events[1].Detail)
	}
}

func TestWriteTranscript(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}

	snap := session.Snapshot{
		ID:        "vs-1",
		TankID:    "tank-visitor-01",
		Specimen:  "Aria",
		Status:    session.StatusEnded,
		EndReason: session.ReasonVisitorLeft,
		StartedAt: time.Now().UTC(),
		Transcript: []session.Message{
			{Role: "visitor", Content: "hello"},
			{Role: "specimen", Content: "hi there"},
		},
	}
	l.WriteTranscript(snap)

	data, err := os.ReadFile(filepath.Join(dir, "visitor_sessions", "vs-1_transcript.json"))
	if err != nil {
		t.Fatal(err)
	}

	var got session.Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "vs-1" || len(got.Transcript) != 2 {
		t.Errorf("transcript round trip lost data: %+v", got)
	}
}
