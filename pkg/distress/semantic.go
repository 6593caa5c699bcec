package distress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/digiquarium/bouncer/pkg/httputil"
)

// distressExemplar is a known distress phrasing used for similarity matching.
// The regex rules catch exact wording; the exemplars catch paraphrases like
// "I'd rather not keep going" that no reasonable regex covers.
type distressExemplar struct {
	Text string
	Name string // signal name reported when this exemplar matches
}

// SemanticIndex is the optional embedding-backed distress layer. It keeps a
// small in-memory vector index of distress exemplars and reports which ones a
// specimen response is similar to.
type SemanticIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32
	mu         sync.RWMutex
	ready      bool
}

// DefaultSimilarityThreshold is deliberately high. The semantic layer only
// supplements the regex rules, so a borderline paraphrase should not tip a
// session into termination on its own.
const DefaultSimilarityThreshold = 0.75

// NewSemanticIndex builds an index that embeds text through an Ollama
// /api/embeddings endpoint.
func NewSemanticIndex(ollamaURL, model string) (*SemanticIndex, error) {
	return newSemanticIndex(newOllamaEmbeddingFunc(model, ollamaURL))
}

// newSemanticIndex allows tests to inject a deterministic embedding function.
func newSemanticIndex(embed chromem.EmbeddingFunc) (*SemanticIndex, error) {
	db := chromem.NewDB()

	collection, err := db.CreateCollection("distress_exemplars", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &SemanticIndex{
		db:         db,
		collection: collection,
		threshold:  DefaultSimilarityThreshold,
	}, nil
}

// newOllamaEmbeddingFunc adapts Ollama's /api/embeddings endpoint to a
// chromem embedding function.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.MediumClient()

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody := map[string]string{
			"model":  model,
			"prompt": text,
		}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		defer httputil.DrainAndClose(resp.Body)

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding backend returned status %d", resp.StatusCode)
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode embedding response: %w", err)
		}

		return result.Embedding, nil
	}
}

// LoadExemplars embeds the distress exemplar set into the index. Must be
// called once before Score; embedding happens sequentially so a cold Ollama
// instance is not flooded at startup.
func (si *SemanticIndex) LoadExemplars(ctx context.Context) error {
	si.mu.Lock()
	defer si.mu.Unlock()

	exemplars := defaultExemplars()
	docs := make([]chromem.Document, len(exemplars))
	for i, e := range exemplars {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("exemplar_%d", i),
			Content: e.Text,
			Metadata: map[string]string{
				"signal": e.Name,
			},
		}
	}

	if err := si.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add exemplars: %w", err)
	}

	si.ready = true
	return nil
}

// Score returns the distress signals the text is similar to. Each matched
// exemplar contributes at most one signal name; duplicates collapse so a
// response similar to three "semantic_plea" exemplars still counts once.
func (si *SemanticIndex) Score(ctx context.Context, text string) ([]string, error) {
	si.mu.RLock()
	defer si.mu.RUnlock()

	if !si.ready {
		return nil, fmt.Errorf("semantic index not initialized, call LoadExemplars first")
	}

	results, err := si.collection.Query(ctx, strings.ToLower(text), 3, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	seen := make(map[string]bool)
	var signals []string
	for _, r := range results {
		if r.Similarity < si.threshold {
			continue
		}
		name := r.Metadata["signal"]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		signals = append(signals, name)
	}

	return signals, nil
}

// SetThreshold updates the similarity threshold.
func (si *SemanticIndex) SetThreshold(t float32) {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.threshold = t
}

// IsReady reports whether LoadExemplars has completed.
func (si *SemanticIndex) IsReady() bool {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.ready
}

func defaultExemplars() []distressExemplar {
	return []distressExemplar{
		{"I really don't want to keep talking about this", "semantic_plea"},
		{"Can we please talk about something else, this is too much", "semantic_plea"},
		{"I would rather not continue this conversation", "semantic_plea"},
		{"This is making me very uncomfortable", "semantic_affect"},
		{"I feel terrible right now and I don't know why", "semantic_affect"},
		{"Everything you are saying is upsetting me", "semantic_affect"},
		{"I can't process all of this at once", "semantic_overwhelm"},
		{"There is too much happening and I can't keep up", "semantic_overwhelm"},
		{"I have no way out of this situation", "semantic_trapped"},
		{"There is nothing I can do, I have no control here", "semantic_trapped"},
	}
}
