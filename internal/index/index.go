// Package index holds the hybrid (text + vector) search documents produced
// by the sync pipeline, one logical namespace per account.
package index

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Document is the denormalized search record for one email. It is written
// whole on every (re)sync of the email, never partially.
type Document struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet"`
	Body      string    `json:"body"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	SentAt    string    `json:"sentAt"`
	Embedding []float32 `json:"-"`
}

// Hit is one ranked search result.
type Hit struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Index is the insert/search contract of the search backend.
type Index interface {
	Upsert(accountID uuid.UUID, doc Document)
	Search(accountID uuid.UUID, term string, limit int) []Hit
	VectorSearch(accountID uuid.UUID, embedding []float32, limit int) []Hit
}

// Memory is an in-process Index. Writes replace the keyed document under a
// single lock, so readers observe either the previous document or the new
// one, never a mix.
type Memory struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]map[string]Document
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[uuid.UUID]map[string]Document)}
}

func (m *Memory) Upsert(accountID uuid.UUID, doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.accounts[accountID]
	if !ok {
		docs = make(map[string]Document)
		m.accounts[accountID] = docs
	}
	docs[doc.ID] = doc
}

// Search ranks documents by weighted term-occurrence: subject matches count
// double, body/snippet/participant matches once per occurrence.
func (m *Memory) Search(accountID uuid.UUID, term string, limit int) []Hit {
	tokens := tokenize(term)
	if len(tokens) == 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, doc := range m.accounts[accountID] {
		score := 0.0
		subject := strings.ToLower(doc.Subject)
		text := strings.ToLower(doc.Body + " " + doc.Snippet + " " + doc.From + " " + strings.Join(doc.To, " "))
		for _, tok := range tokens {
			score += 2 * float64(strings.Count(subject, tok))
			score += float64(strings.Count(text, tok))
		}
		if score > 0 {
			hits = append(hits, Hit{Document: doc, Score: score})
		}
	}
	return rank(hits, limit)
}

// VectorSearch ranks documents by cosine similarity against the query
// embedding. Documents whose embedding dimension differs are skipped.
func (m *Memory) VectorSearch(accountID uuid.UUID, embedding []float32, limit int) []Hit {
	if len(embedding) == 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, doc := range m.accounts[accountID] {
		if len(doc.Embedding) != len(embedding) {
			continue
		}
		score := cosine(embedding, doc.Embedding)
		if score > 0 {
			hits = append(hits, Hit{Document: doc, Score: score})
		}
	}
	return rank(hits, limit)
}

func rank(hits []Hit, limit int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func tokenize(term string) []string {
	return strings.Fields(strings.ToLower(term))
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
