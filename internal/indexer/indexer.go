// Package indexer turns normalized messages into hybrid search documents:
// plain text extracted from the HTML body plus an embedding vector.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/postwing/postwing/internal/index"
	"github.com/postwing/postwing/internal/models"
)

type Indexer struct {
	embedder Embedder
	index    index.Index
	log      *slog.Logger
}

func New(embedder Embedder, idx index.Index, log *slog.Logger) *Indexer {
	return &Indexer{embedder: embedder, index: idx, log: log}
}

// Index converts one message to plain text, computes its embedding and
// replaces its search document. The document is written whole or not at all.
func (ix *Indexer) Index(ctx context.Context, accountID uuid.UUID, msg models.Message) error {
	source := msg.Body
	if source == "" {
		source = msg.BodySnippet
	}
	body := HTMLToText(source)

	embedding, err := ix.embedder.Embed(ctx, body)
	if err != nil {
		return fmt.Errorf("embed message %s: %w", msg.ID, err)
	}

	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.Address)
	}

	ix.index.Upsert(accountID, index.Document{
		ID:        msg.ID,
		ThreadID:  msg.ThreadID,
		Subject:   msg.Subject,
		Snippet:   StripTags(msg.BodySnippet),
		Body:      body,
		From:      msg.From.Address,
		To:        to,
		SentAt:    msg.SentAt.Format(time.RFC3339),
		Embedding: embedding,
	})
	return nil
}

// Search runs a keyword query against an account's documents.
func (ix *Indexer) Search(accountID uuid.UUID, term string, limit int) []index.Hit {
	return ix.index.Search(accountID, term, limit)
}

// VectorSearch embeds the term and ranks documents by similarity.
func (ix *Indexer) VectorSearch(ctx context.Context, accountID uuid.UUID, term string, limit int) ([]index.Hit, error) {
	embedding, err := ix.embedder.Embed(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return ix.index.VectorSearch(accountID, embedding, limit), nil
}
