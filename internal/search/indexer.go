// Package search indexes chat messages into Meilisearch. Indexing is
// best-effort: failures are logged and never surfaced to the sender.
package search

import (
	"context"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const messagesIndex = "messages"

// Document is the denormalized message record stored in the index.
type Document struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	AuthorID    string `json:"author_id"`
	AuthorName  string `json:"author_name"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	CreatedAt   int64  `json:"created_at"`
}

// Indexer is what the message path depends on.
type Indexer interface {
	IndexMessage(doc Document)
}

type Client struct {
	index meilisearch.IndexManager
	log   *zap.Logger
}

func NewClient(host, apiKey string, log *zap.Logger) *Client {
	var opts []meilisearch.Option
	if apiKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(apiKey))
	}
	sm := meilisearch.New(host, opts...)
	return &Client{index: sm.Index(messagesIndex), log: log}
}

// IndexMessage enqueues the document in the background and returns
// immediately. A failed write must never block or fail the send path.
func (c *Client) IndexMessage(doc Document) {
	go func() {
		primaryKey := "id"
		if _, err := c.index.AddDocuments([]Document{doc}, &primaryKey); err != nil {
			c.log.Error("failed to index message",
				zap.String("message_id", doc.ID),
				zap.String("room", doc.RoomName),
				zap.Error(err))
		}
	}()
}

// Search runs a full-text query over indexed messages.
func (c *Client) Search(ctx context.Context, query string, limit int64) ([]Document, error) {
	res, err := c.index.SearchWithContext(ctx, query, &meilisearch.SearchRequest{Limit: limit})
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		var doc Document
		if err := hit.Decode(&doc); err != nil {
			c.log.Warn("failed to decode search hit", zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Noop satisfies Indexer for tests and for running without Meilisearch.
type Noop struct{}

func (Noop) IndexMessage(Document) {}
