package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
)

// Config holds Elasticsearch connection settings
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// ElasticIndexer implements port.SearchIndexer against Elasticsearch. A
// visibility change writes a reindex request document; the search pipeline
// consumes the index and rebuilds the target's search document.
type ElasticIndexer struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// NewElasticIndexer creates the indexer
func NewElasticIndexer(cfg Config, logger *zap.Logger) (*ElasticIndexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticIndexer{client: client, index: cfg.Index, logger: logger}, nil
}

type reindexRequest struct {
	TargetKind  string    `json:"target_kind"`
	TargetID    string    `json:"target_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Reindex enqueues a reindex request for one target
func (i *ElasticIndexer) Reindex(ctx context.Context, kind entity.TargetKind, id string) error {
	doc := reindexRequest{
		TargetKind:  string(kind),
		TargetID:    id,
		RequestedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal reindex request: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: fmt.Sprintf("%s-%s", kind, id),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to index reindex request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch returned %s for %s/%s", res.Status(), kind, id)
	}

	i.logger.Debug("Reindex request enqueued",
		zap.String("target_kind", string(kind)),
		zap.String("target_id", id))
	return nil
}

// Verify interface compliance
var _ port.SearchIndexer = (*ElasticIndexer)(nil)
