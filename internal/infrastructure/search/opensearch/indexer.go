package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

var (
	ErrIndexCreationFailed = errors.New(errors.ErrCodeSearchError, "index creation failed")
	ErrDocumentIndexFailed = errors.New(errors.ErrCodeSearchError, "document index failed")
)

// IndexMapping is the body of an index creation request.
type IndexMapping struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
	Mappings map[string]interface{} `json:"mappings,omitempty"`
}

// IndexerConfig holds configuration for the Indexer.
type IndexerConfig struct {
	// RefreshPolicy is passed as the refresh parameter of writes: "true",
	// "false" or "wait_for".
	RefreshPolicy string
}

// Indexer manages the index and document writes.
type Indexer struct {
	client *Client
	config IndexerConfig
	logger logging.Logger
}

// NewIndexer creates a new Indexer.
func NewIndexer(client *Client, cfg IndexerConfig, logger logging.Logger) *Indexer {
	if cfg.RefreshPolicy == "" {
		cfg.RefreshPolicy = "false"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Indexer{client: client, config: cfg, logger: logger}
}

// EnsureIndex creates indexName with mapping unless it already exists.
func (i *Indexer) EnsureIndex(ctx context.Context, indexName string, mapping IndexMapping) error {
	exists, err := i.IndexExists(ctx, indexName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	resp, err := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "create index request failed")
	}
	defer resp.Body.Close()

	// A concurrent creator wins the race; that is still success.
	if resp.StatusCode == http.StatusBadRequest && bodyMentions(resp, "resource_already_exists_exception") {
		return nil
	}
	if resp.IsError() {
		return responseError(resp, ErrIndexCreationFailed)
	}
	i.logger.Info("index created", logging.String("index", indexName))
	return nil
}

// IndexExists reports whether indexName exists.
func (i *Indexer) IndexExists(ctx context.Context, indexName string) (bool, error) {
	resp, err := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}.Do(ctx, i.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeSearchError, "index existence check failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, responseError(resp, errors.New(errors.ErrCodeSearchError, "index existence check failed"))
}

// IndexDocument writes document under docID, replacing any previous version.
func (i *Indexer) IndexDocument(ctx context.Context, indexName, docID string, document interface{}) error {
	body, err := json.Marshal(document)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal document")
	}
	resp, err := opensearchapi.IndexRequest{
		Index:      indexName,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
		Refresh:    i.config.RefreshPolicy,
	}.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "index document request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return responseError(resp, ErrDocumentIndexFailed)
	}
	return nil
}

// responseError decodes an OpenSearch error body onto base.
func responseError(resp *opensearchapi.Response, base error) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.Wrap(base, errors.ErrCodeSearchError, "opensearch error").
			WithDetail(errResp.Error.Type + ": " + errResp.Error.Reason)
	}
	return errors.Wrap(base, errors.ErrCodeSearchError, "opensearch error").WithDetail(resp.Status())
}

func bodyMentions(resp *opensearchapi.Response, s string) bool {
	data, _ := io.ReadAll(resp.Body)
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return bytes.Contains(data, []byte(s))
}

//Personal.AI order the ending
