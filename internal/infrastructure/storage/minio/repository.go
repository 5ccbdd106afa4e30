package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

const (
	sessionPrefix = "sessions/"

	// MaxDocumentBytes bounds a single read.  Case documents are judgments,
	// not archives.
	MaxDocumentBytes = 64 << 20
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// DocumentStore reads and writes raw documents by object key in the
// configured bucket.
type DocumentStore struct {
	client *MinIOClient
	logger logging.Logger
}

// NewDocumentStore creates a DocumentStore over client.
func NewDocumentStore(client *MinIOClient, log logging.Logger) *DocumentStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &DocumentStore{client: client, logger: log.Named("documents")}
}

// PutDocument stores data under key.  An empty content type is sniffed from
// the first 512 bytes.
func (s *DocumentStore) PutDocument(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if contentType == "" && len(data) > 0 {
		contentType = http.DetectContentType(data[:min(512, len(data))])
	}

	info, err := s.client.GetClient().PutObject(ctx, s.client.Bucket(), key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageFault, "upload document").WithDetail(key)
	}
	s.logger.Debug("document stored",
		logging.String("key", key),
		logging.Int64("size", info.Size),
		logging.String("etag", info.ETag))
	return nil
}

// GetDocument returns the bytes stored under key, or ErrObjectNotFound.
func (s *DocumentStore) GetDocument(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	rc, err := s.client.GetClient().ReadObject(ctx, s.client.Bucket(), key)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound.WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageFault, "download document").WithDetail(key)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxDocumentBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageFault, "read document").WithDetail(key)
	}
	if len(data) > MaxDocumentBytes {
		return nil, errors.New(errors.ErrCodeValidation, "document exceeds size limit").WithDetail(key)
	}
	return data, nil
}

// DeleteDocument removes key.  Removing a missing object succeeds.
func (s *DocumentStore) DeleteDocument(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if err := s.client.GetClient().RemoveObject(ctx, s.client.Bucket(), key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeStorageFault, "delete document").WithDetail(key)
	}
	return nil
}

// Exists reports whether key is stored.
func (s *DocumentStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(key); err != nil {
		return false, err
	}
	_, err := s.client.GetClient().StatObject(ctx, s.client.Bucket(), key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorageFault, "stat document").WithDetail(key)
	}
	return true, nil
}

func (s *DocumentStore) check(key string) error {
	if s.client.isClosed() {
		return ErrMinIOClientClosed
	}
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidRequest.WithDetail("object key must be a non-empty relative path")
	}
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

//Personal.AI order the ending
