// Package archive stores conversation transcripts in S3-compatible object
// storage before the cascading delete destroys them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salesdesk_backend/internal/inbox/domain"
	"salesdesk_backend/platform/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// TranscriptReader supplies the turns to archive. Implemented by the inbox
// repository.
type TranscriptReader interface {
	ListMessagesByPhone(ctx context.Context, organizationID uuid.UUID, phone string) ([]domain.Message, error)
}

// Service writes transcript snapshots to a MinIO bucket.
type Service struct {
	client *minio.Client
	bucket string
	reader TranscriptReader
}

func New(cfg config.ArchiveConfig, reader TranscriptReader) (*Service, error) {
	if !cfg.IsArchiveEnabled() {
		return nil, fmt.Errorf("transcript archive is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Service{
		client: client,
		bucket: cfg.GetMinioBucketTranscripts(),
		reader: reader,
	}, nil
}

// EnsureBucketExists creates the transcript bucket if it doesn't exist.
func (s *Service) EnsureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// transcript is the stored JSON document.
type transcript struct {
	OrganizationID uuid.UUID        `json:"organizationId"`
	Phone          string           `json:"phone"`
	ArchivedAt     time.Time        `json:"archivedAt"`
	Messages       []transcriptTurn `json:"messages"`
}

type transcriptTurn struct {
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// ArchiveTranscript snapshots every stored turn for the phone into one JSON
// object and returns its key. An empty conversation archives nothing and
// returns an empty key.
func (s *Service) ArchiveTranscript(ctx context.Context, organizationID uuid.UUID, phone string) (string, error) {
	messages, err := s.reader.ListMessagesByPhone(ctx, organizationID, phone)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	if len(messages) == 0 {
		return "", nil
	}

	doc := transcript{
		OrganizationID: organizationID,
		Phone:          phone,
		ArchivedAt:     time.Now().UTC(),
		Messages:       make([]transcriptTurn, 0, len(messages)),
	}
	for _, m := range messages {
		doc.Messages = append(doc.Messages, transcriptTurn{
			Direction: m.Direction,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}

	key := fmt.Sprintf("%s/%s_%s.json", organizationID, phone, doc.ArchivedAt.Format("20060102T150405Z"))
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to store transcript: %w", err)
	}

	return key, nil
}
