package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/querylens/intent-platform/pkg/logging"
)

const snapshotVersion = 1

// ErrArchiveDisabled is returned when snapshot operations run without
// a configured bucket.
var ErrArchiveDisabled = errors.New("snapshot archive not configured")

// s3API is the subset of the S3 client used by SnapshotArchive.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SnapshotDefinition is the serialized form of one intent definition.
// Embeddings ride along so a restore does not re-embed the catalog.
type SnapshotDefinition struct {
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	Examples          []string     `json:"examples"`
	ExampleEmbeddings [][]float32  `json:"example_embeddings,omitempty"`
	Slots             []EntitySlot `json:"slots,omitempty"`
	ParentIntents     []string     `json:"parent_intents,omitempty"`
	ChildIntents      []string     `json:"child_intents,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// ModelSnapshot is a point-in-time export of a tenant's intent model.
type ModelSnapshot struct {
	Version          int                  `json:"version"`
	TenantID         string               `json:"tenant_id"`
	EmbeddingModel   string               `json:"embedding_model"`
	DefaultThreshold float64              `json:"default_threshold"`
	Definitions      []SnapshotDefinition `json:"definitions"`
	Aliases          map[string]string    `json:"aliases,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

// SnapshotArchive stores model snapshots in S3 under a versioned key
// layout, one prefix per tenant, with a latest pointer for restores.
type SnapshotArchive struct {
	bucket   string
	s3Client s3API
	logger   *logging.Logger
}

// NewSnapshotArchive creates an archive. With an empty bucket the
// archive reports disabled and every operation fails fast.
func NewSnapshotArchive(s3Client s3API, bucket string, logger *logging.Logger) *SnapshotArchive {
	if logger == nil {
		logger = logging.Default()
	}
	return &SnapshotArchive{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled reports whether the archive has a bucket and client.
func (a *SnapshotArchive) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

func snapshotKey(tenantID string, at time.Time) string {
	return fmt.Sprintf("intents/v%d/%s/%s.json", snapshotVersion, tenantID, at.Format("20060102T150405Z"))
}

func latestSnapshotKey(tenantID string) string {
	return fmt.Sprintf("intents/v%d/%s/latest.json", snapshotVersion, tenantID)
}

// Export writes the model as a snapshot object and updates the latest
// pointer. It returns the versioned object key.
func (a *SnapshotArchive) Export(ctx context.Context, tenantID string, model *Model) (string, error) {
	if !a.Enabled() {
		return "", ErrArchiveDisabled
	}
	if model == nil {
		return "", errors.New("intent: model cannot be nil")
	}

	snap := snapshotFromModel(tenantID, model)
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("intent: marshal snapshot: %w", err)
	}

	key := snapshotKey(tenantID, snap.CreatedAt)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("intent: s3 put %s: %w", key, err)
	}

	a.logger.Info("exported model snapshot",
		"tenant_id", tenantID,
		"s3_key", key,
		"intents", len(snap.Definitions),
	)

	// The latest pointer is best-effort; the versioned object is
	// already durable.
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(latestSnapshotKey(tenantID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.logger.Warn("failed to update latest snapshot pointer", "tenant_id", tenantID, "error", err)
	}

	return key, nil
}

// Import loads a snapshot and rebuilds its model. An empty key loads
// the tenant's latest snapshot.
func (a *SnapshotArchive) Import(ctx context.Context, tenantID, key string) (*Model, error) {
	if !a.Enabled() {
		return nil, ErrArchiveDisabled
	}
	if strings.TrimSpace(key) == "" {
		key = latestSnapshotKey(tenantID)
	}

	out, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("intent: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("intent: read snapshot %s: %w", key, err)
	}

	var snap ModelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("intent: decode snapshot %s: %w", key, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("intent: unsupported snapshot version %d", snap.Version)
	}

	return snap.toModel(), nil
}

func snapshotFromModel(tenantID string, model *Model) *ModelSnapshot {
	defs := model.Definitions()
	snap := &ModelSnapshot{
		Version:          snapshotVersion,
		TenantID:         tenantID,
		EmbeddingModel:   model.EmbeddingModel,
		DefaultThreshold: model.DefaultThreshold,
		Definitions:      make([]SnapshotDefinition, 0, len(defs)),
		Aliases:          model.Aliases(),
		CreatedAt:        time.Now().UTC(),
	}
	for _, def := range defs {
		snap.Definitions = append(snap.Definitions, SnapshotDefinition{
			Name:              def.Name,
			Description:       def.Description,
			Examples:          def.Examples,
			ExampleEmbeddings: def.ExampleEmbeddings,
			Slots:             def.Slots,
			ParentIntents:     def.ParentIntents,
			ChildIntents:      def.ChildIntents,
			UpdatedAt:         def.UpdatedAt,
		})
	}
	return snap
}

func (s *ModelSnapshot) toModel() *Model {
	model := NewModel(s.EmbeddingModel, s.DefaultThreshold)
	for _, sd := range s.Definitions {
		model.Put(&Definition{
			Name:              sd.Name,
			Description:       sd.Description,
			Examples:          sd.Examples,
			ExampleEmbeddings: sd.ExampleEmbeddings,
			Slots:             sd.Slots,
			ParentIntents:     sd.ParentIntents,
			ChildIntents:      sd.ChildIntents,
			UpdatedAt:         sd.UpdatedAt,
		})
	}
	for alias, canonical := range s.Aliases {
		if err := model.SetAlias(alias, canonical); err != nil {
			continue
		}
	}
	return model
}
