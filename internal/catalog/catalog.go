// internal/catalog/catalog.go
// Package catalog loads the target catalog from an S3-compatible object
// store or a local file, validates the document against its JSON schema,
// and seeds the storage layer.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xeipuuv/gojsonschema"

	errordefs "github.com/conequest/conequest-go/internal/errors"
	"github.com/conequest/conequest-go/internal/model"
	"github.com/conequest/conequest-go/internal/storage"
)

// SchemaVersion is the catalog document version this build accepts.
const SchemaVersion = "1.0.0"

// documentSchema constrains a catalog document before any entry is decoded.
// Entry-level coordinate and checkpoint rules live here so a malformed
// upload is rejected as a whole rather than half-seeded.
const documentSchema = `{
  "type": "object",
  "required": ["version", "targets"],
  "properties": {
    "version": {"type": "string"},
    "targets": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "slug", "name", "category", "region"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "slug": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "category": {"enum": ["cone", "crater", "lake", "other"]},
          "region": {"enum": ["north", "central", "east", "south", "harbour"]},
          "lat": {"type": "number", "minimum": -90, "maximum": 90},
          "lng": {"type": "number", "minimum": -180, "maximum": 180},
          "radiusMeters": {"type": "number", "exclusiveMinimum": 0},
          "active": {"type": "boolean"},
          "checkpoints": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["lat", "lng"],
              "properties": {
                "lat": {"type": "number", "minimum": -90, "maximum": 90},
                "lng": {"type": "number", "minimum": -180, "maximum": 180},
                "radiusMeters": {"type": "number", "exclusiveMinimum": 0}
              }
            }
          }
        }
      }
    }
  }
}`

// Source fetches the raw catalog document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FileSource reads the catalog from a local path. Used in development and
// as a fallback when no object store is configured.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return data, nil
}

// S3Source fetches the catalog document from an S3-compatible bucket.
type S3Source struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Source builds an S3 source. Path-style addressing is forced so that
// MinIO and other S3-compatible services resolve the bucket correctly.
func NewS3Source(ctx context.Context, endpoint, region, bucket, key, accessKey, secretKey string) (*S3Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithBaseEndpoint(endpoint),
		awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3Source{client: client, bucket: bucket, key: key}, nil
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch catalog object: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog object: %w", err)
	}
	return data, nil
}

type document struct {
	Version string         `json:"version"`
	Targets []model.Target `json:"targets"`
}

// Loader validates and decodes catalog documents.
type Loader struct {
	src    Source
	schema *gojsonschema.Schema
}

func NewLoader(src Source) (*Loader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid catalog schema: %w", err)
	}
	return &Loader{src: src, schema: schema}, nil
}

// Load fetches the document, validates it, and returns the decoded targets.
// Any schema violation rejects the whole document.
func (l *Loader) Load(ctx context.Context) ([]model.Target, error) {
	data, err := l.src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return l.Decode(data)
}

// Decode validates and decodes a raw catalog document.
func (l *Loader) Decode(data []byte) ([]model.Target, error) {
	result, err := l.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errordefs.New(errordefs.CQ_CATALOG_REJECT, fmt.Sprintf("catalog document is not valid JSON: %v", err), "")
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return nil, errordefs.New(errordefs.CQ_CATALOG_REJECT, "catalog rejected: "+strings.Join(errs, "; "), "")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errordefs.New(errordefs.CQ_CATALOG_REJECT, fmt.Sprintf("catalog decode failed: %v", err), "")
	}
	if doc.Version != SchemaVersion {
		return nil, errordefs.New(errordefs.CQ_CATALOG_REJECT, fmt.Sprintf("unsupported catalog version %q", doc.Version), "")
	}

	seen := make(map[string]bool, len(doc.Targets))
	for i := range doc.Targets {
		t := &doc.Targets[i]
		if seen[t.ID] {
			return nil, errordefs.New(errordefs.CQ_CATALOG_REJECT, fmt.Sprintf("duplicate target id %q", t.ID), "")
		}
		seen[t.ID] = true
		for j := range t.Checkpoints {
			cp := &t.Checkpoints[j]
			if cp.ID == "" {
				cp.ID = fmt.Sprintf("cp_%d", j)
			}
			if cp.Label == "" {
				cp.Label = fmt.Sprintf("Checkpoint %d", j+1)
			}
		}
	}
	return doc.Targets, nil
}

// Seed upserts every target into the store and returns the count applied.
// Rating aggregates already held by the store survive the upsert.
func Seed(ctx context.Context, store storage.Store, targets []model.Target) (int, error) {
	for i := range targets {
		if err := store.UpsertTarget(ctx, targets[i]); err != nil {
			return i, fmt.Errorf("seed target %s: %w", targets[i].ID, err)
		}
	}
	return len(targets), nil
}
