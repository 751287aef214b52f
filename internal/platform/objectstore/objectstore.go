// Package objectstore mirrors finished exports into a bucket.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"linkscan/internal/config"
)

// Objects live under this prefix in whichever bucket is configured.
const prefix = "exports"

type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Remove(ctx context.Context, key string) error
}

// New builds the store selected by EXPORT_MIRROR. An empty selection
// returns a nil Store and no error.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ExportMirror)) {
	case "", "none":
		return nil, nil
	case "s3":
		st, err := NewS3Store(ctx, S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "supabase":
		st, err := NewSupabaseStore(SupabaseConfig{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
			Bucket:     cfg.SupabaseBucket,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown export mirror %q", cfg.ExportMirror)
	}
}
