package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"
)

type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
}

// SupabaseStore copies exports into a Supabase Storage bucket. The storage
// client has no context support, so ctx is unused.
type SupabaseStore struct {
	client *supabase.Client
	bucket string
}

func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase URL and service key are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("supabase storage bucket is required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("init supabase client: %w", err)
	}
	return &SupabaseStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *SupabaseStore) Upload(_ context.Context, key string, body io.Reader, contentType string) error {
	upsert := true
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}
	if _, err := s.client.Storage.UploadFile(s.bucket, objectKey(key), body, opts); err != nil {
		return fmt.Errorf("upload %s to supabase: %w", key, err)
	}
	return nil
}

func (s *SupabaseStore) Remove(_ context.Context, key string) error {
	if _, err := s.client.Storage.RemoveFile(s.bucket, []string{objectKey(key)}); err != nil {
		return fmt.Errorf("delete %s from supabase: %w", key, err)
	}
	return nil
}
