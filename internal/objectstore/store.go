package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store puts whole objects under slash separated keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, meta map[string]string) error
	// Location returns the URI a reader would use for key.
	Location(key string) string
}

// LocalStore writes objects as files below Dir.
type LocalStore struct {
	Dir string
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ map[string]string) error {
	p := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return os.Rename(tmp, p)
}

func (s *LocalStore) Location(key string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(key))
}

// PutObjectAPI is the part of the S3 client S3Store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads objects to Bucket, optionally below Prefix.
type S3Store struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

func (s *S3Store) key(key string) string {
	if s.Prefix == "" {
		return key
	}
	return path.Join(s.Prefix, key)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.key(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    meta,
	}
	if _, err := s.Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", s.Bucket, err)
	}
	return nil
}

func (s *S3Store) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.Bucket, s.key(key))
}
