package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Option configures S3Store.
type S3Option func(*S3Config)

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func WithS3Endpoint(endpoint string) S3Option {
	return func(c *S3Config) {
		if endpoint != "" {
			c.Endpoint = endpoint
		}
	}
}

func WithS3Bucket(bucket string) S3Option {
	return func(c *S3Config) {
		if bucket != "" {
			c.Bucket = bucket
		}
	}
}

func WithS3Region(region string) S3Option {
	return func(c *S3Config) { c.Region = region }
}

func WithS3Credentials(accessKey, secretKey string) S3Option {
	return func(c *S3Config) {
		c.AccessKey = accessKey
		c.SecretKey = secretKey
	}
}

func WithS3SSL(useSSL bool) S3Option {
	return func(c *S3Config) { c.UseSSL = useSSL }
}

// S3Store stores objects in one bucket of an S3-compatible service.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store connects and makes sure the bucket exists.
func NewS3Store(ctx context.Context, opts ...S3Option) (*S3Store, error) {
	cfg := &S3Config{
		Endpoint: "localhost:9000",
		Bucket:   "finpolicy-models",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !ok {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr("get", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr("read", key, err)
	}
	return data, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if errors.Is(s.mapErr("stat", key, err), ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	seen := make(map[string]struct{})
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		name = strings.TrimSuffix(name, "/")
		if i := strings.Index(name, "/"); i >= 0 {
			name = name[:i]
		}
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3Store) mapErr(verb, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", verb, key, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", verb, key, err)
}
