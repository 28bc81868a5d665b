// Package s3backup guarda los backups del Secret Store en S3 o en cualquier
// storage compatible (MinIO, R2, iDrive e2).
package s3backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// ErrNotFound indica que el objeto pedido no existe.
var ErrNotFound = errors.New("s3backup: object not found")

// Config son los parámetros del bucket.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string // vacío = AWS S3
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// API es el subconjunto de *s3.Client que usa Store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Store implementa ports.BackupWriter y ports.BackupReader.
type Store struct {
	api    API
	bucket string
}

var (
	_ ports.BackupWriter = (*Store)(nil)
	_ ports.BackupReader = (*Store)(nil)
)

// New crea el cliente S3 a partir de cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3backup.New: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3backup.New: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewWithAPI(client, cfg.Bucket), nil
}

// NewWithAPI crea un Store sobre un cliente ya construido.
func NewWithAPI(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

// Put sube data a key.
func (s *Store) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3backup.Put: %s: %w", key, err)
	}
	return nil
}

// Get devuelve el cuerpo de key. El caller lo cierra.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3backup.Get: %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("s3backup.Get: %s: %w", key, err)
	}
	return out.Body, nil
}

// List devuelve los objetos bajo prefix, siguiendo la paginación.
func (s *Store) List(ctx context.Context, prefix string) ([]domain.BackupObject, error) {
	var objs []domain.BackupObject
	pages := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3backup.List: %s: %w", prefix, err)
		}
		for _, o := range page.Contents {
			obj := domain.BackupObject{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
			if o.LastModified != nil {
				obj.LastModified = *o.LastModified
			}
			objs = append(objs, obj)
		}
	}
	return objs, nil
}

func normaliseEndpoint(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}
