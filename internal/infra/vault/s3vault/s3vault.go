// Package s3vault stores sealed payloads as objects in an S3 compatible
// bucket (AWS S3 or MinIO).
package s3vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"credanchor/internal/domain"
	"credanchor/internal/infra/vault"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const Scheme = "s3"

// objectAPI is the subset of *s3.Client used by the store.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

type Store struct {
	api    objectAPI
	bucket string
	prefix string
	sealer *vault.Sealer
}

func New(ctx context.Context, opts Options, sealer *vault.Sealer) (*Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3vault: bucket is required")
	}
	if sealer == nil {
		return nil, errors.New("s3vault: sealer is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3vault: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newWithAPI(client, opts.Bucket, opts.Prefix, sealer), nil
}

func newWithAPI(api objectAPI, bucket, prefix string, sealer *vault.Sealer) *Store {
	return &Store{api: api, bucket: bucket, prefix: prefix, sealer: sealer}
}

func (s *Store) Store(ctx context.Context, data []byte, meta domain.VaultMetadata) (string, error) {
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return "", vault.WriteError("vault.s3.store", err)
	}
	key := s.prefix + uuid.NewString()
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(sealed),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"proof-hash":   meta.ProofHash,
			"payload-kind": string(meta.Kind),
		},
	})
	if err != nil {
		return "", vault.WriteError("vault.s3.store", err)
	}
	return Scheme + ":" + key, nil
}

func (s *Store) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	key, ok := s.keyFor(handle)
	if !ok {
		return nil, vault.NotFound("vault.s3.retrieve", handle)
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, vault.ReadError("vault.s3.retrieve", normalize(err))
	}
	defer out.Body.Close()
	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, vault.ReadError("vault.s3.retrieve", err)
	}
	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, vault.ReadError("vault.s3.retrieve", err)
	}
	return plain, nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report unknown handles.
func (s *Store) Delete(ctx context.Context, handle string) error {
	key, ok := s.keyFor(handle)
	if !ok {
		return vault.NotFound("vault.s3.delete", handle)
	}
	if _, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return vault.ReadError("vault.s3.delete", normalize(err))
	}
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return vault.ReadError("vault.s3.delete", normalize(err))
	}
	return nil
}

func (s *Store) keyFor(handle string) (string, bool) {
	key, ok := vault.TrimScheme(handle, Scheme)
	if !ok || !strings.HasPrefix(key, s.prefix) {
		return "", false
	}
	return key, true
}

func normalize(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return errors.Join(domain.ErrNotFound, err)
	}
	return err
}
