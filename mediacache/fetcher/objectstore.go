package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

// ObjectStoreConfig holds S3/MinIO connection settings.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	MaxBytes  int64

	// Client, when set, is used instead of Endpoint/AccessKey/SecretKey.
	Client *minio.Client
}

// ObjectStoreFetcher reads s3://bucket/key references from an S3-compatible
// object store.
type ObjectStoreFetcher struct {
	client     *minio.Client
	maxBytes   int64
	normalizer Normalizer
}

func NewObjectStoreFetcher(cfg ObjectStoreConfig, normalizer Normalizer) (*ObjectStoreFetcher, error) {
	client := cfg.Client
	if client == nil {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("object store endpoint is required")
		}
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create object store client: %w", err)
		}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &ObjectStoreFetcher{client: client, maxBytes: cfg.MaxBytes, normalizer: normalizer}, nil
}

func (f *ObjectStoreFetcher) Fetch(ctx context.Context, remoteRef string) (payload string, err error) {
	ctx, span := startSpan(ctx, "fetcher.objectstore", remoteRef)
	defer func() { endSpan(span, len(payload), err) }()

	bucket, key, err := ParseObjectRef(remoteRef)
	if err != nil {
		return "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
	}
	if info.Size > f.maxBytes {
		return "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: fmt.Errorf("object is %d bytes, limit %d", info.Size, f.maxBytes)}
	}

	body, err := io.ReadAll(io.LimitReader(obj, f.maxBytes+1))
	if err != nil {
		return "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
	}

	payload, err = f.normalizer.Normalize(body, info.ContentType)
	if err != nil {
		return "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
	}
	return payload, nil
}

// ParseObjectRef splits s3://bucket/path/to/key.
func ParseObjectRef(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid object reference: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("unsupported object reference scheme %q", u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("object reference needs bucket and key: %q", ref)
	}
	return u.Host, key, nil
}
