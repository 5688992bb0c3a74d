package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
)

const s3Scheme = "s3://"

// Fetcher resolves an artifact location to a readable local file.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (string, error)
}

// LocalFetcher serves artifacts straight from the filesystem.
type LocalFetcher struct{}

func (LocalFetcher) Fetch(ctx context.Context, location string) (string, error) {
	if strings.HasPrefix(location, s3Scheme) {
		return "", fmt.Errorf("no object storage configured for %s", location)
	}
	return location, nil
}

type S3Options struct {
	URL       string `json:"url,omitempty"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
	CacheDir  string `json:"cacheDir,omitempty"`
}

// S3Fetcher downloads s3://bucket/key artifacts into CacheDir. Other
// locations are treated as local paths.
type S3Fetcher struct {
	Downloader *manager.Downloader
	CacheDir   string
}

func NewS3Fetcher(ctx context.Context, opt S3Options) (*S3Fetcher, error) {
	loadOptions := []func(*config.LoadOptions) error{}
	if opt.Region != "" {
		loadOptions = append(loadOptions, config.WithRegion(opt.Region))
	}
	if opt.AccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, ""),
		))
	}
	if opt.URL != "" {
		loadOptions = append(loadOptions, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{URL: opt.URL}, nil
				},
			),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, err
	}
	s3cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opt.URL != ""
	})
	cacheDir := opt.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "farm-api-artifacts")
	}
	return &S3Fetcher{Downloader: manager.NewDownloader(s3cli), CacheDir: cacheDir}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, location string) (string, error) {
	bucket, key, ok := ParseS3Location(location)
	if !ok {
		return location, nil
	}
	dest := filepath.Join(f.CacheDir, bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	n, err := f.Downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download %s: %w", location, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("artifact downloaded", "location", location, "path", dest, "bytes", n)
	return dest, nil
}

// ParseS3Location splits s3://bucket/key.
func ParseS3Location(location string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(location, s3Scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(location, s3Scheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// FileDigest returns the sha256 digest of a local file.
func FileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.FromReader(f)
}
