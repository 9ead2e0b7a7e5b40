package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"citymeet/mobile/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// StorageClient is the object-storage side of the gateway. Buckets are
// provisioned by the backend; the client only uploads and builds public
// URLs.
type StorageClient struct {
	endpoint       string
	publicEndpoint string
	client         *s3.Client
}

func NewStorageClient(cfg config.StorageConfig) (*StorageClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("STORAGE_ENDPOINT is required")
	}

	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	publicEndpoint := normalizeEndpoint(cfg.PublicEndpoint, cfg.UseSSL)
	if publicEndpoint == "" {
		publicEndpoint = endpoint
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
		BaseEndpoint: aws.String(endpoint),
	}

	return &StorageClient{
		endpoint:       endpoint,
		publicEndpoint: publicEndpoint,
		client:         s3.New(options),
	}, nil
}

// Upload stores body under bucket/objectPath and returns its public URL.
func (s *StorageClient) Upload(ctx context.Context, bucket, objectPath, contentType string, body []byte) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(objectPath),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, objectPath, err)
	}
	return s.PublicURL(bucket, objectPath), nil
}

// PublicURL builds the publicly reachable URL for an object.
func (s *StorageClient) PublicURL(bucket, objectPath string) string {
	u, err := url.Parse(s.publicEndpoint)
	if err != nil {
		return fmt.Sprintf("%s/%s/%s", s.publicEndpoint, bucket, objectPath)
	}
	u.Path = path.Join(u.Path, bucket, objectPath)
	return u.String()
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http") {
		return endpoint
	}
	scheme := "https"
	if !useSSL {
		scheme = "http"
	}
	return scheme + "://" + endpoint
}
