// Package branding resolves per-send branding variables such as the logo URL.
package branding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// URLSource produces a fresh logo URL valid for at least ttl.
type URLSource interface {
	LogoURL(ctx context.Context, ttl time.Duration) (string, error)
}

// LogoCache memoizes a logo URL for TTL. The owner passes it to whoever needs
// it; there is no package-level state.
type LogoCache struct {
	source URLSource
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	url       string
	expiresAt time.Time
}

func NewLogoCache(source URLSource, ttl time.Duration, log *slog.Logger) *LogoCache {
	return &LogoCache{source: source, ttl: ttl, log: log, now: time.Now}
}

// URL returns the cached URL, refreshing it when expired.
func (c *LogoCache) URL(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.url != "" && c.now().Before(c.expiresAt) {
		return c.url, nil
	}
	// Ask the source for twice the cache TTL so a cached URL never outlives its signature.
	url, err := c.source.LogoURL(ctx, 2*c.ttl)
	if err != nil {
		return "", err
	}
	c.url = url
	c.expiresAt = c.now().Add(c.ttl)
	return url, nil
}

// Variables implements the dispatch coordinator's shared variable hook.
// Lookup failures are logged and yield no logoUrl rather than failing the send.
func (c *LogoCache) Variables(ctx context.Context) map[string]string {
	url, err := c.URL(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "logo url lookup failed", "error", err)
		return nil
	}
	return map[string]string{"logoUrl": url}
}

// S3Presigner presigns GET requests for the logo object.
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	key    string
}

func NewS3Presigner(ctx context.Context, region, bucket, key string) (*S3Presigner, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3PresignerFromClient(s3.NewFromConfig(cfg), bucket, key), nil
}

func NewS3PresignerFromClient(client *s3.Client, bucket, key string) *S3Presigner {
	return &S3Presigner{client: s3.NewPresignClient(client), bucket: bucket, key: key}
}

func (p *S3Presigner) LogoURL(ctx context.Context, ttl time.Duration) (string, error) {
	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign logo %s/%s: %w", p.bucket, p.key, err)
	}
	return req.URL, nil
}

var _ URLSource = (*S3Presigner)(nil)
