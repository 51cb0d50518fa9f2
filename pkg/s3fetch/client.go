// Package s3fetch reads table files from Amazon S3.
package s3fetch

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client reads objects from S3.
type Client struct {
	api manager.DownloadAPIClient
}

// NewClient creates a client from the default AWS configuration chain.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(cfg), nil
}

// NewClientWithConfig creates a client from an explicit AWS config.
func NewClientWithConfig(cfg aws.Config) *Client {
	return &Client{api: s3.NewFromConfig(cfg)}
}

// NewClientWithAPI wraps any GetObject implementation, such as an
// *s3.Client with custom options.
func NewClientWithAPI(api manager.DownloadAPIClient) *Client {
	return &Client{api: api}
}

// StreamObject returns the object body. The caller must close it.
func (c *Client) StreamObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

// Downloader returns a parallel range downloader sharing this client.
func (c *Client) Downloader(cfg DownloaderConfig) *Downloader {
	return NewDownloader(c.api, cfg)
}
