// Package archive exports enriched articles to S3 as dated JSON snapshots.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/store"
)

// Uploader is the slice of the S3 client used for exports. *s3.Client
// satisfies it.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArticleLister returns the articles that pass the clean filter.
type ArticleLister interface {
	ListClean(ctx context.Context, f store.CleanFilter) ([]model.Article, error)
}

// Options configures an Exporter.
type Options struct {
	Bucket string
	Prefix string
	Filter store.CleanFilter
}

// Exporter writes snapshots of the clean article set to a bucket.
type Exporter struct {
	up   Uploader
	opts Options
	now  func() time.Time
}

// Snapshot is the document written to the bucket.
type Snapshot struct {
	ExportedAt time.Time       `json:"exported_at"`
	Count      int             `json:"count"`
	Articles   []model.Article `json:"articles"`
}

// NewS3Uploader builds an S3 client from the default AWS credential chain.
func NewS3Uploader(ctx context.Context, region string) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "archive: load aws config")
	}
	return s3.NewFromConfig(awsCfg), nil
}

// NewExporter returns an Exporter writing through up.
func NewExporter(up Uploader, opts Options) *Exporter {
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	return &Exporter{up: up, opts: opts, now: time.Now}
}

// Key returns the object key for a snapshot taken at t.
func (e *Exporter) Key(t time.Time) string {
	return path.Join(e.opts.Prefix, t.UTC().Format("2006-01-02"), "articles.json")
}

// Export uploads the clean articles and returns the object key and count.
func (e *Exporter) Export(ctx context.Context, src ArticleLister) (string, int, error) {
	if e.opts.Bucket == "" {
		return "", 0, eris.New("archive: bucket is required")
	}

	articles, err := src.ListClean(ctx, e.opts.Filter)
	if err != nil {
		return "", 0, eris.Wrap(err, "archive: list clean articles")
	}
	if articles == nil {
		articles = []model.Article{}
	}

	now := e.now()
	body, err := json.Marshal(Snapshot{ExportedAt: now.UTC(), Count: len(articles), Articles: articles})
	if err != nil {
		return "", 0, eris.Wrap(err, "archive: marshal snapshot")
	}

	key := e.Key(now)
	_, err = e.up.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", 0, eris.Wrapf(err, "archive: put s3://%s/%s", e.opts.Bucket, key)
	}

	zap.L().Info("archive: snapshot uploaded",
		zap.String("bucket", e.opts.Bucket),
		zap.String("key", key),
		zap.Int("articles", len(articles)),
		zap.Int("bytes", len(body)),
	)
	return key, len(articles), nil
}
