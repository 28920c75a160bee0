// Package publish pushes the output tree to object storage and probes the
// publishing endpoint. Both are optional: publishing is toggled by
// configuration and the probe is advisory, never failing the run.
package publish

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.airbusds-geo.com/log"

	"github.com/terrapipe/cogstac/config"
)

// Uploader is the slice of manager.Uploader the publisher uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Publisher syncs the output tree to one S3 prefix, sequentially.
type Publisher struct {
	Uploader Uploader
	Bucket   string
	Prefix   string
}

// New builds a publisher from the resolved publish configuration.
// Credentials come from the conventional AWS environment variables.
func New(cfg config.Publish) *Publisher {
	awscfg := aws.Config{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			os.Getenv("AWS_ACCESS_KEY_ID"),
			os.Getenv("AWS_SECRET_ACCESS_KEY"),
			os.Getenv("AWS_SESSION_TOKEN")),
	}
	return &Publisher{
		Uploader: manager.NewUploader(s3.NewFromConfig(awscfg)),
		Bucket:   cfg.Bucket,
		Prefix:   strings.TrimSuffix(cfg.Prefix, "/"),
	}
}

// Sync walks root and uploads every regular file under its relative key.
func (p *Publisher) Sync(ctx context.Context, root string) error {
	sugar := log.Logger(ctx).Sugar()
	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := p.uploadFile(ctx, path, p.key(rel)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("sync %s to s3://%s/%s: %w", root, p.Bucket, p.Prefix, err)
	}
	sugar.Infof("published %d files to s3://%s/%s", count, p.Bucket, p.Prefix)
	return nil
}

func (p *Publisher) key(rel string) string {
	rel = filepath.ToSlash(rel)
	if p.Prefix == "" {
		return rel
	}
	return p.Prefix + "/" + rel
}

func (p *Publisher) uploadFile(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	_, err = p.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(path)),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// ContentType maps the output tree's file kinds to media types.
func ContentType(path string) string {
	switch filepath.Ext(path) {
	case ".json":
		return "application/json"
	case ".yaml":
		return "application/x-yaml"
	case ".tif":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Probe checks that the publishing endpoint answers, in the background.
// The outcome is logged and nothing else: no retry, no effect on the run.
func Probe(ctx context.Context, url string) {
	sugar := log.Logger(ctx).Sugar()
	go func() {
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(url)
		if err != nil {
			sugar.Warnf("publishing endpoint %s unreachable: %v", url, err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			sugar.Warnf("publishing endpoint %s returned status %d", url, resp.StatusCode)
		}
	}()
}
