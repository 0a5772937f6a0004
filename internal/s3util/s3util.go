// Package s3util stores submitted creatives and generated reports in S3 for
// the Lambda deployment.
//
// Objects are laid out per review:
//
//	<reviewID>/<n>-<filename>   submitted assets
//	<reviewID>/report.pdf       rendered report
//	<reviewID>/report.zip       report bundle
package s3util

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/creative"
)

// projectTag is the URL-encoded object tagging string for cost allocation.
const projectTag = "Project=creative-review"

// Report object names.
const (
	ReportPDF    = "report.pdf"
	ReportBundle = "report.zip"
)

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Presigner signs GET requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Bucket is one S3 bucket.
type Bucket struct {
	Client    API
	Presigner Presigner
	Name      string
}

// AssetKey returns the key for the n-th asset of a review.
func AssetKey(reviewID string, n int, filename string) string {
	return fmt.Sprintf("%s/%d-%s", reviewID, n, path.Base(filepath.ToSlash(filename)))
}

// ReportKey returns the key of a review's report object.
func ReportKey(reviewID, name string) string {
	return reviewID + "/" + name
}

// Put uploads body under key with the project tag.
func (b *Bucket) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	log.Debug().Str("bucket", b.Name).Str("key", key).Msg("Uploading to S3")
	_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Name),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Tagging:     aws.String(projectTag),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	return nil
}

// PutAsset uploads an asset's bytes under key.
func (b *Bucket) PutAsset(ctx context.Context, key string, a creative.Asset) error {
	rc, err := a.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", a.Filename, err)
	}
	defer rc.Close()
	return b.Put(ctx, key, a.MIMEType, rc)
}

// DownloadAsset copies an object to a temporary file and returns it as an
// asset named filename. cleanup removes the temporary file.
func (b *Bucket) DownloadAsset(ctx context.Context, key, filename, mimeType string) (creative.Asset, func(), error) {
	tmp, err := os.CreateTemp("", "s3dl-*"+filepath.Ext(key))
	if err != nil {
		return creative.Asset{}, nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Name),
		Key:    aws.String(key),
	})
	if err != nil {
		tmp.Close()
		cleanup()
		return creative.Asset{}, nil, fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer out.Body.Close()

	size, err := io.Copy(tmp, out.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return creative.Asset{}, nil, fmt.Errorf("download %s: %w", key, err)
	}

	name := tmp.Name()
	a := creative.NewAsset(filename, mimeType, size, func() (io.ReadCloser, error) {
		return os.Open(name)
	})
	a.Path = name
	log.Debug().Str("key", key).Int64("size", size).Msg("Downloaded asset from S3")
	return a, cleanup, nil
}

// Delete removes keys in one request. Per-key failures are logged.
func (b *Bucket) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	objs := make([]s3types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		objs[i] = s3types.ObjectIdentifier{Key: aws.String(k)}
	}
	out, err := b.Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.Name),
		Delete: &s3types.Delete{Objects: objs, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("S3 DeleteObjects: %w", err)
	}
	for _, e := range out.Errors {
		log.Warn().Str("key", aws.ToString(e.Key)).Str("code", aws.ToString(e.Code)).Msg("Failed to delete S3 object")
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("S3 DeleteObjects: %d of %d objects not deleted", len(out.Errors), len(keys))
	}
	return nil
}

// PresignGet creates a pre-signed GET URL for key.
func (b *Bucket) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if b.Presigner == nil {
		return "", fmt.Errorf("presign %s: no presigner configured", key)
	}
	req, err := b.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Name),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return req.URL, nil
}
