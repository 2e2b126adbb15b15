package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver uploads a finished task's workspace directory for audit. The
// only implementation is S3Archiver; a Dispatcher with no archiver
// configured skips archival entirely.
type Archiver interface {
	Archive(ctx context.Context, root, keyPrefix string) error
}

// S3Archiver uploads every regular file under root to bucket, keyed by
// "<keyPrefix>/<path relative to root>".
type S3Archiver struct {
	client *s3.Client
	bucket string
}

func NewS3Archiver(client *s3.Client, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

func (a *S3Archiver) Archive(ctx context.Context, root, keyPrefix string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		key := filepath.ToSlash(filepath.Join(keyPrefix, rel))
		_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		return nil
	})
}
