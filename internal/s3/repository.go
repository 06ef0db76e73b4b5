package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"go.uber.org/zap"

	"github.com/turbolytics/historian/internal"
)

type Option func(*Repository)

func WithRegion(region string) Option {
	return func(r *Repository) {
		r.Region = region
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// WithUploader replaces the uploader built from the client.
func WithUploader(u s3manageriface.UploaderAPI) Option {
	return func(r *Repository) {
		r.uploader = u
	}
}

// Repository reads and writes whole objects in a single bucket.
type Repository struct {
	logger   *zap.Logger
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI

	Region string
	Bucket string
}

var _ internal.Repository = (*Repository)(nil)

func New(client s3iface.S3API, bucket string, opts ...Option) *Repository {
	r := &Repository{
		logger: zap.NewNop(),
		client: client,
		Bucket: bucket,
	}

	for _, o := range opts {
		o(r)
	}

	if r.uploader == nil {
		r.uploader = s3manager.NewUploaderWithClient(client)
	}

	return r
}

func (r *Repository) Read(ctx context.Context, key string) ([]byte, error) {
	r.logger.Debug(
		"S3 read",
		zap.String("key", key),
		zap.String("bucket", r.Bucket),
	)

	out, err := r.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", internal.ErrNotFound, r.Bucket, key)
		}
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (r *Repository) Write(ctx context.Context, key string, reader io.Reader) error {
	r.logger.Debug(
		"S3 write",
		zap.String("key", key),
		zap.String("bucket", r.Bucket),
		zap.String("region", r.Region),
	)

	input := &s3manager.UploadInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(key),

		// io.ReadSeeker is preferred as the Uploader will be able to optimize
		// memory when uploading large content. io.Reader is supported, but
		// will require buffering of the reader's bytes for each part.
		Body: reader,
	}
	_, err := r.uploader.UploadWithContext(ctx, input)
	return err
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
