package s3

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"
)

// ClientFactory returns an S3 client pinned to region.
type ClientFactory func(region string) s3iface.S3API

type ResolverOption func(*Resolver)

func ResolverWithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// Resolver looks up the region of each bucket once and hands out
// repositories bound to a client in that region.
type Resolver struct {
	logger    *zap.Logger
	locator   s3iface.S3API
	newClient ClientFactory

	mu      sync.Mutex
	regions map[string]string
	repos   map[string]*Repository
}

func NewResolver(locator s3iface.S3API, newClient ClientFactory, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger:    zap.NewNop(),
		locator:   locator,
		newClient: newClient,
		regions:   make(map[string]string),
		repos:     make(map[string]*Repository),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) Region(ctx context.Context, bucket string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.region(ctx, bucket)
}

func (r *Resolver) region(ctx context.Context, bucket string) (string, error) {
	if region, ok := r.regions[bucket]; ok {
		return region, nil
	}

	out, err := r.locator.GetBucketLocationWithContext(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", err
	}

	// us-east-1 buckets report an empty location constraint.
	region := s3.NormalizeBucketLocation(aws.StringValue(out.LocationConstraint))
	r.regions[bucket] = region

	r.logger.Info("resolved bucket region",
		zap.String("bucket", bucket),
		zap.String("region", region),
	)
	return region, nil
}

func (r *Resolver) Repository(ctx context.Context, bucket string) (*Repository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if repo, ok := r.repos[bucket]; ok {
		return repo, nil
	}

	region, err := r.region(ctx, bucket)
	if err != nil {
		return nil, err
	}

	repo := New(r.newClient(region), bucket,
		WithRegion(region),
		WithLogger(r.logger),
	)
	r.repos[bucket] = repo
	return repo, nil
}
