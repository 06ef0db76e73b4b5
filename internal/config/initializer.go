package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/turbolytics/historian/internal"
	"github.com/turbolytics/historian/internal/archive"
	haws "github.com/turbolytics/historian/internal/aws"
	"github.com/turbolytics/historian/internal/checkpoint"
	"github.com/turbolytics/historian/internal/harvester"
	"github.com/turbolytics/historian/internal/local"
	"github.com/turbolytics/historian/internal/retry"
	"github.com/turbolytics/historian/internal/s3"
)

// InitializeHarvester validates c and wires a harvester from it. Nothing
// remote is contacted when validation fails.
func InitializeHarvester(ctx context.Context, c *Historian, logger *zap.Logger) (*harvester.Harvester, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	clients, err := haws.New(
		haws.WithLogger(logger.Named("aws")),
		haws.WithRegion(c.AWS.Region),
		haws.WithEndpoint(c.AWS.Endpoint),
		haws.WithForcePathStyle(c.AWS.ForcePathStyle),
	)
	if err != nil {
		return nil, err
	}

	resolver := s3.NewResolver(
		clients.S3(""),
		clients.S3,
		s3.ResolverWithLogger(logger.Named("s3")),
	)

	archiveLoc, err := internal.ParseLocation(c.Harvester.ArchiveURI)
	if err != nil {
		return nil, err
	}
	archiveRepo, err := repository(ctx, archiveLoc, resolver, logger)
	if err != nil {
		return nil, fmt.Errorf("archive destination %s: %w", archiveLoc, err)
	}

	store := checkpoint.Disabled(checkpoint.WithLogger(logger.Named("checkpoint")))
	if c.Harvester.StateURI != "" {
		stateLoc, err := internal.ParseLocation(c.Harvester.StateURI)
		if err != nil {
			return nil, err
		}
		stateRepo, err := repository(ctx, stateLoc, resolver, logger)
		if err != nil {
			return nil, fmt.Errorf("state destination %s: %w", stateLoc, err)
		}
		store = checkpoint.New(stateRepo, stateLoc.Key, checkpoint.WithLogger(logger.Named("checkpoint")))
	}

	policy := retry.New(
		retry.WithLogger(logger.Named("retry")),
		retry.WithBaseDelay(c.Harvester.Retry.BaseDelay),
		retry.WithMaxDelay(c.Harvester.Retry.MaxDelay),
		retry.WithMaxAttempts(c.Harvester.Retry.MaxAttempts),
	)

	return harvester.New(
		clients.Athena(),
		harvester.WithLogger(logger.Named("harvester")),
		harvester.WithRegion(clients.Region),
		harvester.WithRetryPolicy(policy),
		harvester.WithArchive(archive.New(archiveRepo,
			archive.WithPrefix(archiveLoc.Key),
			archive.WithLogger(logger.Named("archive")),
		)),
		harvester.WithCheckpointStore(store),
		harvester.WithFlushThreshold(c.Harvester.FlushThreshold),
		harvester.WithParallelism(c.Harvester.Parallelism),
		harvester.WithWorkGroups(c.Harvester.WorkGroups...),
	), nil
}

func repository(ctx context.Context, loc internal.Location, resolver *s3.Resolver, logger *zap.Logger) (internal.Repository, error) {
	switch loc.Scheme {
	case internal.SchemeS3:
		return resolver.Repository(ctx, loc.Bucket)
	case internal.SchemeFile:
		return local.New("", local.WithLogger(logger.Named("local"))), nil
	default:
		return nil, fmt.Errorf("unsupported location scheme: %q", loc.Scheme)
	}
}
