package harvester

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
	"go.uber.org/zap"

	"github.com/turbolytics/historian/internal"
	"github.com/turbolytics/historian/internal/queryhistory"
	"github.com/turbolytics/historian/internal/retry"
)

// scan walks one work group's history newest first until it meets the
// previous run's boundary.
type scan struct {
	h         *Harvester
	logger    *zap.Logger
	workGroup string
	lastSeen  string

	// first is the newest id seen this run. Every checkpoint saved by this
	// scan carries it, never an id in between.
	first   string
	flushed int
	pending []string
	buffer  []*internal.Record
}

func (s *scan) run(ctx context.Context) (string, error) {
	s.h.catalog.Start(s.workGroup, s.lastSeen)
	s.logger.Info("scanning work group", zap.String("last_seen", s.lastSeen))

	var token *string
	for {
		out, err := retry.Do(ctx, s.h.retry, func() (*athena.ListQueryExecutionsOutput, error) {
			return s.h.client.ListQueryExecutionsWithContext(ctx, &athena.ListQueryExecutionsInput{
				WorkGroup: aws.String(s.workGroup),
				NextToken: token,
			})
		})
		if err != nil {
			return "", fmt.Errorf("listing query executions: %w", err)
		}

		reached, err := s.consume(ctx, aws.StringValueSlice(out.QueryExecutionIds))
		if err != nil {
			return "", err
		}
		if reached {
			s.logger.Info("reached checkpoint", zap.String("last_seen", s.lastSeen))
			break
		}
		if aws.StringValue(out.NextToken) == "" {
			break
		}
		token = out.NextToken
	}

	if err := s.fetch(ctx); err != nil {
		return "", err
	}
	for len(s.buffer) > 0 {
		if err := s.flush(ctx, min(len(s.buffer), s.h.flushThreshold)); err != nil {
			return "", err
		}
	}

	s.h.catalog.Complete(s.workGroup)
	if s.flushed == 0 {
		s.logger.Info("work group has no new history")
		return "", nil
	}
	s.logger.Info("work group complete", zap.String("boundary", s.first), zap.Int("objects", s.flushed))
	return s.first, nil
}

// consume adds ids in page order and reports whether the boundary was met.
func (s *scan) consume(ctx context.Context, ids []string) (bool, error) {
	for _, id := range ids {
		if s.lastSeen != "" && id == s.lastSeen {
			return true, nil
		}
		if s.first == "" {
			s.first = id
		}
		s.pending = append(s.pending, id)
		if len(s.pending) >= queryhistory.MaxBatchSize {
			if err := s.fetch(ctx); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// fetch resolves pending ids and flushes every full batch.
func (s *scan) fetch(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	records, err := s.h.loader.Load(ctx, s.pending)
	if err != nil {
		return err
	}
	s.pending = s.pending[:0]
	s.buffer = append(s.buffer, records...)

	for len(s.buffer) >= s.h.flushThreshold {
		if err := s.flush(ctx, s.h.flushThreshold); err != nil {
			return err
		}
	}
	return nil
}

// flush archives the first n buffered records and saves the checkpoint.
func (s *scan) flush(ctx context.Context, n int) error {
	batch := s.buffer[:n]
	if _, err := s.h.archive.Write(ctx, s.workGroup, s.h.region, batch); err != nil {
		return err
	}
	if err := s.h.checkpoints.Save(ctx, s.workGroup, s.first); err != nil {
		return err
	}
	s.h.catalog.Flushed(s.workGroup, s.first, n)
	s.flushed++

	rest := copy(s.buffer, s.buffer[n:])
	clear(s.buffer[rest:])
	s.buffer = s.buffer[:rest]
	return nil
}
