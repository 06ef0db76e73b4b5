package harvester

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/turbolytics/historian/internal"
	"github.com/turbolytics/historian/internal/catalog"
	"github.com/turbolytics/historian/internal/checkpoint"
	"github.com/turbolytics/historian/internal/queryhistory"
	"github.com/turbolytics/historian/internal/retry"
)

const DefaultFlushThreshold = 10000

// PartitionWriter archives one batch of a work group's records.
type PartitionWriter interface {
	Write(ctx context.Context, workGroup, region string, records []*internal.Record) (*internal.Record, error)
}

// CheckpointStore persists the resume boundary of each work group.
type CheckpointStore interface {
	Load(ctx context.Context) (*checkpoint.Checkpoint, error)
	Save(ctx context.Context, workGroup, id string) error
}

type Option func(*Harvester)

func WithLogger(l *zap.Logger) Option {
	return func(h *Harvester) {
		h.logger = l
	}
}

// WithRegion sets the query service region recorded with every archived record.
func WithRegion(region string) Option {
	return func(h *Harvester) {
		h.region = region
	}
}

func WithRetryPolicy(p *retry.Policy) Option {
	return func(h *Harvester) {
		h.retry = p
	}
}

func WithArchive(w PartitionWriter) Option {
	return func(h *Harvester) {
		h.archive = w
	}
}

func WithCheckpointStore(s CheckpointStore) Option {
	return func(h *Harvester) {
		h.checkpoints = s
	}
}

func WithFlushThreshold(n int) Option {
	return func(h *Harvester) {
		h.flushThreshold = n
	}
}

// WithParallelism sets how many work groups are scanned at once.
func WithParallelism(n int) Option {
	return func(h *Harvester) {
		h.parallelism = n
	}
}

// WithWorkGroups restricts the run to the named work groups.
func WithWorkGroups(names ...string) Option {
	return func(h *Harvester) {
		for _, n := range names {
			h.include[n] = struct{}{}
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Harvester) {
		h.now = now
	}
}

// Harvester archives the query history of every work group that is newer
// than the work group's checkpoint.
type Harvester struct {
	logger      *zap.Logger
	client      athenaiface.AthenaAPI
	region      string
	retry       *retry.Policy
	loader      *queryhistory.Loader
	archive     PartitionWriter
	checkpoints CheckpointStore

	flushThreshold int
	parallelism    int
	include        map[string]struct{}
	now            func() time.Time

	catalog *catalog.Catalog
}

func New(client athenaiface.AthenaAPI, opts ...Option) *Harvester {
	h := &Harvester{
		logger:         zap.NewNop(),
		client:         client,
		retry:          retry.New(),
		checkpoints:    checkpoint.Disabled(),
		flushThreshold: DefaultFlushThreshold,
		parallelism:    1,
		include:        make(map[string]struct{}),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.flushThreshold < 1 {
		h.flushThreshold = DefaultFlushThreshold
	}
	if h.parallelism < 1 {
		h.parallelism = 1
	}
	h.loader = queryhistory.NewLoader(client,
		queryhistory.WithLogger(h.logger.Named("loader")),
		queryhistory.WithRetryPolicy(h.retry),
	)
	return h
}

// Catalog returns the catalog of the most recent run.
func (h *Harvester) Catalog() *catalog.Catalog {
	return h.catalog
}

// Run archives new history for every work group and returns, per work group
// that archived anything, the newest query execution id archived. That id is
// the boundary the next run stops at.
func (h *Harvester) Run(ctx context.Context) (map[string]string, error) {
	if h.archive == nil {
		return nil, &ConfigurationError{
			Field:  "archive",
			Reason: "no archive destination configured",
		}
	}

	runID := uuid.NewString()
	h.catalog = catalog.New(runID, h.now())
	logger := h.logger.With(zap.String("run_id", runID))
	logger.Info("starting harvest",
		zap.String("region", h.region),
		zap.Int("flush_threshold", h.flushThreshold),
		zap.Int("parallelism", h.parallelism),
	)

	cp, err := h.checkpoints.Load(ctx)
	if err != nil {
		h.catalog.Finish(h.now(), false)
		return nil, err
	}

	groups, err := h.workGroups(ctx)
	if err != nil {
		h.catalog.Finish(h.now(), false)
		return nil, err
	}

	var mu sync.Mutex
	results := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)
	for _, name := range groups {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			s := &scan{
				h:         h,
				logger:    logger.With(zap.String("work_group", name)),
				workGroup: name,
				lastSeen:  cp.LastSeen(name),
			}
			first, err := s.run(gctx)
			if err != nil {
				return fmt.Errorf("work group %q: %w", name, err)
			}
			if first != "" {
				mu.Lock()
				results[name] = first
				mu.Unlock()
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	h.catalog.Finish(h.now(), err == nil)
	if err != nil {
		logger.Error("harvest failed", zap.Error(err))
		return results, err
	}

	logger.Info("harvest complete", zap.Int("work_groups_archived", len(results)))
	return results, nil
}

func (h *Harvester) workGroups(ctx context.Context) ([]string, error) {
	var names []string
	var token *string
	for {
		out, err := retry.Do(ctx, h.retry, func() (*athena.ListWorkGroupsOutput, error) {
			return h.client.ListWorkGroupsWithContext(ctx, &athena.ListWorkGroupsInput{
				NextToken: token,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("listing work groups: %w", err)
		}

		for _, wg := range out.WorkGroups {
			name := aws.StringValue(wg.Name)
			if len(h.include) > 0 {
				if _, ok := h.include[name]; !ok {
					continue
				}
			}
			names = append(names, name)
		}

		if aws.StringValue(out.NextToken) == "" {
			return names, nil
		}
		token = out.NextToken
	}
}
