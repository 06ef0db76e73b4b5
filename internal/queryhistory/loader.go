package queryhistory

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"go.uber.org/zap"

	"github.com/turbolytics/historian/internal"
	"github.com/turbolytics/historian/internal/retry"
)

// MaxBatchSize is the most ids BatchGetQueryExecution accepts per call.
const MaxBatchSize = 50

var (
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
	ErrNotReturned   = errors.New("query execution not returned")
)

// UnprocessedError is a query execution BatchGetQueryExecution declined to
// return. It satisfies awserr.Error so throttle codes classify as retryable.
type UnprocessedError struct {
	QueryExecutionID string
	ErrorCode        string
	ErrorMessage     string
}

var _ awserr.Error = (*UnprocessedError)(nil)

func (e *UnprocessedError) Error() string {
	return fmt.Sprintf("query execution %s unprocessed: %s: %s", e.QueryExecutionID, e.ErrorCode, e.ErrorMessage)
}

func (e *UnprocessedError) Code() string { return e.ErrorCode }

func (e *UnprocessedError) Message() string { return e.ErrorMessage }

func (e *UnprocessedError) OrigErr() error { return nil }

type Option func(*Loader)

func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		ld.logger = l
	}
}

func WithRetryPolicy(p *retry.Policy) Option {
	return func(ld *Loader) {
		ld.retry = p
	}
}

// Loader resolves query execution ids into full records.
type Loader struct {
	logger *zap.Logger
	client athenaiface.AthenaAPI
	retry  *retry.Policy
}

func NewLoader(client athenaiface.AthenaAPI, opts ...Option) *Loader {
	l := &Loader{
		logger: zap.NewNop(),
		client: client,
		retry:  retry.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Load(ctx context.Context, ids []string) ([]*internal.Record, error) {
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d ids, maximum %d", ErrBatchTooLarge, len(ids), MaxBatchSize)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	found := make(map[string]*athena.QueryExecution, len(ids))
	remaining := ids
	_, err := retry.Do(ctx, l.retry, func() (*athena.BatchGetQueryExecutionOutput, error) {
		out, err := l.client.BatchGetQueryExecutionWithContext(ctx, &athena.BatchGetQueryExecutionInput{
			QueryExecutionIds: aws.StringSlice(remaining),
		})
		if err != nil {
			return nil, err
		}
		for _, qe := range out.QueryExecutions {
			found[aws.StringValue(qe.QueryExecutionId)] = qe
		}
		remaining, err = l.unprocessed(out.UnprocessedQueryExecutionIds)
		return out, err
	})
	if err != nil {
		return nil, err
	}

	records := make([]*internal.Record, 0, len(ids))
	for _, id := range ids {
		qe, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotReturned, id)
		}
		r, err := NewRecord(qe)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	fields := []zap.Field{zap.Int("batch_size", len(records))}
	if len(records) > 0 {
		last := records[len(records)-1]
		fields = append(fields, zap.String("last_submission_time", last.SubmissionTime.UTC().String()))
	}
	l.logger.Info("loaded query executions", fields...)

	return records, nil
}

// unprocessed returns the ids to request again. A throttled id yields a
// retryable error, any other code a permanent one.
func (l *Loader) unprocessed(ids []*athena.UnprocessedQueryExecutionId) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var again []string
	var throttled error
	for _, u := range ids {
		uerr := &UnprocessedError{
			QueryExecutionID: aws.StringValue(u.QueryExecutionId),
			ErrorCode:        aws.StringValue(u.ErrorCode),
			ErrorMessage:     aws.StringValue(u.ErrorMessage),
		}
		if !retry.IsThrottle(uerr) {
			return nil, uerr
		}
		if throttled == nil {
			throttled = uerr
		}
		again = append(again, uerr.QueryExecutionID)
	}

	l.logger.Warn("query executions throttled",
		zap.Int("count", len(again)),
		zap.String("first_id", again[0]),
	)
	return again, throttled
}
