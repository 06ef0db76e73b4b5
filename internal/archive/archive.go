package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/turbolytics/historian/internal"
)

const (
	TimestampLayout = "2006-01-02 15:04:05.000"

	FieldRegion             = "region"
	FieldStatus             = "Status"
	FieldSubmissionDateTime = "SubmissionDateTime"
	FieldCompletionDateTime = "CompletionDateTime"
)

var ErrEmptyPartition = errors.New("partition has no records")

type Option func(*Writer)

func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

func WithPrefix(prefix string) Option {
	return func(w *Writer) {
		w.prefix = prefix
	}
}

// Writer stores batches of records as gzip compressed JSON lines, one
// object per batch, under a key partitioned by region, month and work group.
type Writer struct {
	logger *zap.Logger
	repo   internal.Repository
	prefix string
}

func New(repo internal.Repository, opts ...Option) *Writer {
	w := &Writer{
		logger: zap.NewNop(),
		repo:   repo,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write stores records and returns the first one, whose id names the object.
func (w *Writer) Write(ctx context.Context, workGroup, region string, records []*internal.Record) (*internal.Record, error) {
	if len(records) == 0 {
		return nil, ErrEmptyPartition
	}
	first := records[0]
	key := PartitionKey(w.prefix, region, workGroup, first)

	var buf bytes.Buffer
	if err := Encode(&buf, region, records); err != nil {
		return nil, fmt.Errorf("encoding partition %q: %w", key, err)
	}

	w.logger.Info("writing partition",
		zap.String("key", key),
		zap.String("work_group", workGroup),
		zap.Int("records", len(records)),
		zap.Int("bytes", buf.Len()),
	)

	if err := w.repo.Write(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return nil, fmt.Errorf("writing partition %q: %w", key, err)
	}
	return first, nil
}

func PartitionKey(prefix, region, workGroup string, first *internal.Record) string {
	month := first.SubmissionTime.UTC().Format("2006-01") + "-01"
	return fmt.Sprintf("%sregion=%s/month=%s/work_group=%s/%s.json.gz",
		normalizePrefix(prefix),
		region,
		month,
		workGroup,
		first.ID,
	)
}

func normalizePrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

// Encode writes one JSON document per record to w, gzip compressed.
func Encode(w io.Writer, region string, records []*internal.Record) error {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)

	for _, r := range records {
		if err := enc.Encode(Document(r, region)); err != nil {
			gz.Close()
			return err
		}
	}
	return gz.Close()
}

// Document returns the archived form of r: the upstream document with the
// region added and the status timestamps rendered as UTC strings.
func Document(r *internal.Record, region string) map[string]any {
	doc := r.Map()
	doc[FieldRegion] = region

	status := make(map[string]any)
	if s, ok := doc[FieldStatus].(map[string]any); ok {
		for k, v := range s {
			status[k] = v
		}
	}
	status[FieldSubmissionDateTime] = FormatTimestamp(r.SubmissionTime)
	if r.CompletionTime != nil {
		status[FieldCompletionDateTime] = FormatTimestamp(*r.CompletionTime)
	}
	doc[FieldStatus] = status

	return doc
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
