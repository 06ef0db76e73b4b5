package queryhistory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"

	"github.com/turbolytics/historian/internal"
)

var ErrMissingSubmissionTime = errors.New("query execution has no submission time")

// NewRecord converts an Athena query execution into a Record. The full
// execution is kept in the record's document under Athena's field names.
func NewRecord(qe *athena.QueryExecution) (*internal.Record, error) {
	id := aws.StringValue(qe.QueryExecutionId)
	if qe.Status == nil || qe.Status.SubmissionDateTime == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSubmissionTime, id)
	}

	bs, err := json.Marshal(qe)
	if err != nil {
		return nil, fmt.Errorf("encoding query execution %s: %w", id, err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(bs, &fields); err != nil {
		return nil, fmt.Errorf("decoding query execution %s: %w", id, err)
	}

	return internal.NewRecord(
		id,
		aws.TimeValue(qe.Status.SubmissionDateTime),
		qe.Status.CompletionDateTime,
		fields,
	), nil
}
