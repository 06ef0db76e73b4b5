package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordMapIsCopy(t *testing.T) {
	r := NewRecord("q1", time.Now(), nil, map[string]any{"QueryExecutionId": "q1"})
	m := r.Map()
	m["region"] = "us-west-2"

	assert.Equal(t, 1, r.Len())
	assert.NotContains(t, r.Map(), "region")
}
