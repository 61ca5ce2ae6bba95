package asynqadp

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/findajob/internal/domain"
)

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := New("not-a-redis-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestEnqueuePipeline(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	q, err := New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	id, err := q.EnqueuePipeline(context.Background(), domain.PipelineTaskPayload{
		RunID:   "run-1",
		Request: testRequest(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
