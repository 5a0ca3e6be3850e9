package selfcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPasses(t *testing.T) {
	results, err := Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, len(checks))
	for _, r := range results {
		assert.True(t, r.OK(), r.String())
	}
	assert.True(t, Passed(results))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "OK: x", Result{Name: "x"}.String())
	assert.Equal(t, "FAIL: x: boom", Result{Name: "x", Err: errors.New("boom")}.String())
	assert.False(t, Passed([]Result{{Name: "a"}, {Name: "b", Err: errors.New("no")}}))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
