package insight

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

type countingWriter struct {
	calls atomic.Int32
	err   error
}

func (c *countingWriter) Commentary(_ context.Context, r valuation.Record, _ valuation.Result) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return "notes for " + r.CompanyName, nil
}

func TestCachedReusesCommentaryPerRecord(t *testing.T) {
	next := &countingWriter{}
	c := NewCached(next, 8)
	ctx := context.Background()
	r := sampleRecord()
	res := valuation.Compute(r)

	first, err := c.Commentary(ctx, r, res)
	require.NoError(t, err)
	second, err := c.Commentary(ctx, r, res)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, next.calls.Load())

	other := r
	other.CompanyName = "Difference Engines"
	out, err := c.Commentary(ctx, other, valuation.Compute(other))
	require.NoError(t, err)
	assert.Equal(t, "notes for Difference Engines", out)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestCachedDoesNotRememberFailures(t *testing.T) {
	next := &countingWriter{err: errors.New("rate limited")}
	c := NewCached(next, 8)
	r := sampleRecord()

	_, err := c.Commentary(context.Background(), r, valuation.Result{})
	require.Error(t, err)
	next.err = nil
	out, err := c.Commentary(context.Background(), r, valuation.Result{})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestCachedEvictsOldest(t *testing.T) {
	next := &countingWriter{}
	c := NewCached(next, 1)
	a, b := sampleRecord(), sampleRecord()
	b.CompanyName = "Other"

	for _, r := range []valuation.Record{a, b, a} {
		_, err := c.Commentary(context.Background(), r, valuation.Result{})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, next.calls.Load())
}
