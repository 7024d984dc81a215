package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestIndexWritesCounter(t *testing.T) {
	before := testutil.ToFloat64(IndexWrites.WithLabelValues("add", ResultSuccess))
	IndexWrites.WithLabelValues("add", Result(nil)).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(IndexWrites.WithLabelValues("add", ResultSuccess)))
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(nil))
	assert.Equal(t, ResultError, Result(errors.New("boom")))
}
