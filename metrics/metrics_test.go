package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	PipeBytes.WithLabelValues("written").Add(3)
	n, err := testutil.GatherAndCount(reg, "aprt_pipe_bytes_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
