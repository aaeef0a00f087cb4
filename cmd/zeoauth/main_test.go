package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/zeoauth/internal/testutil"
)

func Test_run(t *testing.T) {
	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	emptyEnv := func(string) string { return "" }
	getwd := func() (string, error) { return t.TempDir(), nil }

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, emptyEnv, getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--jwt-secret", "0123456789abcdef",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with redis backend", func(t *testing.T) {
		mr := miniredis.RunT(t)
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		t.Cleanup(cancel)

		err := run(ctx, emptyEnv, getwd, []string{
			"--address", listenAddr,
			"--jwt-secret", "0123456789abcdef",
			"--redis", "redis://" + mr.Addr() + "/0",
		})

		require.NoError(t, err)
	})

	t.Run("postgres backend", func(t *testing.T) {
		pg := testutil.StartPostgresContainer(t)
		t.Cleanup(pg.Terminate)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		t.Cleanup(cancel)

		err := run(ctx, emptyEnv, getwd, []string{
			"--address", listenAddr,
			"--jwt-secret", "0123456789abcdef",
			"--database", pg.DSN,
		})

		require.NoError(t, err)
	})

	t.Run("fail without secret", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		t.Cleanup(cancel)

		err := run(ctx, emptyEnv, getwd, []string{"--address", listenAddr})

		require.Error(t, err, "secret is required")
	})

	t.Run("fail on unreachable redis", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, emptyEnv, getwd, []string{
			"--address", listenAddr,
			"--jwt-secret", "0123456789abcdef",
			"--redis", "redis://127.0.0.1:1/0",
		})

		require.Error(t, err)
	})

	t.Run("fail on unknown log format", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		t.Cleanup(cancel)

		err := run(ctx, emptyEnv, getwd, []string{"--address", listenAddr, "--log-format", "yaml", "--jwt-secret", "0123456789abcdef"})

		require.ErrorContains(t, err, "log format")
	})
}
