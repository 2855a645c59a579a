package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/drpcorg/otdag"
	"github.com/drpcorg/otdag/dag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newREPL(t *testing.T, repo dag.Repository[dag.ID, Diff]) (*REPL, *bytes.Buffer) {
	out := &bytes.Buffer{}
	repl, err := NewREPL(context.Background(), repo, otdag.Options{}, out)
	require.NoError(t, err)
	return repl, out
}

func run(t *testing.T, repl *REPL, lines ...string) {
	for _, line := range lines {
		require.NoError(t, repl.Execute(context.Background(), line), line)
	}
}

func TestREPLTwoReplicas(t *testing.T) {
	ctx := context.Background()
	repo := dag.NewMemoryRepository[dag.ID, Diff](dag.IDSequence(1))
	r1, out1 := newREPL(t, repo)
	r2, out2 := newREPL(t, repo)

	run(t, r1, "add 5", "sync")
	run(t, r2, "set 10", "sync")
	run(t, r1, "sync")
	assert.Equal(t, int64(10), r1.state.Value)
	assert.Equal(t, int64(10), r2.state.Value)

	out1.Reset()
	run(t, r1, "heads", "verify")
	assert.Equal(t, r1.mgr.Revision().String()+"\n4 commits ok\n", out1.String())

	run(t, r2, "snapshot", "metrics")
	assert.Contains(t, out2.String(), "otdag_merge_merges{result=merged} 1")

	assert.ErrorIs(t, r1.Execute(ctx, "add x"), ErrBadArgument)
	assert.Error(t, r1.Execute(ctx, "frobnicate"))
	assert.Equal(t, io.EOF, r1.Execute(ctx, "exit"))
}

func TestREPLReset(t *testing.T) {
	repo := dag.NewMemoryRepository[dag.ID, Diff](dag.IDSequence(2))
	r, out := newREPL(t, repo)
	run(t, r, "add 3", "commit", "add 4")
	assert.Equal(t, int64(7), r.state.Value)
	run(t, r, "reset")
	assert.Equal(t, int64(0), r.state.Value)

	out.Reset()
	run(t, r, "show")
	assert.Equal(t, "0 @"+r.mgr.Revision().String()+" working [] pending 0\n", out.String())
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "otrepl.yaml"),
		[]byte("dir: /var/lib/otrepl\nmerge_attempts: 3\n"), 0o644))
	t.Setenv("OTREPL_SRC", "7")
	t.Setenv("OTREPL_REDIS_ADDR", "localhost:6380")

	cfg, err := initConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/otrepl", cfg.Dir)
	assert.Equal(t, 3, cfg.MergeAttempts)
	assert.Equal(t, uint64(7), cfg.Src)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, "otrepl", cfg.Redis.Namespace)
	assert.Equal(t, 4096, cfg.CacheSize)
}
