package utils

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerDefaultArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(buf, "debug")
	ctx := WithDefaultArgs(context.Background(), "merge", "m1")
	inner := WithDefaultArgs(ctx, "attempt", 2)
	log.InfoCtx(inner, "merging", "heads", 3)
	log.DebugCtx(ctx, "done")
	log.Warn("plain", "n", 1)

	out := buf.String()
	assert.Contains(t, out, "[otdag] merging")
	assert.Contains(t, out, "heads=3")
	assert.Contains(t, out, "merge=m1")
	assert.Contains(t, out, "attempt=2")
	assert.Contains(t, out, "level=WARN")
	// the outer context must not see args added to a derived one
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("attempt=")))
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("merge=m1")))
}

func TestLoggerLevel(t *testing.T) {
	for level, want := range map[string][]string{
		"DEBUG":    {"d", "i", "w", "e"},
		"warning":  {"w", "e"},
		"error":    {"e"},
		"whatever": {"i", "w", "e"},
		"off":      nil,
	} {
		buf := &bytes.Buffer{}
		log := NewLogger(buf, level)
		log.Debug("d")
		log.Info("i")
		log.Warn("w")
		log.Error("e")
		var got []string
		for _, msg := range []string{"d", "i", "w", "e"} {
			if bytes.Contains(buf.Bytes(), []byte(`msg="[otdag] `+msg+`"`)) {
				got = append(got, msg)
			}
		}
		assert.Equal(t, want, got, level)
	}
}
