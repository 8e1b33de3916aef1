package mlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"bogus", 0, true},
	}

	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.wantErr {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestGoLoggerIsLevelEnabled(t *testing.T) {
	l := NewGoLogger(WarnLevel)

	assert.True(t, l.IsLevelEnabled(ErrorLevel))
	assert.True(t, l.IsLevelEnabled(WarnLevel))
	assert.False(t, l.IsLevelEnabled(InfoLevel))
	assert.False(t, l.IsLevelEnabled(DebugLevel))
}

func TestGoLoggerWithFieldsPreservesLevel(t *testing.T) {
	l := NewGoLogger(DebugLevel)
	child := l.WithFields("request_id", "abc")

	goChild, ok := child.(*GoLogger)
	require.True(t, ok)
	assert.Equal(t, DebugLevel, goChild.Level)
}

func TestContextWithLoggerRoundTrip(t *testing.T) {
	l := NewGoLogger(InfoLevel)
	ctx := ContextWithLogger(context.Background(), l)

	got := NewLoggerFromContext(ctx)
	assert.Same(t, Logger(l), got)
}

func TestNewLoggerFromContextFallsBackToNoneLogger(t *testing.T) {
	got := NewLoggerFromContext(context.Background())

	_, ok := got.(*NoneLogger)
	assert.True(t, ok)
}

func TestNoneLoggerSatisfiesLoggerInterface(t *testing.T) {
	var l Logger = &NoneLogger{}

	l.Info("x")
	l.Errorf("%s", "y")
	assert.NoError(t, l.Sync())
	assert.Same(t, l, l.WithFields("a", "b"))
}
