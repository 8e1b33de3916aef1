package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allankoechke/mantis/internal/mlog"
)

func TestSanitizeFilename(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "spaces become underscores", in: "my file.txt", want: "my_file.txt"},
		{name: "tabs become underscores", in: "a\tb.txt", want: "a_b.txt"},
		{name: "commas are stripped", in: "a,b,c.txt", want: "abc.txt"},
		{name: "already clean", in: "report.pdf", want: "report.pdf"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeFilename(tc.in))
		})
	}
}

func TestWriteThenRemove(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, &mlog.NoneLogger{})

	name, err := store.Write("docs", "a b.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "a_b.txt", name)

	full := filepath.Join(dir, "files", "docs", name)
	contents, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(contents))

	store.Remove("docs", name)
	_, err = os.Stat(full)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, &mlog.NoneLogger{})

	store.Remove("docs", "does-not-exist.txt")
}

func TestDiff(t *testing.T) {
	testCases := []struct {
		name string
		old  []string
		new  []string
		want []string
	}{
		{name: "drop one of three", old: []string{"A", "B", "C"}, new: []string{"A", "C"}, want: []string{"B"}},
		{name: "clear all", old: []string{"A", "B"}, new: nil, want: []string{"A", "B"}},
		{name: "no change", old: []string{"A"}, new: []string{"A"}, want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Diff(tc.old, tc.new))
		})
	}
}
