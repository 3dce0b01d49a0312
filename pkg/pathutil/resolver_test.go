package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	p := New(Config{DataRoot: "/data"})

	assert.Equal(t, "/data", p.GetDataRoot())
	assert.Equal(t, filepath.Join("/data", ".sync", "history.db"), p.GetDatabasePath())
	assert.Equal(t, filepath.Join("/data", "beancount"), p.GetMirrorRoot())

	p = New(Config{DataRoot: "/data", DatabasePath: "/db/h.db", MirrorRoot: "/mirror"})
	assert.Equal(t, "/db/h.db", p.GetDatabasePath())
	assert.Equal(t, "/mirror", p.GetMirrorRoot())
}

func TestGetMonthFilePath(t *testing.T) {
	p := New(Config{MirrorRoot: "/mirror"})

	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"2024-01", filepath.Join("/mirror", "2024", "2024-01.beancount"), false},
		{"2024-12", filepath.Join("/mirror", "2024", "2024-12.beancount"), false},
		{"2024-1", "", true},
		{"24-01", "", true},
		{"2024-01-15", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := p.GetMonthFilePath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEnsureParentDir(t *testing.T) {
	root := t.TempDir()
	p := New(Config{DataRoot: root})

	file := filepath.Join(root, "a", "b", "c.txt")
	assert.False(t, p.FileExists(filepath.Dir(file)))
	require.NoError(t, p.EnsureParentDir(file))
	assert.True(t, p.FileExists(filepath.Dir(file)))
}
