package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "empty",
			script: "",
			want:   nil,
		},
		{
			name:   "single statement",
			script: "INSERT INTO items (name) VALUES ('a');",
			want:   []string{"INSERT INTO items (name) VALUES ('a');"},
		},
		{
			name:   "multiple statements",
			script: "INSERT INTO items (name) VALUES ('a');\nINSERT INTO items (name) VALUES ('b');",
			want: []string{
				"INSERT INTO items (name) VALUES ('a');",
				"INSERT INTO items (name) VALUES ('b');",
			},
		},
		{
			name:   "comments and blank lines dropped",
			script: "-- seed data\n\nINSERT INTO items (name) VALUES ('a');\n",
			want:   []string{"INSERT INTO items (name) VALUES ('a');"},
		},
		{
			name:   "multi-line statement",
			script: "CREATE TABLE items (\n    id INTEGER\n);",
			want:   []string{"CREATE TABLE items (\n    id INTEGER\n);"},
		},
		{
			name:   "trailing statement without semicolon",
			script: "INSERT INTO items (name) VALUES ('a')",
			want:   []string{"INSERT INTO items (name) VALUES ('a')"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}

func TestEnginesListsRegistered(t *testing.T) {
	// The engine implementations register themselves on import; this
	// package alone has none.
	Register("fake-for-test", func(Options) (Adapter, error) { return nil, nil })
	assert.Contains(t, Engines(), "fake-for-test")
}

func TestNewUnknownEngine(t *testing.T) {
	_, err := New("no-such-engine", Options{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine")
}
