package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "file:// URI is converted to local path",
			uri:  "file:///srv/corpus/regulations.jsonl",
			want: "/srv/corpus/regulations.jsonl",
		},
		{
			name: "file:// URI with spaces",
			uri:  "file:///srv/my corpus/guides.json",
			want: "/srv/my corpus/guides.json",
		},
		{
			name: "bare path passes through unchanged",
			uri:  "/srv/corpus/regulations.jsonl",
			want: "/srv/corpus/regulations.jsonl",
		},
		{
			name: "relative path passes through unchanged",
			uri:  "corpus/guides",
			want: "corpus/guides",
		},
		{
			name: "empty string",
			uri:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(tt.uri))
		})
	}
}
