package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_Read(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(releasePage))
	}))
	defer server.Close()

	r := NewReader(NewFetcher(WithPrivateHosts()), NewConverter(), 0)
	text, err := r.Read(context.Background(), server.URL, "#changelog")
	require.NoError(t, err)

	assert.Contains(t, text, "Changelog")
	assert.NotContains(t, text, "streaming")
}

func TestReader_EmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("   "))
	}))
	defer server.Close()

	r := NewReader(NewFetcher(WithPrivateHosts()), NewConverter(), 0)
	_, err := r.Read(context.Background(), server.URL, "")
	assert.ErrorContains(t, err, "no content")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		maxChars int
		want     string
	}{
		{
			name:     "short content untouched",
			content:  "hello",
			maxChars: 100,
			want:     "hello",
		},
		{
			name:     "zero limit untouched",
			content:  "hello",
			maxChars: 0,
			want:     "hello",
		},
		{
			name:     "paragraph boundary",
			content:  "first paragraph\n\nsecond paragraph",
			maxChars: 22,
			want:     "first paragraph" + truncationMarker,
		},
		{
			name:     "hard cut when boundary is early",
			content:  "a\n\nbcdefghijklmnop",
			maxChars: 10,
			want:     "a\n\nbcdefg" + truncationMarker,
		},
		{
			name:     "does not split a rune",
			content:  "ééééé",
			maxChars: 3,
			want:     "é" + truncationMarker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.content, tt.maxChars)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasSuffix(got, truncationMarker) || got == tt.content)
		})
	}
}
