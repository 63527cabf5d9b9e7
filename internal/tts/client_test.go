package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcast/internal/apperr"
)

func TestSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "onyx", req.Voice)
		assert.Equal(t, "tts-1", req.Model)
		assert.Equal(t, "mp3", req.ResponseFormat)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3" + req.Input))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	audio, err := client.Synthesize(context.Background(), "Hello there.", "onyx")
	require.NoError(t, err)
	assert.Equal(t, "ID3Hello there.", string(audio))
}

func TestSynthesizeLongTextIsChunked(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len([]rune(req.Input)), MaxInputChars)
		_, _ = w.Write([]byte{0xFF, 0xFB})
	}))
	defer server.Close()

	text := strings.Repeat("This is a sentence. ", 500)
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	audio, err := client.Synthesize(context.Background(), text, "alloy")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, audio, 6)
}

func TestSynthesizeServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL},
		WithRetryMaxAttempts(2),
		WithSleeper(func(time.Duration) {}))
	_, err := client.Synthesize(context.Background(), "hi", "alloy")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, KeySynthesisFailed, apperr.KeyOf(err))
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitText("short", 10))
	assert.Equal(t, []string{"One two.", "Three four."}, SplitText("One two. Three four.", 12))
	assert.Equal(t, []string{"abcde", "fghij"}, SplitText("abcdefghij", 5))
}
