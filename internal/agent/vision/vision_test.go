package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cieplik206/dokumenty/internal/apperr"
)

func testRequest() Request {
	return Request{
		System:    "sys",
		User:      "analyze",
		Images:    []Image{{MediaType: "image/jpeg", Data: []byte{0xff, 0xd8}}},
		MaxTokens: 4096,
	}
}

func TestOpenAICompleteSendsImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.EqualValues(t, 4096, body["max_completion_tokens"])
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		parts := messages[1].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		url := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
		assert.Equal(t, "data:image/jpeg;base64,/9g=", url)

		fmt.Fprint(w, `{"model":"gpt-test","choices":[{"message":{"content":"{\"type\":\"done\"}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(srv.URL+"/v1/", "key", "gpt-test")
	require.NoError(t, err)
	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"done"}`, resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestOpenAITruncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"type\":\"fi"},"finish_reason":"length"}]}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(srv.URL, "key", "m")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), testRequest())
	assert.ErrorIs(t, err, apperr.ErrOutputTruncated)
	assert.True(t, apperr.IsTruncation(err))
}

func TestOpenAIServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(srv.URL, "key", "m")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), testRequest())
	assert.ErrorIs(t, err, apperr.ErrTransient)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenAIStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"{\\\"type\\\":\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"\\\"done\\\"}\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(srv.URL, "key", "m")
	require.NoError(t, err)

	var deltas []string
	resp, err := c.Stream(context.Background(), testRequest(), func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"type":`, `"done"}`}, deltas)
	assert.Equal(t, `{"type":"done"}`, resp.Text)
}

func TestOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("http://x", "", "m")
	assert.Error(t, err)
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.False(t, body.Stream)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, []string{"/9g="}, body.Messages[1].Images)
		assert.EqualValues(t, 4096, body.Options["num_predict"])
		fmt.Fprint(w, `{"model":"llava","message":{"role":"assistant","content":"hi"},"done":true,"done_reason":"stop"}`)
	}))
	defer srv.Close()

	resp, err := NewOllamaClient(srv.URL, "llava").Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
}

func TestOllamaStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"b"},"done":true,"done_reason":"length"}`)
	}))
	defer srv.Close()

	var got strings.Builder
	_, err := NewOllamaClient(srv.URL, "llava").Stream(context.Background(), testRequest(), func(d string) error {
		got.WriteString(d)
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrOutputTruncated)
	assert.Equal(t, "ab", got.String())
}

func TestOllamaRejectsRemoteImages(t *testing.T) {
	req := testRequest()
	req.Images = []Image{{MediaType: "image/png", URL: "https://example.com/a.png"}}
	_, err := NewOllamaClient("http://127.0.0.1:1", "llava").Complete(context.Background(), req)
	assert.ErrorContains(t, err, "inline")
}

type blockingClient struct {
	release chan struct{}
}

func (b *blockingClient) Complete(ctx context.Context, req Request) (*Response, error) {
	<-b.release
	return &Response{Text: "ok"}, nil
}

func (b *blockingClient) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	return b.Complete(ctx, req)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	inner := &blockingClient{release: make(chan struct{})}
	pool := NewPool(inner, 1, 30*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pool.Complete(context.Background(), Request{})
	}()

	require.Eventually(t, func() bool { return len(pool.slots) == 1 }, time.Second, time.Millisecond)
	_, err := pool.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, apperr.ErrTransient)

	close(inner.release)
	<-done
	resp, err := pool.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestImageDataURI(t *testing.T) {
	assert.Equal(t, "https://x/a.png", Image{URL: "https://x/a.png"}.DataURI())
	b64, err := Image{URL: "data:image/png;base64,QUJD"}.Base64()
	require.NoError(t, err)
	assert.Equal(t, "QUJD", b64)
}
