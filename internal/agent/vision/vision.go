// Package vision talks to multimodal chat models.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cieplik206/dokumenty/internal/apperr"
)

// Image is one image part of a request. Either Data or URL is set; URL may
// itself be a data URI.
type Image struct {
	MediaType string
	Data      []byte
	URL       string
}

// DataURI returns the image as a URL the chat API accepts.
func (i Image) DataURI() string {
	if i.URL != "" {
		return i.URL
	}
	return "data:" + i.MediaType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Base64 returns the raw base64 payload for APIs that take bare images.
func (i Image) Base64() (string, error) {
	if len(i.Data) > 0 {
		return base64.StdEncoding.EncodeToString(i.Data), nil
	}
	if strings.HasPrefix(i.URL, "data:") {
		if _, payload, ok := strings.Cut(i.URL, ";base64,"); ok {
			return payload, nil
		}
	}
	return "", fmt.Errorf("image is not inline")
}

type Request struct {
	System    string
	User      string
	Images    []Image
	MaxTokens int
}

type Response struct {
	Text         string
	FinishReason string
	Model        string
}

// DeltaFunc receives streamed text. Returning an error aborts the stream.
type DeltaFunc func(delta string) error

// Client is a multimodal completion endpoint. Both calls return an error
// wrapping apperr.ErrOutputTruncated when the output token limit was hit.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error)
}

func checkFinish(resp *Response) (*Response, error) {
	if resp.FinishReason == "length" {
		return nil, apperr.Wrap(apperr.ErrOutputTruncated, "vision", "model hit max tokens", nil)
	}
	return resp, nil
}

func transportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.ErrTimeout, provider, "inference timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.Wrap(apperr.ErrTransient, provider, "request failed", err)
}

func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return apperr.Wrap(apperr.ErrTransient, provider, msg, nil)
	}
	return fmt.Errorf("%s: %s", provider, msg)
}
