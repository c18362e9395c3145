package vision

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OllamaClient calls a local Ollama server through /api/chat.
type OllamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

// ollamaResponse is one chat response, or one line of a streamed one.
type ollamaResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`
	EvalCount  int           `json:"eval_count,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func NewOllamaClient(endpoint, model string) *OllamaClient {
	return &OllamaClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

func (c *OllamaClient) buildRequest(req Request, stream bool) (ollamaRequest, error) {
	images := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		b64, err := img.Base64()
		if err != nil {
			return ollamaRequest{}, fmt.Errorf("ollama needs inline images: %w", err)
		}
		images = append(images, b64)
	}
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.User, Images: images})

	body := ollamaRequest{Model: c.model, Messages: messages, Stream: stream}
	if req.MaxTokens > 0 {
		body.Options = map[string]any{"num_predict": req.MaxTokens}
	}
	return body, nil
}

func (c *OllamaClient) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := c.buildRequest(req, stream)
	if err != nil {
		return nil, err
	}
	reqData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(reqData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError("ollama", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError("ollama", resp)
	}
	return resp, nil
}

func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, transportError("ollama", fmt.Errorf("failed to decode response: %w", err))
	}
	if result.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", result.Error)
	}
	return checkFinish(&Response{
		Text:         result.Message.Content,
		FinishReason: result.DoneReason,
		Model:        result.Model,
	})
}

func (c *OllamaClient) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{}
	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("ollama error: %s", chunk.Error)
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if delta := chunk.Message.Content; delta != "" {
			text.WriteString(delta)
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					return nil, err
				}
			}
		}
		if chunk.Done {
			out.FinishReason = chunk.DoneReason
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, transportError("ollama", err)
	}
	out.Text = text.String()
	return checkFinish(out)
}

func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
