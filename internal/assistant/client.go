// Package assistant bridges free-text or recorded-audio input to a remote
// generative-language service and translates its structured tool calls
// into store mutations.
package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Tool call names the service may emit.
const (
	CallAddTransaction = "add_transaction"
	CallUpdateBalance  = "update_balance"
)

var ErrEmptyInput = errors.New("empty input")

// Client is a thin HTTP adapter over the generateContent endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	categories []string
	httpClient *http.Client
}

type ClientConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Categories []string
	Timeout    time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		categories: cfg.Categories,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FunctionCall is one structured call returned by the service.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// Reply carries the free-text answer (possibly empty) and the ordered
// tool calls from one exchange.
type Reply struct {
	Text  string
	Calls []FunctionCall
}

// Wire types for the generateContent request/response.
type (
	genRequest struct {
		SystemInstruction *genContent `json:"system_instruction,omitempty"`
		Contents          []genContent `json:"contents"`
		Tools             []genTool    `json:"tools,omitempty"`
	}

	genContent struct {
		Role  string    `json:"role,omitempty"`
		Parts []genPart `json:"parts"`
	}

	genPart struct {
		Text         string           `json:"text,omitempty"`
		InlineData   *genInlineData   `json:"inline_data,omitempty"`
		FunctionCall *genFunctionCall `json:"functionCall,omitempty"`
	}

	genInlineData struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	}

	genFunctionCall struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	}

	genTool struct {
		FunctionDeclarations []genFunctionDecl `json:"function_declarations"`
	}

	genFunctionDecl struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	}

	genResponse struct {
		Candidates []struct {
			Content genContent `json:"content"`
		} `json:"candidates"`
	}
)

// Send submits text and/or an audio payload along with the fixed system
// instruction and tool schema, and decodes the reply.
func (c *Client) Send(ctx context.Context, text string, audio []byte, audioMIME string) (*Reply, error) {
	if strings.TrimSpace(text) == "" && len(audio) == 0 {
		return nil, ErrEmptyInput
	}
	if c.apiKey == "" {
		return nil, errors.New("assistant API key not configured")
	}

	var parts []genPart
	if strings.TrimSpace(text) != "" {
		parts = append(parts, genPart{Text: text})
	}
	if len(audio) > 0 {
		parts = append(parts, genPart{InlineData: &genInlineData{
			MIMEType: audioMIME,
			Data:     base64.StdEncoding.EncodeToString(audio),
		}})
	}

	payload := genRequest{
		SystemInstruction: &genContent{Parts: []genPart{{Text: systemInstruction(c.categories)}}},
		Contents:          []genContent{{Role: "user", Parts: parts}},
		Tools:             []genTool{{FunctionDeclarations: toolDeclarations()}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("assistant service status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded genResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return replyFrom(decoded)
}

func replyFrom(resp genResponse) (*Reply, error) {
	if len(resp.Candidates) == 0 {
		return nil, errors.New("assistant returned no candidates")
	}

	reply := &Reply{}
	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
		if part.FunctionCall != nil {
			args := map[string]any{}
			if len(part.FunctionCall.Args) > 0 {
				if err := json.Unmarshal(part.FunctionCall.Args, &args); err != nil {
					return nil, fmt.Errorf("decode args for %s: %w", part.FunctionCall.Name, err)
				}
			}
			reply.Calls = append(reply.Calls, FunctionCall{
				Name: part.FunctionCall.Name,
				Args: args,
			})
		}
	}
	reply.Text = strings.Join(texts, "\n")
	return reply, nil
}
