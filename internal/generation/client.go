// Package generation holds the clients for the external generation
// collaborators: a chat-completions text service, a prompt-to-image service,
// and the social profile lookup. Each is consumed strictly at its interface
// boundary; prompt content is owned by the caller.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

// Message is one chat-completions message. Content is either a plain string
// or a list of text/image parts.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// TextPart and ImagePart build multi-part user messages.
func TextPart(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func ImagePart(url string) map[string]any {
	return map[string]any{"type": "image_url", "image_url": map[string]string{"url": url}}
}

// TextClient generates text from chat messages. Implementations return the
// assistant message content verbatim.
type TextClient interface {
	GenerateText(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// ImageClient generates an image from a prompt plus a reference image and
// returns a URL where the result can be fetched.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt, referenceURL string) (string, error)
}

// Profile is the social identity behind a fid.
type Profile struct {
	FID         string
	Username    string
	DisplayName string
	Bio         string
	PFPURL      string
	Followers   int64
}

// ProfileClient resolves a fid to a Profile.
type ProfileClient interface {
	GetProfile(ctx context.Context, fid string) (Profile, error)
}

// HTTPTextClient calls an OpenAI-compatible chat completions endpoint.
type HTTPTextClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	log        *logger.Logger
}

// NewHTTPTextClient constructs a text client for baseURL (the API root, e.g.
// https://api.venice.ai/api/v1).
func NewHTTPTextClient(httpClient *http.Client, baseURL, apiKey, model string, log *logger.Logger) (*HTTPTextClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("text generation endpoint required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("textgen")
	}
	return &HTTPTextClient{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey, model: model, log: log}, nil
}

func (c *HTTPTextClient) GenerateText(ctx context.Context, messages []Message, temperature float64) (string, error) {
	payload := map[string]any{
		"messages":    messages,
		"temperature": temperature,
		"model":       c.model,
		"max_tokens":  5000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion status %d", resp.StatusCode)
	}

	content := gjson.GetBytes(respBody, "choices.0.message.content").String()
	if content == "" {
		return "", fmt.Errorf("empty completion content")
	}
	return content, nil
}

// HTTPImageClient calls a prediction-style image generation endpoint that
// accepts a prompt plus reference image and responds with an output URL.
type HTTPImageClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	log        *logger.Logger
}

// NewHTTPImageClient constructs an image client for the prediction endpoint.
func NewHTTPImageClient(httpClient *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPImageClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("image generation endpoint required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("imagegen")
	}
	return &HTTPImageClient{httpClient: httpClient, endpoint: endpoint, apiKey: apiKey, log: log}, nil
}

func (c *HTTPImageClient) GenerateImage(ctx context.Context, prompt, referenceURL string) (string, error) {
	payload := map[string]any{
		"input": map[string]any{
			"prompt":        prompt,
			"resolution":    "2K",
			"image_input":   []string{referenceURL},
			"aspect_ratio":  "1:1",
			"output_format": "png",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("prediction request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read prediction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("prediction status %d", resp.StatusCode)
	}

	// Synchronous predictions return output as a URL string or a list of
	// URLs; take the first either way.
	result := gjson.GetBytes(respBody, "output")
	url := result.String()
	if result.IsArray() {
		url = result.Get("0").String()
	}
	if url == "" {
		return "", fmt.Errorf("no output url in prediction response")
	}
	return url, nil
}

// HTTPProfileClient resolves fids against a user lookup API.
type HTTPProfileClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewHTTPProfileClient constructs a profile client. endpoint is queried as
// {endpoint}?fids={fid} with the api key in the x-api-key header.
func NewHTTPProfileClient(httpClient *http.Client, endpoint, apiKey string) (*HTTPProfileClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("profile endpoint required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProfileClient{httpClient: httpClient, endpoint: endpoint, apiKey: apiKey}, nil
}

func (c *HTTPProfileClient) GetProfile(ctx context.Context, fid string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?fids="+fid, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("profile status %d", resp.StatusCode)
	}

	user := gjson.GetBytes(respBody, "users.0")
	if !user.Exists() {
		return Profile{}, fmt.Errorf("fid %s not found", fid)
	}
	return Profile{
		FID:         fid,
		Username:    user.Get("username").String(),
		DisplayName: user.Get("display_name").String(),
		Bio:         user.Get("profile.bio.text").String(),
		PFPURL:      user.Get("pfp_url").String(),
		Followers:   user.Get("follower_count").Int(),
	}, nil
}
