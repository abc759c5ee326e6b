package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ImageGenerateTool generates images via an OpenAI-compatible chat endpoint
// that supports image modalities (OpenRouter with a Gemini image model, and
// similar). The image is saved into the workspace and surfaced to channels
// through an [IMAGE_FILE:...] marker in the tool output.
type ImageGenerateTool struct {
	apiKey    string
	apiBase   string
	model     string
	workspace string
	client    *http.Client
}

func NewImageGenerateTool(apiKey, apiBase, model, workspace string) *ImageGenerateTool {
	if apiBase == "" {
		apiBase = "https://openrouter.ai/api/v1"
	}
	if model == "" {
		model = "google/gemini-2.5-flash-image"
	}
	return &ImageGenerateTool{
		apiKey:    apiKey,
		apiBase:   strings.TrimRight(apiBase, "/"),
		model:     model,
		workspace: workspace,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *ImageGenerateTool) Name() string { return "generate_image" }
func (t *ImageGenerateTool) Description() string {
	return "Generate an image from a text description and save it to the workspace"
}
func (t *ImageGenerateTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "Text description of the image to generate",
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *ImageGenerateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return ErrorResult("prompt is required")
	}
	if t.apiKey == "" {
		return ErrorResult("image generation is not configured (missing API key)")
	}

	imageBytes, err := t.callAPI(ctx, prompt)
	if err != nil {
		return ErrorResult(fmt.Sprintf("image generation failed: %v", err))
	}

	dir := filepath.Join(t.workspace, "images")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create images directory: %v", err))
	}
	path := filepath.Join(dir, fmt.Sprintf("generated_%d.png", time.Now().Unix()))
	if err := os.WriteFile(path, imageBytes, 0644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to save image: %v", err))
	}

	return NewResult(fmt.Sprintf("Image generated. [IMAGE_FILE:%s]", path)).WithMedia(path)
}

func (t *ImageGenerateTool) callAPI(ctx context.Context, prompt string) ([]byte, error) {
	body := map[string]interface{}{
		"model": t.model,
		"messages": []map[string]interface{}{
			{"role": "user", "content": prompt},
		},
		"modalities": []string{"image", "text"},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	return parseImageResponse(respBody)
}

// parseImageResponse extracts base64 image data from the chat response.
// Looks in choices[0].message.images (OpenRouter) and multipart content.
func parseImageResponse(respBody []byte) ([]byte, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content interface{} `json:"content"`
				Images  []struct {
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"images"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	msg := resp.Choices[0].Message
	for _, img := range msg.Images {
		if imageBytes, err := decodeDataURL(img.ImageURL.URL); err == nil {
			return imageBytes, nil
		}
	}
	if parts, ok := msg.Content.([]interface{}); ok {
		for _, part := range parts {
			m, ok := part.(map[string]interface{})
			if !ok || m["type"] != "image_url" {
				continue
			}
			if imgURL, ok := m["image_url"].(map[string]interface{}); ok {
				if u, ok := imgURL["url"].(string); ok {
					if imageBytes, err := decodeDataURL(u); err == nil {
						return imageBytes, nil
					}
				}
			}
		}
	}
	return nil, fmt.Errorf("no image data found in response")
}

// decodeDataURL decodes a data:image/...;base64,... URL into raw bytes.
func decodeDataURL(dataURL string) ([]byte, error) {
	idx := strings.Index(dataURL, ";base64,")
	if idx < 0 {
		return nil, fmt.Errorf("not a base64 data URL")
	}
	return base64.StdEncoding.DecodeString(dataURL[idx+8:])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
