package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Generator is the completion service the orchestrator talks to.
type Generator interface {
	Generate(ctx context.Context, mode Mode, message string, images []string, tc TurnContext) (*Reply, error)
}

// GeminiClient wraps the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

// Generate runs one mode-tagged completion and parses the structured reply.
// Any transport, timeout or parse failure comes back wrapped in ErrUpstream;
// the caller applies no mutations in that case.
func (c *GeminiClient) Generate(ctx context.Context, mode Mode, message string, images []string, tc TurnContext) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parts := []*genai.Part{genai.NewPartFromText(BuildTurnPrompt(mode, message, tc))}
	for _, img := range images {
		data, mime, err := decodeImage(img)
		if err != nil {
			// untrusted client input, skip the attachment rather than fail the turn
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(mode), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(float32(0.7)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return ParseReply(resp.Text())
}

// Classify implements the intent classifier over the same backend. It never
// returns an error: on any failure the caller gets the safe default.
func (c *GeminiClient) Classify(ctx context.Context, message string) Intent {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(message),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(classifierSystem, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr(float32(0)),
		})
	if err != nil {
		return DefaultIntent()
	}

	var out struct {
		Mode        string `json:"mode"`
		IsEmotional bool   `json:"isEmotional"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text())), &out); err != nil {
		return DefaultIntent()
	}
	if out.Mode != IntentBreakdown {
		out.Mode = IntentNormal
	}
	return Intent{Mode: out.Mode, IsEmotional: out.IsEmotional}
}

// decodeImage accepts a data URL or bare base64 and returns raw bytes plus a
// mime type.
func decodeImage(s string) ([]byte, string, error) {
	mime := "image/jpeg"
	if strings.HasPrefix(s, "data:") {
		rest := strings.TrimPrefix(s, "data:")
		semi := strings.Index(rest, ";base64,")
		if semi < 0 {
			return nil, "", fmt.Errorf("unsupported data url")
		}
		mime = rest[:semi]
		s = rest[semi+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}
