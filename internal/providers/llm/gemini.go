package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/pkg/log"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// responseSchema constrains the model to the two allowed response shapes.
var responseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["reply", "query_user"]},
		"text": {"type": "string"}
	},
	"required": ["action", "text"]
}`)

type Gemini struct {
	baseProvider
	primaryModel  string
	fallbackModel string
}

func NewGemini(cfg *config.GeminiConfig) *Gemini {
	return &Gemini{
		baseProvider:  newBaseProvider(geminiBaseURL),
		primaryModel:  cfg.PrimaryModel,
		fallbackModel: cfg.FallbackModel,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate invokes Gemini with structured output enforced. The caller
// supplies the API key (from the rotation pool) per request.
func (g *Gemini) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	model := g.modelFor(req.Tier)

	parts := []geminiPart{{Text: req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: img.MimeType,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}

	apiReq := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		},
	}
	if req.System != "" {
		apiReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		}
	}

	headers := map[string]string{
		"x-goog-api-key": req.APIKey,
	}

	log.FromCtx(ctx).Debug().Str("model", model).Msg("calling gemini")

	resp, err := g.doRequest(ctx, http.MethodPost, "/models/"+model+":generateContent", apiReq, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("gemini api error %d (%s): %s", result.Error.Code, result.Error.Status, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini api returned status %d: %s", resp.StatusCode, string(body))
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	// Some models wrap structured output in a markdown fence anyway.
	text := strings.TrimSpace(sb.String())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text), nil
}

func (g *Gemini) modelFor(tier core.ModelTier) string {
	if tier == core.TierFallback {
		return g.fallbackModel
	}
	return g.primaryModel
}
