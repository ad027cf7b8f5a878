package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/rpggio/rollcall/internal/domain/stats"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-3-flash-preview"

const promptTemplate = "Analyze these student statistics: Total: %d, Boys: %d, Girls: %d. " +
	"Provide a short educational insight and one recommendation based on these demographics."

// GenAIGenerator asks a Gemini model for an insight.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator creates a generator. apiKey is required.
func NewGenAIGenerator(ctx context.Context, apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInsightService)
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GenAIGenerator{client: client, model: model}, nil
}

// Name returns the generator name.
func (g *GenAIGenerator) Name() string {
	return "genai:" + g.model
}

// Generate implements Generator.
func (g *GenAIGenerator) Generate(ctx context.Context, rec stats.Record) (*Insight, error) {
	prompt := fmt.Sprintf(promptTemplate, rec.Total, rec.Boys, rec.Girls)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsightService, err)
	}

	return parseInsight(resp.Text())
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {
			Type:        genai.TypeString,
			Description: "A professional one-sentence summary.",
		},
		"recommendation": {
			Type:        genai.TypeString,
			Description: "A professional recommendation.",
		},
	},
	Required: []string{"summary", "recommendation"},
}

func parseInsight(text string) (*Insight, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInsightService)
	}
	var out Insight
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrInsightService, err)
	}
	if out.Summary == "" && out.Recommendation == "" {
		return nil, fmt.Errorf("%w: empty insight", ErrInsightService)
	}
	return &out, nil
}
