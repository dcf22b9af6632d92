package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"claims_backend/internal/aitasks"

	"google.golang.org/genai"
)

// GeminiModel assesses damage with a Gemini multimodal model.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini API client.
func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

func (g *GeminiModel) Assess(ctx context.Context, images []Image, in aitasks.Input) (DamageAssessment, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: img.MIMEType,
				Data:     img.Data,
			},
		})
	}
	parts = append(parts, genai.NewPartFromText(buildDamagePrompt(in, len(images))))

	temperature := float32(0.1)
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: parts}},
		&genai.GenerateContentConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return DamageAssessment{}, fmt.Errorf("gemini damage assessment: %w", err)
	}

	assessment, err := parseAssessment(resp.Text())
	if err != nil {
		return DamageAssessment{}, err
	}
	assessment.Model = g.model
	return assessment, nil
}

func buildDamagePrompt(in aitasks.Input, imageCount int) string {
	crop := in.CropType
	if crop == "" {
		crop = "unspecified crop"
	}
	return fmt.Sprintf(`You are an agricultural insurance loss assessor.
Claim %s reports %s damage to %s on %s. %d photo(s) are attached.
Read any visible text (field signs, documents, labels) and estimate the share of the crop that is damaged.
Respond with JSON only:
{"extractedText": string, "damageObserved": string, "damagePercent": number between 0 and 100, "confidence": number between 0 and 1}`,
		in.ClaimNumber, in.IncidentType, crop, in.IncidentDate.Format("2006-01-02"), imageCount)
}

func parseAssessment(text string) (DamageAssessment, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return DamageAssessment{}, fmt.Errorf("empty damage assessment")
	}

	var out DamageAssessment
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return DamageAssessment{}, fmt.Errorf("decode damage assessment: %w", err)
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}

var _ DamageModel = (*GeminiModel)(nil)
