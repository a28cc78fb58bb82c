// Package llm asks a language model for the material bucket of parts-list
// rows whose material columns could not be parsed.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"bomsort/internal/bom"
)

const DefaultModel = "claude-sonnet-4-5-20250929"

const maxDescriptionChars = 500

const systemPrompt = `You classify sheet-metal parts from a bill of materials.
Given a part identifier and the free text found on its row, name the plate material and its thickness in millimetres.
The material must be a Chinese plate material name ending in 板, for example 铝板, 钢板, 不锈钢板 or 镀锌板.
Reply with one JSON object and nothing else:
{"material": "<name ending in 板>", "thickness": "<decimal number>", "confidence": <0..1>}
If the text does not identify a plate material and thickness, reply {"material": "", "thickness": "", "confidence": 0}.`

// Usage is the token accounting of one completion.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// Guesser implements classify.MaterialGuesser with Anthropic's messages API.
type Guesser struct {
	client     anthropic.Client
	model      string
	confidence float64
	logger     *zap.Logger
	usage      Usage
}

// New returns a Guesser. Suggestions below minConfidence are discarded.
func New(apiKey, model string, minConfidence float64, logger *zap.Logger, opts ...option.RequestOption) *Guesser {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Guesser{
		client:     anthropic.NewClient(opts...),
		model:      model,
		confidence: minConfidence,
		logger:     logger,
	}
}

// Usage returns the tokens spent so far.
func (g *Guesser) Usage() Usage { return g.usage }

type suggestion struct {
	Material   string  `json:"material"`
	Thickness  string  `json:"thickness"`
	Confidence float64 `json:"confidence"`
}

// GuessMaterial asks the model for part's material. The second result is
// false when the model declines, answers with low confidence, or names
// something that does not read as a plate material.
func (g *Guesser) GuessMaterial(ctx context.Context, part, description string) (bom.MaterialSpec, bool, error) {
	if r := []rune(description); len(r) > maxDescriptionChars {
		description = string(r[:maxDescriptionChars])
	}
	prompt := fmt.Sprintf("Part: %s\nRow text: %s", part, description)

	text, usage, err := g.complete(ctx, prompt)
	g.usage.Add(usage)
	if err != nil {
		return bom.MaterialSpec{}, false, err
	}
	s, err := parseSuggestion(text)
	if err != nil {
		return bom.MaterialSpec{}, false, err
	}
	if s.Confidence < g.confidence {
		g.logger.Debug("material suggestion below threshold",
			zap.String("part", part), zap.Float64("confidence", s.Confidence))
		return bom.MaterialSpec{}, false, nil
	}
	spec, ok := bom.ParseMaterial(s.Material + " T=" + s.Thickness)
	if !ok || spec.Material != strings.TrimSpace(s.Material) {
		return bom.MaterialSpec{}, false, nil
	}
	g.logger.Info("material suggested",
		zap.String("part", part),
		zap.String("material", spec.Material),
		zap.String("thickness", spec.Thickness),
		zap.Float64("confidence", s.Confidence))
	return spec, true, nil
}

func (g *Guesser) complete(ctx context.Context, userPrompt string) (string, Usage, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("anthropic: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			g.logger.Debug("anthropic response",
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens))
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

func parseSuggestion(responseText string) (suggestion, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var s suggestion
	if err := json.Unmarshal([]byte(responseText), &s); err != nil {
		return s, fmt.Errorf("parsing material suggestion: %w (response: %s)", err, responseText)
	}
	s.Material = strings.TrimSpace(s.Material)
	s.Thickness = strings.TrimSpace(s.Thickness)
	return s, nil
}
