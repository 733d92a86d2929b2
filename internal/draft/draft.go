// Package draft extracts candidate factual claims from content so reviewers
// have a checklist to verify. Drafted claims always enter the record as
// "unclear": the model proposes, a human disposes.
package draft

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veridocs/reviewctl/internal/model"
)

const systemPrompt = `You extract factual claims from technical documentation for human review.
List every verifiable factual assertion in the text: version numbers, defaults,
API names, configuration keys, behavioral statements. Do not judge whether any
claim is true. Respond with a JSON array of objects, each with a "text" field
containing one claim, and nothing else.`

// Client is the single Anthropic operation the drafter needs.
type Client interface {
	CreateMessage(ctx context.Context, model string, maxTokens int64, prompt string) (string, error)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates an Anthropic-backed Client.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, modelID string, maxTokens int64, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "draft: create message")
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

// Drafter asks a model for candidate claims.
type Drafter struct {
	client    Client
	model     string
	maxTokens int64
}

// New creates a Drafter using the given model.
func New(client Client, modelID string, maxTokens int64) *Drafter {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Drafter{client: client, model: modelID, maxTokens: maxTokens}
}

// DraftClaims extracts candidate claims from body. Every returned claim has
// status unclear and no citation; IDs are assigned when the claims are
// attached to a record.
func (d *Drafter) DraftClaims(ctx context.Context, body string) ([]model.ClaimAnnotation, error) {
	raw, err := d.client.CreateMessage(ctx, d.model, d.maxTokens, body)
	if err != nil {
		return nil, err
	}

	var items []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &items); err != nil {
		return nil, eris.Wrap(err, "draft: parse claims")
	}

	var out []model.ClaimAnnotation
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		if text == "" {
			continue
		}
		out = append(out, model.ClaimAnnotation{
			Text:   text,
			Status: model.ClaimUnclear,
		})
	}

	zap.L().Info("claims drafted",
		zap.String("model", d.model),
		zap.Int("count", len(out)),
	)
	return out, nil
}

// extractJSON trims any prose around the first JSON array in a response.
func extractJSON(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
