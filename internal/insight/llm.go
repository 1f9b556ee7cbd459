package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

const systemPrompt = "You are a SaaS M&A advisor. Given a founder's metrics and a heuristic valuation, " +
	"write two or three short markdown bullet points on the most valuable improvements. " +
	"Plain markdown only, no headings, no preamble."

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// AnthropicWriter asks Claude for commentary. Contact details are never sent.
type AnthropicWriter struct {
	messages AnthropicMessager
	timeout  time.Duration
}

func NewAnthropicWriter(apiKey string) (*AnthropicWriter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return &AnthropicWriter{messages: newAnthropicClient(apiKey), timeout: 20 * time.Second}, nil
}

type promptInput struct {
	ARR           float64                 `json:"arr"`
	QoQGrowthRate float64                 `json:"qoqGrowthRate"`
	RevenueChurn  string                  `json:"revenueChurn,omitempty"`
	Retention     string                  `json:"netRevenueRetention,omitempty"`
	CAC           float64                 `json:"cac,omitempty"`
	CACContext    string                  `json:"cacContext,omitempty"`
	Profitability string                  `json:"profitability,omitempty"`
	MarketGravity string                  `json:"marketGravity,omitempty"`
	BusinessModel string                  `json:"businessModel,omitempty"`
	Current       float64                 `json:"currentValuation"`
	Optimized     float64                 `json:"optimizedValuation"`
	Opportunities []valuation.Opportunity `json:"opportunities"`
}

func buildPrompt(r valuation.Record, res valuation.Result) (string, error) {
	blob, err := json.MarshalIndent(promptInput{
		ARR:           r.ARR,
		QoQGrowthRate: r.QoQGrowthRate,
		RevenueChurn:  r.RevenueChurn,
		Retention:     r.NetRevenueRetention,
		CAC:           r.CAC,
		CACContext:    r.CACContext,
		Profitability: r.Profitability,
		MarketGravity: r.MarketGravity,
		BusinessModel: r.BusinessModel,
		Current:       res.CurrentValuation,
		Optimized:     res.OptimizedValuation,
		Opportunities: res.Opportunities,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return "Metrics and valuation (multipliers are relative to a 2.0x ARR base):\n\n" + string(blob), nil
}

func (a *AnthropicWriter) Commentary(ctx context.Context, r valuation.Record, res valuation.Result) (string, error) {
	prompt, err := buildPrompt(r, res)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens:   600,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic commentary: %w", err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	out := stripCodeFences(strings.TrimSpace(sb.String()))
	if out == "" {
		return "", errors.New("anthropic commentary: empty response")
	}
	return out, nil
}

func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
