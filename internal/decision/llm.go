package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
)

// ChatModel is the subset of an eino chat model used here.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// TokenPrice is the USD cost per thousand tokens.
type TokenPrice struct {
	Input  float64
	Output float64
}

// LLMConfig configures an OpenAI-compatible model endpoint.
type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Price     TokenPrice
}

// LLMSource asks a chat model for a proposal.
type LLMSource struct {
	model     ChatModel
	modelName string
	price     TokenPrice
}

// NewLLMSource wraps an existing chat model.
func NewLLMSource(m ChatModel, modelName string, price TokenPrice) *LLMSource {
	return &LLMSource{model: m, modelName: modelName, price: price}
}

// NewOpenAISource connects to an OpenAI-compatible endpoint.
func NewOpenAISource(ctx context.Context, cfg LLMConfig) (*LLMSource, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key not configured")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: &maxTokens,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create chat model: %w", err)
	}
	return NewLLMSource(cm, cfg.Model, cfg.Price), nil
}

// Propose implements Source.
func (s *LLMSource) Propose(ctx context.Context, in *Input) (*Result, error) {
	msg, err := s.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(SystemPrompt(in.Agent)),
		schema.UserMessage(UserPrompt(in)),
	})
	if err != nil {
		return nil, fmt.Errorf("llm: generate: %w", err)
	}

	usage := Usage{Model: s.modelName, Cost: decimal.Zero}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		usage.InputTokens = msg.ResponseMeta.Usage.PromptTokens
		usage.OutputTokens = msg.ResponseMeta.Usage.CompletionTokens
		usage.Cost = s.cost(usage.InputTokens, usage.OutputTokens)
	}

	p, err := ParseResponse(msg.Content)
	if err != nil {
		return nil, err
	}
	return &Result{Proposal: p, Usage: usage}, nil
}

func (s *LLMSource) cost(inputTokens, outputTokens int) decimal.Decimal {
	in := decimal.NewFromInt(int64(inputTokens)).Mul(decimal.NewFromFloat(s.price.Input))
	out := decimal.NewFromInt(int64(outputTokens)).Mul(decimal.NewFromFloat(s.price.Output))
	return in.Add(out).Div(decimal.NewFromInt(1000)).Round(6)
}
