package agents

import (
	"context"
	"errors"
	"fmt"
	"io"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/alphaagents/internal/config"
)

// Reasoner produces one assistant message from a prepared conversation.
type Reasoner interface {
	Reason(ctx context.Context, input []*schema.Message) (*schema.Message, error)
}

// ReasonerFactory builds a fresh reasoner for one role in one session.
type ReasonerFactory func(ctx context.Context, spec RoleSpec) (Reasoner, error)

// NewChatModel creates the tool-calling chat model for the configured provider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	switch cfg.LLMProvider {
	case "deepseek":
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.DeepSeekAPIKey,
			BaseURL:     cfg.BackendURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		return cm, nil
	case "openai", "":
		maxTokens := cfg.LLMMaxTokens
		temperature := cfg.LLMTemperature
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     cfg.BackendURL,
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.LLMModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

// NewEmbedder creates the embedder used to index filings. It returns nil when
// the provider offers no embeddings or no embedding model is configured, and
// filings are then indexed lexically.
func NewEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	if cfg.EmbeddingModel == "" {
		return nil, nil
	}
	switch cfg.LLMProvider {
	case "openai", "":
		emb, err := openaiembed.NewEmbedder(ctx, &openaiembed.EmbeddingConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.BackendURL,
			Model:   cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedder: %w", err)
		}
		return emb, nil
	default:
		return nil, nil
	}
}

// ReactReasoner runs an eino ReAct loop: the model may call its bound tool
// any number of times before answering. Tool results stay inside the loop.
type ReactReasoner struct {
	agent *react.Agent
}

func NewReactReasoner(ctx context.Context, cm model.ToolCallingChatModel, tools []tool.BaseTool, maxSteps int) (*ReactReasoner, error) {
	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		MaxStep:          maxSteps,
		ToolCallingModel: cm,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
		StreamToolCallChecker: ToolCallChecker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create react agent: %w", err)
	}
	return &ReactReasoner{agent: agent}, nil
}

func (r *ReactReasoner) Reason(ctx context.Context, input []*schema.Message) (*schema.Message, error) {
	return r.agent.Generate(ctx, input)
}

// NewReactFactory binds each role's single tool to its own ReAct agent.
func NewReactFactory(cm model.ToolCallingChatModel, maxSteps int) ReasonerFactory {
	return func(ctx context.Context, spec RoleSpec) (Reasoner, error) {
		if spec.Tool == nil {
			return nil, fmt.Errorf("role %s has no bound capability", spec.Role)
		}
		return NewReactReasoner(ctx, cm, []tool.BaseTool{spec.Tool}, maxSteps)
	}
}

// ChatReasoner is a single model call without tools.
type ChatReasoner struct {
	model model.BaseChatModel
}

func NewChatReasoner(cm model.BaseChatModel) *ChatReasoner {
	return &ChatReasoner{model: cm}
}

func (c *ChatReasoner) Reason(ctx context.Context, input []*schema.Message) (*schema.Message, error) {
	return c.model.Generate(ctx, input)
}

func ToolCallChecker(ctx context.Context, sr *schema.StreamReader[*schema.Message]) (bool, error) {
	defer sr.Close()
	for {
		msg, err := sr.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		if len(msg.ToolCalls) > 0 {
			return true, nil
		}
	}
}
