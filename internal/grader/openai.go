package grader

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/victornm/questiontime/internal/domain"
)

const (
	defaultModel   = "gpt-3.5-turbo"
	defaultTimeout = 60 * time.Second
)

type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAI grades answers with a chat completion model.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI validates the configuration eagerly: a missing credential is a startup error.
func NewOpenAI(c OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("openai grader: %w: api key is not set", ErrUnavailable)
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(c.APIKey),
		option.WithRequestTimeout(c.Timeout),
		// Retries belong to the caller; a failed grading leaves the session unchanged.
		option.WithMaxRetries(0),
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	if c.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.HTTPClient))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  c.Model,
	}, nil
}

func (g *OpenAI) Grade(ctx context.Context, q domain.Question, answer string) (bool, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(Prompt(q, answer)),
		},
		MaxTokens:   openai.Int(3),
		Temperature: openai.Float(0),
	})
	if err != nil {
		var apiErr *openai.Error
		if stderrors.As(err, &apiErr) {
			return false, fmt.Errorf("%w: openai status %d: %v", ErrUnavailable, apiErr.StatusCode, err)
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("%w: empty completion", ErrProtocol)
	}

	reply := resp.Choices[0].Message.Content
	slog.DebugContext(ctx, "grader: openai verdict", "question", q.ID, "reply", reply)

	return ParseVerdict(reply)
}
