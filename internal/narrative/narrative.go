package narrative

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"btc-advisor/internal/advice"
	"btc-advisor/internal/daily"
	"btc-advisor/internal/fsutil"
)

// ErrNoData is returned when there are no daily records to send.
var ErrNoData = errors.New("no daily records to analyse")

// Options configure the advisor.
type Options struct {
	BaseURL      string
	Model        string
	APIKey       string
	Temperature  float64
	MaxTokens    int64
	MaxRetries   int
	Timeout      time.Duration
	Months       int
	Budget       float64
	Offline      bool
	ResponsesDir string
}

// Result describes one narrative run.
type Result struct {
	ID       uuid.UUID
	Offline  bool
	Records  int
	Prompt   string
	Advice   string
	FilePath string
}

// Advisor asks an OpenAI-compatible chat model for narrative advice.
type Advisor struct {
	opts   Options
	client openai.Client
	logger zerolog.Logger
	now    func() time.Time
}

// New builds an advisor. Without an API key it always runs offline.
func New(opts Options, logger zerolog.Logger) *Advisor {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.deepseek.com"
	}
	if opts.Model == "" {
		opts.Model = "deepseek-chat"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Budget <= 0 {
		opts.Budget = 1000
	}
	if opts.ResponsesDir == "" {
		opts.ResponsesDir = "responses"
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		opts.Offline = true
	}

	client := openai.NewClient(
		option.WithBaseURL(opts.BaseURL),
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
		option.WithRequestTimeout(opts.Timeout),
	)

	return &Advisor{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "narrative").Str("model", opts.Model).Logger(),
		now:    time.Now,
	}
}

// Offline reports whether prompts are saved instead of sent.
func (a *Advisor) Offline() bool {
	return a.opts.Offline
}

// Advise selects the recent records, renders the prompt and either saves it
// (offline) or sends it and saves the reply.
func (a *Advisor) Advise(ctx context.Context, records []daily.Record, overall advice.Overall) (Result, error) {
	now := a.now()
	selected := SelectRecords(records, a.opts.Months, now)
	if len(selected) == 0 {
		return Result{}, ErrNoData
	}

	prompt, err := BuildPrompt(selected, overall, a.opts.Budget, now)
	if err != nil {
		return Result{}, err
	}
	res := Result{ID: uuid.New(), Offline: a.opts.Offline, Records: len(selected), Prompt: prompt}
	stamp := now.Format("20060102_150405")

	if a.opts.Offline {
		res.FilePath = filepath.Join(a.opts.ResponsesDir, "prompt_"+stamp+".txt")
		if err := fsutil.WriteFileAtomic(res.FilePath, []byte(prompt), 0o644); err != nil {
			return res, fmt.Errorf("save prompt: %w", err)
		}
		a.logger.Info().Str("id", res.ID.String()).Str("path", res.FilePath).Int("records", res.Records).Msg("prompt saved for offline use")
		return res, nil
	}

	a.logger.Info().Str("id", res.ID.String()).Int("records", res.Records).Msg("requesting narrative advice")
	reply, err := a.complete(ctx, prompt)
	if err != nil {
		return res, err
	}
	res.Advice = reply

	res.FilePath = filepath.Join(a.opts.ResponsesDir, "advice_"+stamp+".txt")
	if err := fsutil.WriteFileAtomic(res.FilePath, []byte(reply), 0o644); err != nil {
		return res, fmt.Errorf("save advice: %w", err)
	}
	a.logger.Info().Str("id", res.ID.String()).Str("path", res.FilePath).Msg("narrative advice saved")
	return res, nil
}

func (a *Advisor) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(a.opts.Temperature),
		MaxTokens:   openai.Int(a.opts.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("chat completion returned empty content")
	}
	a.logger.Debug().Int64("prompt_tokens", resp.Usage.PromptTokens).Int64("completion_tokens", resp.Usage.CompletionTokens).Msg("chat completion usage")
	return content, nil
}
