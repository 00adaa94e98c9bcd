// Package ask answers natural-language questions from stored weather data
// using an OpenAI chat model.
package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

const DefaultModel = "gpt-4o-mini"

var (
	ErrNoAPIKey        = errors.New("OPENAI_API_KEY is not set")
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrNoData          = errors.New("no weather data stored yet")
	ErrUnknownLocation = errors.New("unknown location")
)

type Answer struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Location   string `json:"location"`
	LocationID int64  `json:"location_id"`
	Model      string `json:"model"`
}

type Assistant struct {
	client openai.Client
	model  string
	data   DataSource
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// New creates an assistant. Extra options are passed to the OpenAI client.
func New(apiKey, model string, data DataSource, loc *time.Location, logger *zap.Logger, opts ...option.RequestOption) (*Assistant, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &Assistant{
		client: client,
		model:  model,
		data:   data,
		loc:    loc,
		logger: logger.Named("ask"),
		now:    time.Now,
	}, nil
}

// Ask answers question about the location with id locationID, or about the
// first stored location when locationID is zero.
func (a *Assistant) Ask(ctx context.Context, question string, locationID int64) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	loc, err := resolveLocation(ctx, a.data, locationID)
	if err != nil {
		return nil, err
	}
	weather, err := BuildContext(ctx, a.data, loc, a.now().In(a.loc))
	if err != nil {
		return nil, err
	}

	a.logger.Info("answering question",
		zap.String("location", loc.Name),
		zap.Int("question_length", len(question)),
		zap.Int("context_length", len(weather)))

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Weather data:\n" + weather + "\nQuestion: " + question),
		},
	})
	if err != nil {
		a.logger.Error("chat completion failed", zap.Error(err))
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no answer returned")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("empty answer returned")
	}

	a.logger.Debug("question answered",
		zap.Int("answer_length", len(content)),
		zap.Duration("duration", time.Since(start)))

	return &Answer{
		Question:   question,
		Answer:     content,
		Location:   loc.Name,
		LocationID: loc.ID,
		Model:      a.model,
	}, nil
}
