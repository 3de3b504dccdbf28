package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"insurechat.io/rag-backend/internal/config"
	"insurechat.io/rag-backend/internal/logger"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	chatSystemInstruction = "You are an assistant that answers questions about insurance policy documents. " +
		"Answer only from the policy text you are given. " +
		"If the policy text does not contain the answer, say that you could not find it. " +
		"Do not make up information."
)

// Generator streams a model reply, calling yield once per text fragment. Returning an error
// from yield stops generation.
type Generator interface {
	GenerateStream(ctx context.Context, prompt string, yield func(fragment string) error) error
}

// LLMService owns the Gemini client. It is created once at start-up, injected where needed
// and closed at shutdown.
type LLMService struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	log            *logger.Logger
}

var _ Generator = (*LLMService)(nil)

func NewLLMService(ctx context.Context, cfg *config.Config, log *logger.Logger) (*LLMService, error) {
	if err := cfg.ValidateProvider(); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	s := &LLMService{
		client:         client,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		log:            log.With("service", "LLMService"),
	}
	if s.chatModel == "" {
		s.chatModel = defaultChatModelName
	}
	if s.embeddingModel == "" {
		s.embeddingModel = defaultEmbeddingModelName
	}
	return s, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Warn("Error closing GenAI client", "error", err)
		} else {
			s.log.Info("GenAI client closed")
		}
	}
}

// EmbedRaw is one unretried embedding request. Wrap it in an EmbeddingClient.
func (s *LLMService) EmbedRaw(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) GenerateStream(ctx context.Context, prompt string, yield func(string) error) error {
	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	iter := model.GenerateContentStream(ctx, genai.Text(prompt))
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}

		for _, text := range responseText(resp) {
			if err := yield(text); err != nil {
				return err
			}
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok && txt != "" {
			out = append(out, string(txt))
		}
	}
	return out
}
