package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
	"insurechat.io/rag-backend/internal/vectorstore"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]vectorstore.Chunk, error)
}

type ChatService struct {
	chats     ChatStore
	retriever Retriever
	streamer  *ResponseStreamer
	newID     func() string
	log       *logger.Logger
}

func NewChatService(chats ChatStore, retriever Retriever, streamer *ResponseStreamer, log *logger.Logger) *ChatService {
	return &ChatService{
		chats:     chats,
		retriever: retriever,
		streamer:  streamer,
		newID:     uuid.NewString,
		log:       log.With("service", "ChatService"),
	}
}

// ChatTurn is one question and its streamed answer. The AI message is written once the
// stream ends, whether or not anyone is still reading.
type ChatTurn struct {
	SessionID string
	stream    *ReplyStream
	saved     chan struct{}
	reply     *store.ChatMessage
	saveErr   error
}

func (t *ChatTurn) Fragments() <-chan string {
	return t.stream.Fragments()
}

// Wait blocks until the AI message has been persisted and returns it.
func (t *ChatTurn) Wait() (*store.ChatMessage, error) {
	<-t.saved
	return t.reply, t.saveErr
}

// Chat stores the user message under a fresh session id and starts streaming the answer.
func (s *ChatService) Chat(ctx context.Context, message string) (*ChatTurn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	sessionID := s.newID()
	log := s.log.With("session_id", sessionID)

	chunks, err := s.retriever.Retrieve(ctx, message, 0)
	if err != nil {
		// Answer without context rather than fail the turn.
		log.Warn("Failed to retrieve context, proceeding without it", "error", err)
		chunks = nil
	}

	userMsg := &store.ChatMessage{SessionID: sessionID, Role: store.RoleUser, Content: message}
	if err := s.chats.CreateChatMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	turn := &ChatTurn{
		SessionID: sessionID,
		stream:    s.streamer.Stream(ctx, message, chunks),
		saved:     make(chan struct{}),
	}
	go s.persistReply(context.WithoutCancel(ctx), turn, log)
	return turn, nil
}

func (s *ChatService) persistReply(ctx context.Context, turn *ChatTurn, log *logger.Logger) {
	defer close(turn.saved)

	content := turn.stream.Wait()
	if turn.stream.Cancelled() {
		log.Info("Client went away, storing partial reply", "chars", len(content))
	}

	aiMsg := &store.ChatMessage{SessionID: turn.SessionID, Role: store.RoleAI, Content: content}
	if err := s.chats.CreateChatMessage(ctx, aiMsg); err != nil {
		log.Error("Failed to store AI message", "error", err)
		turn.saveErr = fmt.Errorf("failed to store AI message: %w", err)
		return
	}
	turn.reply = aiMsg
}

// History returns one page of the chat log, newest first.
func (s *ChatService) History(ctx context.Context, page store.Page) ([]store.ChatMessage, int, error) {
	messages, total, err := s.chats.ListChatMessages(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chat history: %w", err)
	}
	return messages, total, nil
}

// Session returns the messages of one session in creation order.
func (s *ChatService) Session(ctx context.Context, sessionID string) ([]store.ChatMessage, error) {
	messages, err := s.chats.ListSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return messages, nil
}
