package core

import (
	"context"
	"errors"
	"strings"

	"insurechat.io/rag-backend/internal/config"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/vectorstore"
)

const (
	FallbackReply = "Sorry, an error occurred while generating the answer. Please try again."
	EmptyReply    = "I couldn't generate an answer to that. Please try rephrasing your question."

	defaultStreamBuffer = 16
)

// ResponseStreamer runs one model generation per call and relays the fragments.
type ResponseStreamer struct {
	gen        Generator
	maxChunks  int
	maxChars   int
	bufferSize int
	log        *logger.Logger
}

func NewResponseStreamer(gen Generator, cfg *config.Config, log *logger.Logger) *ResponseStreamer {
	s := &ResponseStreamer{
		gen:        gen,
		maxChunks:  cfg.ContextChunks,
		maxChars:   cfg.ContextChunkChars,
		bufferSize: cfg.StreamBuffer,
		log:        log.With("service", "ResponseStreamer"),
	}
	if s.bufferSize <= 0 {
		s.bufferSize = defaultStreamBuffer
	}
	return s
}

// ReplyStream is a single, finite sequence of reply fragments. Fragments must be drained or
// the context cancelled; otherwise the producer blocks once the buffer is full.
type ReplyStream struct {
	fragments chan string
	done      chan struct{}
	text      strings.Builder
	err       error
}

// Stream starts generation for query with chunks as context. Provider failures end the stream
// with FallbackReply; cancelling ctx stops generation and keeps what was already delivered.
func (s *ResponseStreamer) Stream(ctx context.Context, query string, chunks []vectorstore.Chunk) *ReplyStream {
	rs := &ReplyStream{
		fragments: make(chan string, s.bufferSize),
		done:      make(chan struct{}),
	}
	prompt := BuildPrompt(query, chunks, s.maxChunks, s.maxChars)
	go rs.produce(ctx, s.gen, prompt, s.log)
	return rs
}

func (rs *ReplyStream) produce(ctx context.Context, gen Generator, prompt string, log *logger.Logger) {
	defer close(rs.done)
	defer close(rs.fragments)

	emit := func(fragment string) error {
		if fragment == "" {
			return nil
		}
		select {
		case rs.fragments <- fragment:
			rs.text.WriteString(fragment)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := gen.GenerateStream(ctx, prompt, emit)
	switch {
	case ctx.Err() != nil:
		rs.err = ctx.Err()
		log.Info("Reply stream cancelled", "delivered_chars", rs.text.Len())
	case err != nil:
		rs.err = err
		log.Error("Model generation failed mid-stream", "error", err)
		_ = emit(FallbackReply)
	case rs.text.Len() == 0:
		log.Warn("Model returned no text")
		_ = emit(EmptyReply)
	}
}

// Fragments yields fragments in order and is closed when the stream ends.
func (rs *ReplyStream) Fragments() <-chan string {
	return rs.fragments
}

// Wait blocks until the stream ends and returns the full delivered reply.
func (rs *ReplyStream) Wait() string {
	<-rs.done
	return rs.text.String()
}

// Err reports why the stream ended early: the provider error (the reply then ends with
// FallbackReply) or the context error. It is nil for a complete reply.
func (rs *ReplyStream) Err() error {
	<-rs.done
	return rs.err
}

// Cancelled reports whether the stream stopped because its context ended.
func (rs *ReplyStream) Cancelled() bool {
	err := rs.Err()
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
