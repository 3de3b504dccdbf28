package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"insurechat.io/rag-backend/internal/vectorstore"
)

func drain(rs *ReplyStream) []string {
	var out []string
	for f := range rs.Fragments() {
		out = append(out, f)
	}
	return out
}

func TestStream_RelaysFragmentsAndAccumulates(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"Water damage ", "", "is covered."}}
	s := NewResponseStreamer(gen, testConfig(), nopLogger())

	rs := s.Stream(context.Background(), "Is water damage covered?", nil)
	assert.Equal(t, []string{"Water damage ", "is covered."}, drain(rs))
	assert.Equal(t, "Water damage is covered.", rs.Wait())
	assert.NoError(t, rs.Err())
}

func TestStream_ProviderFailureEndsWithFallback(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"Partial "}, err: errProvider}
	s := NewResponseStreamer(gen, testConfig(), nopLogger())

	rs := s.Stream(context.Background(), "q", nil)
	assert.Equal(t, []string{"Partial ", FallbackReply}, drain(rs))
	assert.Equal(t, "Partial "+FallbackReply, rs.Wait())
	assert.ErrorIs(t, rs.Err(), errProvider)
}

func TestStream_EmptyReplyGetsNotice(t *testing.T) {
	s := NewResponseStreamer(&fakeGenerator{}, testConfig(), nopLogger())

	rs := s.Stream(context.Background(), "q", nil)
	assert.Equal(t, []string{EmptyReply}, drain(rs))
	assert.NoError(t, rs.Err())
}

// blockingGenerator yields one fragment, then keeps yielding until the consumer stops it.
type blockingGenerator struct {
	released chan struct{}
}

func (g *blockingGenerator) GenerateStream(ctx context.Context, _ string, yield func(string) error) error {
	defer close(g.released)
	for {
		if err := yield("more "); err != nil {
			return err
		}
	}
}

func TestStream_CancellationReleasesProvider(t *testing.T) {
	gen := &blockingGenerator{released: make(chan struct{})}
	cfg := testConfig()
	cfg.StreamBuffer = 1
	s := NewResponseStreamer(gen, cfg, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	rs := s.Stream(ctx, "q", nil)
	assert.Equal(t, "more ", <-rs.Fragments())
	cancel()

	select {
	case <-gen.released:
	case <-time.After(2 * time.Second):
		t.Fatal("provider call was not released after cancellation")
	}
	assert.True(t, rs.Cancelled())
	assert.True(t, strings.HasPrefix(rs.Wait(), "more "))
	drain(rs)
}

func TestStream_PromptIsBounded(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"ok"}}
	cfg := testConfig()
	s := NewResponseStreamer(gen, cfg, nopLogger())

	chunks := []vectorstore.Chunk{
		{Content: strings.Repeat("a", 900)},
		{Content: "second"},
		{Content: "third"},
		{Content: "fourth should not appear"},
	}
	rs := s.Stream(context.Background(), "What is covered?", chunks)
	drain(rs)
	rs.Wait()

	prompt := gen.lastPrompt()
	assert.Contains(t, prompt, strings.Repeat("a", 500))
	assert.NotContains(t, prompt, strings.Repeat("a", 501))
	assert.Contains(t, prompt, "third")
	assert.NotContains(t, prompt, "fourth")
	assert.Contains(t, prompt, "User question: What is covered?")
}

func TestBuildPrompt_TruncatesByRunes(t *testing.T) {
	prompt := BuildPrompt("q", []vectorstore.Chunk{{Content: strings.Repeat("보", 10)}}, 3, 4)
	assert.Contains(t, prompt, strings.Repeat("보", 4))
	assert.NotContains(t, prompt, strings.Repeat("보", 5))
}

func TestBuildPrompt_NoContext(t *testing.T) {
	prompt := BuildPrompt("Is theft covered?", nil, 3, 500)
	require.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "no policy excerpts")
	assert.Contains(t, prompt, "Is theft covered?")
}
