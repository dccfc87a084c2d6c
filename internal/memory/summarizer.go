// ABOUTME: Extractive summarizer that turns a conversation transcript into a memory draft
// ABOUTME: Markdown is reduced to plain text with goldmark; pinned messages lead the snippet

package memory

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/2389/memex/internal/store"
)

const (
	DefaultTitleLength   = 60
	DefaultSnippetLength = 240

	// TagSummary marks memories produced by closing a conversation
	TagSummary = "summary"
)

// ExtractiveSummarizer builds summaries from the messages themselves without
// calling a language model. The zero value uses the default lengths.
type ExtractiveSummarizer struct {
	TitleLength   int
	SnippetLength int
}

// NewExtractiveSummarizer creates a summarizer. Lengths <= 0 use the defaults.
func NewExtractiveSummarizer(titleLength, snippetLength int) *ExtractiveSummarizer {
	return &ExtractiveSummarizer{TitleLength: titleLength, SnippetLength: snippetLength}
}

// Summarize returns a memory draft for conv. The title comes from the first
// user message, falling back to the conversation title; the snippet starts
// with pinned messages followed by the rest in order; the content is the full
// plain-text transcript.
func (s *ExtractiveSummarizer) Summarize(ctx context.Context, conv *store.Conversation, messages []*store.Message) (*store.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	titleLen := s.TitleLength
	if titleLen <= 0 {
		titleLen = DefaultTitleLength
	}
	snippetLen := s.SnippetLength
	if snippetLen <= 0 {
		snippetLen = DefaultSnippetLength
	}

	title := conv.Title
	titled := false
	var pinned, rest []string
	var transcript strings.Builder
	for _, m := range messages {
		plain := collapseSpace(PlainText(m.Content))
		if plain == "" {
			continue
		}
		if !titled && m.Role == store.RoleUser {
			title = plain
			titled = true
		}
		if m.IsPinned {
			pinned = append(pinned, plain)
		} else {
			rest = append(rest, plain)
		}
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, plain)
	}

	snippet := strings.Join(append(pinned, rest...), " ")
	if snippet == "" {
		snippet = "Empty conversation"
	}

	return &store.Memory{
		WorkspaceID:          conv.WorkspaceID,
		Title:                truncate(title, titleLen),
		Snippet:              truncate(snippet, snippetLen),
		Content:              strings.TrimSpace(transcript.String()),
		Tags:                 []string{TagSummary, "conversation:" + conv.ID, "model:" + conv.ModelID},
		SourceConversationID: conv.ID,
	}, nil
}

// PlainText renders markdown source as plain text: formatting markers are
// dropped, block elements are separated by newlines and code is kept verbatim.
func PlainText(src string) string {
	source := []byte(src)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := range lines.Len() {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

// truncate shortens s to at most n runes, ending with an ellipsis when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return strings.TrimSpace(string([]rune(s)[:n-3])) + "..."
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
