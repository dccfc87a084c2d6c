// Package memory implements the long-term memory collaborators of the
// conversation core.
//
// # Bank
//
// Bank wraps a store.MemoryStore and is what the conversation registry uses to
// resolve injected memories and to persist the summary produced when a
// conversation closes. It also backs the developer console:
//
//	bank := memory.NewBank(db, cfg.Summarizer.TitleLength, logger)
//	mem, err := bank.Remember(ctx, memory.RememberRequest{WorkspaceID: "W1", Text: "..."})
//	results, err := bank.Search(ctx, "W1", "deploy checklist", 5)
//
// Search is a term-overlap ranking over the workspace's memories. Title and
// tag hits weigh more than body hits.
//
// # Summarization
//
// ExtractiveSummarizer builds a memory draft from a transcript without a
// language model. Message content is markdown; PlainText reduces it to text
// with goldmark so that titles and snippets carry no formatting markers.
// Summaries are tagged "summary", "conversation:<id>" and "model:<id>".
package memory
