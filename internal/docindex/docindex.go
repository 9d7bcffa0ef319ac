// Package docindex renders human-readable Markdown documents (a
// conversation table with resolver statistics, one page per
// conversation) to HTML via goldmark. It produces static documents,
// not a browsing UI: no client-side script, no navigation chrome
// beyond what Markdown itself expresses.
package docindex

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghhtml "github.com/yuin/goldmark/renderer/html"
)

// IndexRow is the subset of a master-index entry the Markdown table
// needs; kept independent of internal/writer to avoid a package
// import cycle (the pipeline calls both writer and docindex).
type IndexRow struct {
	Title        string
	FolderName   string
	MessageCount int
	HasMedia     bool
	HasAssets    bool
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Table),
	goldmark.WithRendererOptions(ghhtml.WithUnsafe()),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// SchemaSummary tallies which content types and citation kinds were
// observed across the run, per SPEC_FULL.md §9.1's schema-inference
// summary.
type SchemaSummary struct {
	ContentTypes map[string]int
	CitationKinds map[string]int
}

// RenderIndex builds index.md's Markdown source: a conversation table
// plus resolver and schema statistics, then renders it to HTML.
func RenderIndex(entries []IndexRow, resolvedByStrategy map[string]int, unresolved int, schema SchemaSummary) (markdown string, html []byte, err error) {
	var b strings.Builder

	b.WriteString("# ChatGPT Export Index\n\n")
	fmt.Fprintf(&b, "%d conversations, %d unresolved citations.\n\n", len(entries), unresolved)

	b.WriteString("## Conversations\n\n")
	b.WriteString("| Title | Messages | Media | Assets | Folder |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %s | %d | %s | %s | [%s](%s/conversation.html) |\n",
			escapeCell(e.Title), e.MessageCount, checkmark(e.HasMedia), checkmark(e.HasAssets), e.FolderName, e.FolderName)
	}

	b.WriteString("\n## Resolver Strategy Credits\n\n")
	b.WriteString("| Strategy | Count |\n|---|---|\n")
	for _, name := range sortedKeys(resolvedByStrategy) {
		fmt.Fprintf(&b, "| %s | %d |\n", name, resolvedByStrategy[name])
	}

	if len(schema.ContentTypes) > 0 {
		b.WriteString("\n## Content Types Observed\n\n")
		b.WriteString("| Type | Count |\n|---|---|\n")
		for _, name := range sortedKeys(schema.ContentTypes) {
			fmt.Fprintf(&b, "| %s | %d |\n", name, schema.ContentTypes[name])
		}
	}

	if len(schema.CitationKinds) > 0 {
		b.WriteString("\n## Citation Kinds Observed\n\n")
		b.WriteString("| Kind | Count |\n|---|---|\n")
		for _, name := range sortedKeys(schema.CitationKinds) {
			fmt.Fprintf(&b, "| %s | %d |\n", name, schema.CitationKinds[name])
		}
	}

	markdown = b.String()
	rendered, err := render(markdown)
	if err != nil {
		return markdown, nil, err
	}
	return markdown, rendered, nil
}

// RenderConversation builds one conversation.md's Markdown source
// (title, summary, message transcript) and its rendered HTML.
func RenderConversation(title, summary string, messages []MessageView) (markdown string, html []byte, err error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escapeHeading(title))
	if summary != "" {
		fmt.Fprintf(&b, "> %s\n\n", summary)
	}

	for _, m := range messages {
		fmt.Fprintf(&b, "**%s:**\n\n%s\n\n", m.Author, m.Content)
	}

	markdown = b.String()
	rendered, err := render(markdown)
	if err != nil {
		return markdown, nil, err
	}
	return markdown, rendered, nil
}

// MessageView is the minimal shape RenderConversation needs, kept
// independent of models.Message so docindex doesn't need to import
// the whole models package for one struct.
type MessageView struct {
	Author  string
	Content string
}

func render(markdown string) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checkmark(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func escapeHeading(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
