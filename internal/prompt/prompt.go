// Package prompt assembles the system prompt sent with every inference call.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// ToolInstructions teaches the model the tool-call protocol. It is appended to
// every base prompt.
const ToolInstructions = `
--- SQL Tool Instructions ---
You have access to a SQL execution tool.
When you need data to answer a question, output a block in this exact format:

<tool_call>
  <description>One-line description of what this query retrieves</description>
  <sql>
    SELECT ... FROM ... WHERE ...
  </sql>
</tool_call>

Rules:
- Only use SELECT or WITH queries, never INSERT / UPDATE / DELETE / DROP.
- Always use fully-qualified table names as described in the schema context.
- You may issue multiple sequential tool calls (one per message).
- When you have enough data, respond with a plain business-narrative answer
  (no <tool_call> blocks) to conclude the conversation turn.
-----------------------------
`

const DefaultSchemaPrefix = "ANALYTICS.GOLD"

//go:embed default_context.tmpl
var defaultContextTemplate string

var defaultContext = template.Must(template.New("default_context").Parse(defaultContextTemplate))

type Source string

const (
	SourceFile    Source = "file"
	SourceInline  Source = "inline"
	SourceEnv     Source = "env"
	SourceDefault Source = "default"
)

// Options lists the places a base prompt can come from, highest priority first.
type Options struct {
	File         string
	Inline       string
	Env          string
	SchemaPrefix string
}

// Resolve picks the base prompt. An unreadable file is an error rather than a
// silent fallback.
func Resolve(opts Options) (string, Source, error) {
	if path := strings.TrimSpace(opts.File); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("read system prompt file: %w", err)
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, SourceFile, nil
		}
	}
	if text := strings.TrimSpace(opts.Inline); text != "" {
		return text, SourceInline, nil
	}
	if text := strings.TrimSpace(opts.Env); text != "" {
		return text, SourceEnv, nil
	}
	return Default(opts.SchemaPrefix), SourceDefault, nil
}

// Default renders the embedded schema context for the given database.schema prefix.
func Default(schemaPrefix string) string {
	prefix := strings.TrimSpace(schemaPrefix)
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	var buf bytes.Buffer
	if err := defaultContext.Execute(&buf, struct{ SchemaPrefix string }{prefix}); err != nil {
		panic(fmt.Sprintf("render default context: %v", err))
	}
	return strings.TrimSpace(buf.String())
}

// Build appends the tool instructions to base. A blank base falls back to the
// default context.
func Build(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = Default("")
	}
	return base + "\n" + ToolInstructions
}

// Base returns the caller-supplied part of a prompt produced by Build.
func Base(full string) string {
	return strings.TrimSpace(strings.Replace(full, ToolInstructions, "", 1))
}

// Preview shortens a prompt for display.
func Preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
