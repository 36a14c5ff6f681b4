// Package chat is the terminal front-end: an interactive conversation loop and
// a one-shot ask command over a single analyst session.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sqlanalyst/sqlanalyst/internal/analyst"
	"github.com/sqlanalyst/sqlanalyst/internal/prompt"
)

const previewLength = 60

// Runner is the conversation the terminal drives. *analyst.Session satisfies it.
type Runner interface {
	Ask(ctx context.Context, question string, observers ...analyst.QueryObserver) analyst.Answer
	Reset(ctx context.Context) error
	SetSystemPrompt(ctx context.Context, systemPrompt string) error
	SystemPrompt() string
	Close() error
}

var exitWords = map[string]bool{"exit": true, "quit": true, "bye": true, "q": true}

var promptWords = map[string]bool{"sysprompt": true, "system prompt": true, "sp": true}

type console struct {
	runner Runner
	in     *bufio.Scanner
	out    io.Writer
	styles styles
	now    func() time.Time
}

func newConsole(runner Runner, in io.Reader, out io.Writer) *console {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &console{
		runner: runner,
		in:     scanner,
		out:    out,
		styles: newStyles(out),
		now:    time.Now,
	}
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *console) readLine(label string) (string, bool) {
	c.printf("%s", label)
	if !c.in.Scan() {
		return "", false
	}
	return c.in.Text(), true
}

func (c *console) banner() {
	preview := prompt.Preview(prompt.Base(c.runner.SystemPrompt()), previewLength)
	c.printf("\n%s\n", c.styles.hr("═"))
	c.printf("  %s\n", c.styles.title.Render("SQL Analyst"))
	c.printf("  %s\n", c.styles.detail.Render("Ask questions in plain English; answers are backed by read-only warehouse queries."))
	c.printf("%s\n", c.styles.hr("─"))
	c.printf("  %s %s\n", c.styles.label.Render("System prompt :"), preview)
	c.printf("%s\n", c.styles.hr("─"))
	c.printf("  %s\n", c.styles.label.Render("Example questions:"))
	for _, question := range analyst.StarterQuestions() {
		c.printf("    • %q\n", question)
	}
	c.printf("%s\n", c.styles.hr("─"))
	c.printf("  Commands:  reset → clear conversation  |  sysprompt → change prompt  |  exit → quit\n")
	c.printf("%s\n\n", c.styles.hr("═"))
}

// run reads questions until EOF or an exit word.
func (c *console) run(ctx context.Context) error {
	c.banner()
	for {
		if err := ctx.Err(); err != nil {
			c.printf("\n\nSession ended. Goodbye!\n")
			return nil
		}
		line, ok := c.readLine(c.styles.label.Render("You: "))
		if !ok {
			c.printf("\n\nSession ended. Goodbye!\n")
			return c.in.Err()
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		lower := strings.ToLower(input)
		switch {
		case exitWords[lower]:
			c.printf("Goodbye!\n")
			return nil
		case lower == "reset":
			if err := c.runner.Reset(ctx); err != nil {
				c.printf("  %s %v\n\n", c.styles.warning.Render("Reset failed:"), err)
				continue
			}
			c.printf("Conversation history cleared.\n\n")
		case promptWords[lower]:
			c.changeSystemPrompt(ctx)
		default:
			c.ask(ctx, input)
		}
	}
}

// changeSystemPrompt reads a new prompt until a blank line. A trailing
// backslash continues the current line.
func (c *console) changeSystemPrompt(ctx context.Context) {
	c.printf("  Enter new system prompt (blank line to finish):\n")
	var lines []string
	for {
		line, ok := c.readLine("  > ")
		if !ok {
			break
		}
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			break
		}
		lines = append(lines, strings.TrimSuffix(line, "\\"))
	}

	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		c.printf("  %s\n\n", c.styles.warning.Render("No input, system prompt unchanged."))
		return
	}
	if err := c.runner.SetSystemPrompt(ctx, prompt.Build(text)); err != nil {
		c.printf("  %s %v\n\n", c.styles.warning.Render("System prompt update failed:"), err)
		return
	}
	c.printf("  %s\n\n", c.styles.success.Render(fmt.Sprintf("System prompt updated (%d chars). Conversation reset.", len([]rune(text)))))
}

func (c *console) ask(ctx context.Context, question string) analyst.Answer {
	c.printf("\n%s\n", c.styles.hr("─"))
	c.printf("%s\n", c.styles.faint.Render("Analysing your question …"))
	start := c.now()

	answer := c.runner.Ask(ctx, question, progress{out: c.out, styles: c.styles})
	elapsed := c.now().Sub(start)

	c.printf("\n%s\n", c.styles.hr("─"))
	c.printf("%s\n\n", c.styles.title.Render("Analyst:"))
	for _, line := range strings.Split(answer.Text, "\n") {
		c.printf("   %s\n", line)
	}
	c.printf("\n%s\n", c.styles.hr("─"))
	c.printf("   %s\n", c.styles.faint.Render(fmt.Sprintf("%.1fs total  |  %d SQL query(ies) executed", elapsed.Seconds(), answer.Queries)))
	c.printf("%s\n\n", c.styles.hr("─"))
	return answer
}
