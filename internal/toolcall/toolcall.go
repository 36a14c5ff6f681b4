// Package toolcall parses the textual tool-call protocol the model uses to request
// warehouse queries:
//
//	<tool_call>
//	  <description>what the query retrieves</description>
//	  <sql>SELECT ...</sql>
//	</tool_call>
//
// Tag matching is case-insensitive and tolerant of interior whitespace. Blocks that are
// not closed are left untouched.
package toolcall

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultDescription is used when a block carries no description element.
const DefaultDescription = "Running query…"

var (
	callPattern  = regexp.MustCompile(`(?is)<tool_call>\s*(?:<description>(.*?)</description>\s*)?<sql>(.*?)</sql>\s*</tool_call>`)
	blockPattern = regexp.MustCompile(`(?is)<tool_call>.*?</tool_call>`)
)

type Call struct {
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// Extract returns every well-formed tool call in document order.
func Extract(text string) []Call {
	matches := callPattern.FindAllStringSubmatch(text, -1)
	calls := make([]Call, 0, len(matches))
	for _, match := range matches {
		description := strings.TrimSpace(match[1])
		if description == "" {
			description = DefaultDescription
		}
		calls = append(calls, Call{
			Description: description,
			SQL:         strings.TrimSpace(match[2]),
		})
	}
	return calls
}

// Strip removes every closed tool-call block and trims the remaining prose.
func Strip(text string) string {
	return strings.TrimSpace(blockPattern.ReplaceAllString(text, ""))
}

// Render formats calls back into protocol markup.
func Render(calls ...Call) string {
	var b strings.Builder
	for _, call := range calls {
		_, _ = fmt.Fprintf(&b, "<tool_call>\n  <description>%s</description>\n  <sql>\n    %s\n  </sql>\n</tool_call>\n", call.Description, call.SQL)
	}
	return b.String()
}
