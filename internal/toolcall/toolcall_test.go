package toolcall

import (
	"strings"
	"testing"
)

func TestExtractFindsAllBlocksInOrder(t *testing.T) {
	text := `Let me look that up.
<tool_call>
  <description>Top customers</description>
  <sql>
    SELECT ACCOUNT_NAME FROM ACCOUNTS LIMIT 5
  </sql>
</tool_call>
And the monthly trend:
<TOOL_CALL><SQL>WITH m AS (SELECT 1) SELECT * FROM m</SQL></TOOL_CALL>`

	calls := Extract(text)
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].Description != "Top customers" {
		t.Fatalf("calls[0].Description = %q", calls[0].Description)
	}
	if calls[0].SQL != "SELECT ACCOUNT_NAME FROM ACCOUNTS LIMIT 5" {
		t.Fatalf("calls[0].SQL = %q", calls[0].SQL)
	}
	if calls[1].Description != DefaultDescription {
		t.Fatalf("calls[1].Description = %q", calls[1].Description)
	}
	if calls[1].SQL != "WITH m AS (SELECT 1) SELECT * FROM m" {
		t.Fatalf("calls[1].SQL = %q", calls[1].SQL)
	}
}

func TestExtractNoBlocks(t *testing.T) {
	text := "  Revenue grew 12% year over year.\n"
	if calls := Extract(text); len(calls) != 0 {
		t.Fatalf("len(calls) = %d, want 0", len(calls))
	}
	if got := Strip(text); got != "Revenue grew 12% year over year." {
		t.Fatalf("Strip() = %q", got)
	}
}

func TestStripKeepsProseAroundRenderedCalls(t *testing.T) {
	calls := []Call{
		{Description: "Revenue by country", SQL: "SELECT COUNTRY, SUM(AMOUNT) FROM ORDERS GROUP BY 1"},
		{Description: "Order count", SQL: "SELECT COUNT(*) FROM ORDERS"},
	}
	text := "Checking two things.\n" + Render(calls[0]) + "in between\n" + Render(calls[1])

	extracted := Extract(text)
	if len(extracted) != len(calls) {
		t.Fatalf("len(extracted) = %d, want %d", len(extracted), len(calls))
	}
	for i := range calls {
		if extracted[i] != calls[i] {
			t.Fatalf("extracted[%d] = %#v, want %#v", i, extracted[i], calls[i])
		}
	}

	stripped := Strip(text)
	if strings.Contains(strings.ToLower(stripped), "<tool_call>") {
		t.Fatalf("Strip() left markup: %q", stripped)
	}
	if !strings.Contains(stripped, "Checking two things.") || !strings.Contains(stripped, "in between") {
		t.Fatalf("Strip() lost prose: %q", stripped)
	}
}

func TestUnclosedBlockIsLeftVerbatim(t *testing.T) {
	text := "Answer first. <tool_call><sql>SELECT 1</sql>"
	if calls := Extract(text); len(calls) != 0 {
		t.Fatalf("len(calls) = %d, want 0", len(calls))
	}
	if got := Strip(text); got != text {
		t.Fatalf("Strip() = %q, want %q", got, text)
	}
}

func TestBlockWithoutSQLIsNotACall(t *testing.T) {
	text := "<tool_call><description>nothing</description></tool_call> done"
	if calls := Extract(text); len(calls) != 0 {
		t.Fatalf("len(calls) = %d, want 0", len(calls))
	}
	if got := Strip(text); got != "done" {
		t.Fatalf("Strip() = %q", got)
	}
}
