package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolvePriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	if err := os.WriteFile(path, []byte("  from file \n"), 0o600); err != nil {
		t.Fatalf("write prompt file: %v", err)
	}

	text, source, err := Resolve(Options{File: path, Inline: "inline", Env: "env"})
	if err != nil || text != "from file" || source != SourceFile {
		t.Fatalf("Resolve(file) = %q, %q, %v", text, source, err)
	}
	text, source, _ = Resolve(Options{Inline: " inline ", Env: "env"})
	if text != "inline" || source != SourceInline {
		t.Fatalf("Resolve(inline) = %q, %q", text, source)
	}
	text, source, _ = Resolve(Options{Env: "env"})
	if text != "env" || source != SourceEnv {
		t.Fatalf("Resolve(env) = %q, %q", text, source)
	}
	text, source, _ = Resolve(Options{SchemaPrefix: "SALES.GOLD"})
	if source != SourceDefault || !strings.Contains(text, "SALES.GOLD.V_GOLD_FACT_ITEM_ORDERED") {
		t.Fatalf("Resolve(default) source = %q", source)
	}
}

func TestResolveMissingFileIsError(t *testing.T) {
	if _, _, err := Resolve(Options{File: filepath.Join(t.TempDir(), "missing.txt"), Inline: "x"}); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}

func TestBuildAppendsToolInstructions(t *testing.T) {
	full := Build("You answer questions about orders.")
	if !strings.HasPrefix(full, "You answer questions about orders.\n") {
		t.Fatalf("Build() prefix = %q", full[:40])
	}
	if !strings.Contains(full, "<tool_call>") || !strings.Contains(full, "Only use SELECT or WITH") {
		t.Fatal("Build() missing tool instructions")
	}
	if Base(full) != "You answer questions about orders." {
		t.Fatalf("Base() = %q", Base(full))
	}
	if !strings.Contains(Build("  "), DefaultSchemaPrefix) {
		t.Fatal("Build(blank) should use the default context")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short\nprompt", 60); got != "short prompt" {
		t.Fatalf("Preview() = %q", got)
	}
	if got := Preview(strings.Repeat("a", 70), 60); got != strings.Repeat("a", 60)+"…" {
		t.Fatalf("Preview() = %q", got)
	}
}
