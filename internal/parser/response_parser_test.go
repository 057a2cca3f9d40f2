package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/loomhq/loom/internal/tools"
)

func TestParse_ProseOnlyHasNoCommand(t *testing.T) {
	got := Parse("I think the answer is probably in the README.")
	if got.Command != nil {
		t.Fatalf("expected no command, got %+v", got.Command)
	}
	if got.Prose == "" {
		t.Fatal("expected prose to survive")
	}
}

func TestParse_ExtractsActionObject(t *testing.T) {
	got := Parse(`Sure, let me check that file. {"action":"read_file","parameters":{"path":"main.go"}}`)

	want := &tools.Command{
		Action:     "read_file",
		Parameters: map[string]any{"path": "main.go"},
	}
	if diff := cmp.Diff(want, got.Command); diff != "" {
		t.Fatalf("command mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_FencedJSONBlockIsExtracted(t *testing.T) {
	raw := "Here's the plan:\n```json\n{\"action\":\"task_complete\",\"parameters\":{\"answer\":\"done\"}}\n```"
	got := Parse(raw)

	want := &tools.Command{
		Action:     "task_complete",
		Parameters: map[string]any{"answer": "done"},
	}
	if diff := cmp.Diff(want, got.Command); diff != "" {
		t.Fatalf("command mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_TolerantOfTrailingCommasAndUnquotedKeys(t *testing.T) {
	raw := `{"action": "list_directory", parameters: {path: "/tmp",},}`
	got := Parse(raw)

	if got.Command == nil {
		t.Fatal("expected the repair pass to recover a command")
	}
	if got.Command.Action != "list_directory" {
		t.Fatalf("unexpected action: %s", got.Command.Action)
	}
}

func TestParse_PayloadMaskingSurvivesEmbeddedBraces(t *testing.T) {
	raw := "{\"action\":\"write_file\",\"parameters\":{\"path\":\"a.go\",\"content\":\"<<<PAYLOAD_0>>>func f() { return 1 }<<<END_PAYLOAD_0>>>\"}}"
	got := Parse(raw)

	if got.Command == nil {
		t.Fatal("expected a command despite braces inside the payload")
	}
	content, _ := got.Command.Parameters["content"].(string)
	if content != "func f() { return 1 }" {
		t.Fatalf("payload not rehydrated correctly: %q", content)
	}
}

func TestParse_GreetingWithNoCommandCleansUpProse(t *testing.T) {
	got := Parse("Got it.")
	if got.Command != nil {
		t.Fatalf("expected no command for a bare greeting, got %+v", got.Command)
	}
}
