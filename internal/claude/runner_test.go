package claude

import (
	"slices"
	"testing"
)

func TestSessionIDDeterministic(t *testing.T) {
	a := SessionID("task-1")
	b := SessionID("task-1")
	if a != b {
		t.Errorf("session ids differ: %s vs %s", a, b)
	}
	if a == SessionID("task-2") {
		t.Error("different keys should yield different session ids")
	}
}

func TestBuildArgs(t *testing.T) {
	r := NewRunner(Config{
		Model:     ModelSonnet,
		SessionID: "abc",
		YoloMode:  true,
	})

	args := r.buildArgs("do the thing")

	for _, want := range []string{
		"--print", "--verbose", "--output-format", "stream-json",
		"--model", "sonnet",
		"--dangerously-skip-permissions",
		"--session-id", "abc",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	if args[len(args)-2] != "-p" || args[len(args)-1] != "do the thing" {
		t.Errorf("prompt should be the final argument: %v", args)
	}
}

func TestBuildArgsMinimal(t *testing.T) {
	r := NewRunner(Config{Model: ModelHaiku})
	args := r.buildArgs("x")

	if slices.Contains(args, "--dangerously-skip-permissions") {
		t.Error("yolo flag should be absent by default")
	}
	if slices.Contains(args, "--session-id") {
		t.Error("session flag should be absent without a session id")
	}
}

func TestParseEventAssistant(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}]}}`
	event := parseEvent(line)
	if event.Type != EventAssistant {
		t.Fatalf("type = %s", event.Type)
	}
	if event.Text != "hello world" {
		t.Errorf("text = %q", event.Text)
	}
}

func TestParseEventUnknown(t *testing.T) {
	if event := parseEvent("not json at all"); event.Type != EventUnknown {
		t.Errorf("type = %s", event.Type)
	}
	if event := parseEvent(`{"type":"tool_use"}`); event.Type != EventUnknown {
		t.Errorf("type = %s", event.Type)
	}
}

func TestParseUsage(t *testing.T) {
	line := `{"type":"result","subtype":"success","total_cost_usd":0.42,"duration_ms":1234,` +
		`"usage":{"input_tokens":100,"output_tokens":50,"cache_creation_input_tokens":10,"cache_read_input_tokens":5}}`

	usage, ok := parseUsage(line)
	if !ok {
		t.Fatal("expected usage from result line")
	}
	if usage.InputTokens != 100 || usage.OutputTokens != 50 {
		t.Errorf("tokens = %d/%d", usage.InputTokens, usage.OutputTokens)
	}
	if usage.CacheCreationTokens != 10 || usage.CacheReadTokens != 5 {
		t.Errorf("cache tokens = %d/%d", usage.CacheCreationTokens, usage.CacheReadTokens)
	}
	if usage.TotalCostUSD != 0.42 {
		t.Errorf("cost = %f", usage.TotalCostUSD)
	}
	if usage.DurationMS != 1234 {
		t.Errorf("duration = %d", usage.DurationMS)
	}
}

func TestParseUsageLegacyCostField(t *testing.T) {
	line := `{"type":"result","cost_usd":0.10,"usage":{"input_tokens":1,"output_tokens":2}}`
	usage, ok := parseUsage(line)
	if !ok {
		t.Fatal("expected usage")
	}
	if usage.TotalCostUSD != 0.10 {
		t.Errorf("cost = %f", usage.TotalCostUSD)
	}
}

func TestParseUsageNonResult(t *testing.T) {
	if _, ok := parseUsage(`{"type":"assistant"}`); ok {
		t.Error("non-result lines should not yield usage")
	}
}

func TestUsageAdd(t *testing.T) {
	total := Usage{}
	total.Add(Usage{InputTokens: 10, OutputTokens: 5, TotalCostUSD: 0.1, DurationMS: 100})
	total.Add(Usage{InputTokens: 20, OutputTokens: 15, TotalCostUSD: 0.2, DurationMS: 200})

	if total.InputTokens != 30 || total.OutputTokens != 20 {
		t.Errorf("tokens = %d/%d", total.InputTokens, total.OutputTokens)
	}
	if total.TotalCostUSD < 0.29 || total.TotalCostUSD > 0.31 {
		t.Errorf("cost = %f", total.TotalCostUSD)
	}
	if total.DurationMS != 300 {
		t.Errorf("duration = %d", total.DurationMS)
	}
}
