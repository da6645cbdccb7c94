package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"
)

// sessionNamespace is a fixed UUID namespace for deterministic session
// ids, so the same task key always resumes the same session.
var sessionNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// SessionID derives a deterministic session id from a task key.
func SessionID(key string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(key)).String()
}

// Config controls a single claude CLI invocation.
type Config struct {
	Model        Model
	WorkingDir   string
	SessionID    string
	YoloMode     bool   // skip permission prompts
	AllowedTools string // comma-separated tool allowlist
	Executable   string // defaults to "claude"
}

// Usage holds token and cost totals reported by a run.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	TotalCostUSD        float64
	DurationMS          int64
}

// Add accumulates another run's usage into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.TotalCostUSD += other.TotalCostUSD
	u.DurationMS += other.DurationMS
}

// EventType classifies a stream-json line.
type EventType string

const (
	EventSystem    EventType = "system"
	EventAssistant EventType = "assistant"
	EventResult    EventType = "result"
	EventUnknown   EventType = "unknown"
)

// Event is one parsed line of claude's stream-json output.
type Event struct {
	Type EventType
	Text string // assistant text, empty for other types
	Raw  string // original JSON line
}

// Result is the outcome of a finished run.
type Result struct {
	Usage  Usage
	Output string // concatenated assistant text
}

// Runner executes the claude CLI in non-interactive stream-json mode.
type Runner struct {
	config Config
}

func NewRunner(config Config) *Runner {
	return &Runner{config: config}
}

func (r *Runner) executable() string {
	if r.config.Executable != "" {
		return r.config.Executable
	}
	return "claude"
}

func (r *Runner) buildArgs(prompt string) []string {
	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
		"--model", r.config.Model.String(),
	}
	if r.config.YoloMode {
		args = append(args, "--dangerously-skip-permissions")
	}
	if r.config.SessionID != "" {
		args = append(args, "--session-id", r.config.SessionID)
	}
	if r.config.AllowedTools != "" {
		args = append(args, "--allowed-tools", r.config.AllowedTools)
	}
	return append(args, "-p", prompt)
}

// Run executes one claude invocation. Parsed events are sent to the
// events channel when non-nil; the channel is not closed. The returned
// Result carries the assistant output and the usage reported by the
// final result message.
func (r *Runner) Run(ctx context.Context, prompt string, events chan<- Event) (*Result, error) {
	cmd := exec.CommandContext(ctx, r.executable(), r.buildArgs(prompt)...)
	if r.config.WorkingDir != "" {
		cmd.Dir = r.config.WorkingDir
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", r.executable(), err)
	}

	result := &Result{}
	var output strings.Builder

	scanner := bufio.NewScanner(stdout)
	// stream-json lines can be very long
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		event := parseEvent(line)
		if event.Type == EventAssistant {
			output.WriteString(event.Text)
		}
		if event.Type == EventResult {
			if usage, ok := parseUsage(line); ok {
				result.Usage = usage
			}
		}
		if events != nil {
			select {
			case events <- event:
			case <-ctx.Done():
				// Cancelled consumers stop draining; drop the event.
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", r.executable(), err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", r.executable(), err)
	}

	result.Output = output.String()
	return result, nil
}

// streamMessage covers the stream-json shapes we care about: the
// assistant messages carrying text and the final result message
// carrying usage and cost.
type streamMessage struct {
	Type    string `json:"type"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Usage struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	} `json:"usage"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	CostUSD      float64 `json:"cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
}

func parseEvent(line string) Event {
	var msg streamMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return Event{Type: EventUnknown, Raw: line}
	}

	switch msg.Type {
	case "system":
		return Event{Type: EventSystem, Raw: line}
	case "assistant":
		var text strings.Builder
		for _, content := range msg.Message.Content {
			if content.Type == "text" {
				text.WriteString(content.Text)
			}
		}
		return Event{Type: EventAssistant, Text: text.String(), Raw: line}
	case "result":
		return Event{Type: EventResult, Raw: line}
	default:
		return Event{Type: EventUnknown, Raw: line}
	}
}

func parseUsage(line string) (Usage, bool) {
	var msg streamMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return Usage{}, false
	}
	if msg.Type != "result" {
		return Usage{}, false
	}

	cost := msg.TotalCostUSD
	if cost == 0 {
		cost = msg.CostUSD
	}
	return Usage{
		InputTokens:         msg.Usage.InputTokens,
		OutputTokens:        msg.Usage.OutputTokens,
		CacheCreationTokens: msg.Usage.CacheCreationInputTokens,
		CacheReadTokens:     msg.Usage.CacheReadInputTokens,
		TotalCostUSD:        cost,
		DurationMS:          msg.DurationMS,
	}, true
}
