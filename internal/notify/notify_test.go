package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/doodoori/doodoori-go/internal/loop"
)

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}

func TestSlackSend(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s", r.Method)
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewSlack(server.URL).Send(Notification{
		Title:   "Task completed",
		Message: "backend finished",
		Kind:    KindSuccess,
		TaskID:  "backend",
	})
	if err != nil {
		t.Fatal(err)
	}

	var msg map[string]any
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatal(err)
	}
	if msg["text"] != "Task completed" {
		t.Errorf("text = %v", msg["text"])
	}
}

func TestSlackErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if err := NewSlack(server.URL).Send(Notification{Title: "x"}); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestSlackDisabledWithoutURL(t *testing.T) {
	if err := NewSlack("").Send(Notification{Title: "x"}); err != nil {
		t.Errorf("empty webhook should be a no-op, got %v", err)
	}
}

func TestSlackColors(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindSuccess, "good"},
		{KindWarning, "warning"},
		{KindError, "danger"},
		{KindInfo, "#439FE0"},
	}
	for _, tt := range tests {
		if got := SlackColor(tt.kind); got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestMultiSendsToAll(t *testing.T) {
	var called []string
	multi := NewMulti(
		&mockNotifier{name: "a", calls: &called},
		&mockNotifier{name: "b", calls: &called},
	)

	multi.Send(Notification{Title: "x"})

	if len(called) != 2 {
		t.Errorf("calls = %v", called)
	}
}

func TestFiltered(t *testing.T) {
	var called []string
	inner := &mockNotifier{name: "inner", calls: &called}
	filtered := NewFiltered(inner, []string{"completed", "error"})

	filtered.Send(Notification{Event: "completed"})
	filtered.Send(Notification{Event: "started"})
	filtered.Send(Notification{Event: "error"})

	if len(called) != 2 {
		t.Errorf("calls = %d, want started filtered out", len(called))
	}
}

func TestFilteredEmptyAllowsAll(t *testing.T) {
	var called []string
	filtered := NewFiltered(&mockNotifier{name: "inner", calls: &called}, nil)

	filtered.Send(Notification{Event: "anything"})
	if len(called) != 1 {
		t.Error("empty event list should allow everything")
	}
}

func TestFromResult(t *testing.T) {
	tests := []struct {
		status    loop.Status
		wantKind  Kind
		wantEvent string
	}{
		{loop.StatusCompleted, KindSuccess, "completed"},
		{loop.StatusBudgetExceeded, KindWarning, "budget_exceeded"},
		{loop.StatusMaxIterations, KindWarning, "max_iterations"},
		{loop.StatusError, KindError, "error"},
		{loop.StatusStopped, KindInfo, "stopped"},
	}
	for _, tt := range tests {
		n := FromResult("backend", &loop.Result{Status: tt.status, Iterations: 3})
		if n.Kind != tt.wantKind || n.Event != tt.wantEvent {
			t.Errorf("%s: kind=%v event=%s", tt.status, n.Kind, n.Event)
		}
		if !strings.Contains(n.Message, "backend") {
			t.Errorf("%s: message = %q", tt.status, n.Message)
		}
	}
}
