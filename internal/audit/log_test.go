package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"guildhall.org/internal/auth"
	"guildhall.org/internal/guild"
	"guildhall.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := obs.SetupLogger(&buf, "info")
	t.Cleanup(func() { obs.SetLogger(prev) })
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log not valid JSON: %v", err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, "alice")

	if err := LogEvent(ctx, "guild.created", map[string]any{"guild_id": 7}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "guild.created" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["principal"] != "alice" {
		t.Fatalf("unexpected principal: %v", entry["principal"])
	}
	if entry["audit_id"] == "" || entry["audit_id"] == nil {
		t.Fatalf("missing audit id")
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["guild_id"] != float64(7) {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), " ", nil); err == nil {
		t.Fatalf("expected error for empty event")
	}
}

func TestOutcomeRecordsDenials(t *testing.T) {
	buf := captureLog(t)
	ctx := auth.ContextWithPrincipal(context.Background(), "mallory")

	Outcome(ctx, "member.invited", map[string]any{"guild_id": 1}, guild.ErrNotAuthorized)
	Outcome(ctx, "member.invited", nil, context.Canceled)

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected only the domain denial to be logged, got %d", len(entries))
	}
	if entries[0]["event"] != "member.invited.denied" {
		t.Fatalf("unexpected event: %v", entries[0]["event"])
	}
	fields := entries[0]["fields"].(map[string]any)
	if fields["code"] != float64(100) {
		t.Fatalf("unexpected code: %v", fields["code"])
	}
}
