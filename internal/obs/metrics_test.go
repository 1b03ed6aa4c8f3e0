package obs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                        "/",
		"/metrics":                                "/metrics",
		"/v1/guilds":                              "/v1/guilds",
		"/v1/guilds/count":                        "/v1/guilds/count",
		"/v1/guilds/7":                            "/v1/guilds/:id",
		"/v1/guilds/7/join":                       "/v1/guilds/:id/join",
		"/v1/guilds/7/members/alice/role":         "/v1/guilds/:id/members/:principal/role",
		"/v1/guilds/7/proposals/3/votes":          "/v1/guilds/:id/proposals/:id/votes",
		"/v1/guilds/7/proposals/3/votes/bob":      "/v1/guilds/:id/proposals/:id/votes/:principal",
		"/v1/guilds/7/assets/4/permissions/50":    "/v1/guilds/:id/assets/:id/permissions/:role",
		"/v1/guilds/7/proposals/3/finalize?x=1":   "/v1/guilds/:id/proposals/:id/finalize",
		"/v1/guilds/7/assets/4/access":            "/v1/guilds/:id/assets/:id/access",
		"/v1/guilds/7/members/carol/voting-power": "/v1/guilds/:id/members/:principal/voting-power",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestSetupLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	prev := SetupLogger(&buf, "warn")
	defer SetLogger(prev)

	Logger().Info("dropped")
	Logger().Warn("kept", slog.Int("guild_id", 3))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log is not a single JSON line: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "kept" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["guild_id"] != float64(3) {
		t.Fatalf("unexpected guild_id: %v", entry["guild_id"])
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	RecordOperation("create_guild", "ok")
	RecordVote(true, 31)
	RecordFinalized("passed")
	SetReady(true)
}

func TestInitBuildInfoKeepsOneSeries(t *testing.T) {
	InitBuildInfo(Build{Version: "v1", Commit: "abc", Backend: "memory"})
	InitBuildInfo(Build{Version: "v2", Commit: "def", Backend: "badger"})
	if n := testutil.CollectAndCount(buildInfo); n != 1 {
		t.Fatalf("expected a single build_info series, got %d", n)
	}
}
