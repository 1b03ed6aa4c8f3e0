// Command smoke-guild drives one guild through its governance lifecycle
// against a running guildd started with auth.issueTokens and chain.manual.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type client struct {
	base string
	http *http.Client
}

func (c *client) call(ctx context.Context, method, path, token string, body, out any) int {
	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", path, err)
		}
		buf = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, buf)
	if err != nil {
		log.Fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (c *client) must(ctx context.Context, want int, method, path, token string, body, out any) {
	if got := c.call(ctx, method, path, token, body, out); got != want {
		log.Fatalf("%s %s: expected %d, got %d", method, path, want, got)
	}
}

func (c *client) token(ctx context.Context, principal string) string {
	var resp struct {
		Token string `json:"token"`
	}
	c.must(ctx, http.StatusOK, http.MethodPost, "/v1/auth/token", "", map[string]any{"principal": principal}, &resp)
	return resp.Token
}

func main() {
	base := os.Getenv("GUILDHALL_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	admin := os.Getenv("GUILDHALL_ADMIN")
	if admin == "" {
		admin = "root"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	rootTok := c.token(ctx, admin)
	suffix := time.Now().UnixNano()
	founder := fmt.Sprintf("smoke-founder-%d", suffix)
	joiner := fmt.Sprintf("smoke-joiner-%d", suffix)
	founderTok := c.token(ctx, founder)
	joinerTok := c.token(ctx, joiner)

	var g struct {
		ID uint64 `json:"id"`
	}
	c.must(ctx, http.StatusCreated, http.MethodPost, "/v1/guilds", founderTok,
		map[string]any{"name": "smoke", "description": "smoke test guild", "stake": 1_000_000}, &g)
	guildPath := fmt.Sprintf("/v1/guilds/%d", g.ID)

	c.must(ctx, http.StatusCreated, http.MethodPost, guildPath+"/join", joinerTok, map[string]any{"stake": 1_000_000}, nil)

	var p struct {
		ID        uint64 `json:"id"`
		ExpiresAt uint64 `json:"expires_at"`
	}
	c.must(ctx, http.StatusCreated, http.MethodPost, guildPath+"/proposals", founderTok,
		map[string]any{"title": "smoke proposal", "duration": 144, "action": "noop"}, &p)
	propPath := fmt.Sprintf("%s/proposals/%d", guildPath, p.ID)

	c.must(ctx, http.StatusCreated, http.MethodPost, propPath+"/votes", founderTok, map[string]any{"support": true}, nil)
	c.must(ctx, http.StatusCreated, http.MethodPost, propPath+"/votes", joinerTok, map[string]any{"support": false}, nil)
	c.must(ctx, http.StatusConflict, http.MethodPost, propPath+"/votes", joinerTok, map[string]any{"support": true}, nil)

	c.must(ctx, http.StatusOK, http.MethodPost, "/v1/height/advance", rootTok, map[string]any{"blocks": 144}, nil)

	var final struct {
		Status     string `json:"status"`
		YesPercent uint64 `json:"yes_percent"`
	}
	c.must(ctx, http.StatusOK, http.MethodPost, propPath+"/finalize", joinerTok, nil, &final)
	if final.Status != "passed" {
		log.Fatalf("expected proposal to pass, got %s (%d%%)", final.Status, final.YesPercent)
	}
	c.must(ctx, http.StatusOK, http.MethodPost, propPath+"/execute", founderTok, nil, nil)

	log.Printf("smoke OK: guild=%d proposal=%d yes=%d%%", g.ID, p.ID, final.YesPercent)
}
