package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codelab/internal/cli/command"
	httpclient "codelab/internal/cli/http"
	"codelab/internal/cli/state"
	"codelab/internal/cli/workspace"
	"codelab/internal/engine"
)

const helloProgram = "#include <stdio.h>\nint main() {\n    int n = 3;\n    printf(\"n=%d\\n\", n);\n    return 0;\n}\n"

type recorded struct {
	method string
	path   string
	auth   string
	body   string
}

func newSession(t *testing.T, handler http.HandlerFunc) (*Session, *bytes.Buffer, string) {
	t.Helper()
	var client *httpclient.Client
	tokenState := &state.TokenState{}
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		client = httpclient.New(srv.URL, time.Second, func() string { return tokenState.AccessToken })
	}
	out := &bytes.Buffer{}
	statePath := filepath.Join(t.TempDir(), "state.json")
	s := New(Options{
		Client:     client,
		Commands:   command.Registry(),
		Workspace:  workspace.New(engine.DefaultLimits()),
		TokenState: tokenState,
		StatePath:  statePath,
		Out:        out,
	})
	return s, out, statePath
}

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.c")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write program failed: %v", err)
	}
	return path
}

func TestLocalCommands(t *testing.T) {
	s, out, _ := newSession(t, nil)
	ctx := context.Background()
	path := writeProgram(t, helloProgram)

	steps := []struct {
		line string
		want string
	}{
		{"load " + path, "loaded"},
		{"validate", "ok"},
		{"run", "n=3\n--- Accepted"},
		{"env", "int n = 3"},
		{`expect 'n=3\n'`, "expected output set (4 bytes)"},
		{"judge", "PASS"},
		{"expect n=4", "expected output set"},
		{"judge", "FAIL"},
		{"set loops 5", "loops limit set to 5"},
		{"limits", "loops: 5"},
		{"set cells 8", "cells limit set to 8"},
		{"limits", "cells: 8"},
		{"show source", "   2  int main() {"},
		{"show token", "token: <empty>"},
	}
	for _, step := range steps {
		out.Reset()
		if err := s.Execute(ctx, step.line); err != nil {
			t.Fatalf("%s: %v", step.line, err)
		}
		if !strings.Contains(out.String(), step.want) {
			t.Fatalf("%s: output %q does not contain %q", step.line, out.String(), step.want)
		}
	}
}

func TestLocalCommandErrors(t *testing.T) {
	s, _, _ := newSession(t, nil)
	ctx := context.Background()
	tests := []struct {
		line string
		want string
	}{
		{"run", "no program loaded"},
		{"load", "usage: load"},
		{"set loops x", "invalid loops limit"},
		{"set base http://x", "no server configured"},
		{"bogus", "unknown command"},
		{"code run code=x", "no server configured"},
		{"nope nope", "unknown command: nope nope"},
		{`load "unterminated`, "parse command failed"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			err := s.Execute(ctx, tt.line)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
	if err := s.Execute(ctx, "exit"); !errors.Is(err, errQuit) {
		t.Fatalf("exit should quit, got %v", err)
	}
}

func TestRemoteCommandUsesWorkspaceSource(t *testing.T) {
	var got recorded
	s, out, _ := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = recorded{method: r.Method, path: r.URL.RequestURI(), body: string(body)}
		_, _ = w.Write([]byte(`{"code":10000,"message":"success","data":{"output":"n=3\n"}}`))
	})
	ctx := context.Background()
	if err := s.Execute(ctx, "load "+writeProgram(t, helloProgram)); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	out.Reset()
	if err := s.Execute(ctx, "code run"); err != nil {
		t.Fatalf("code run failed: %v", err)
	}
	if got.method != http.MethodPost || got.path != "/api/v1/run" {
		t.Fatalf("unexpected request %+v", got)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(got.body), &payload); err != nil || payload["code"] != helloProgram {
		t.Fatalf("unexpected payload %s", got.body)
	}
	if !strings.Contains(out.String(), "HTTP 200") {
		t.Fatalf("unexpected output %s", out.String())
	}
}

func TestRemoteCommandPromptsMissingFields(t *testing.T) {
	var got recorded
	s, _, _ := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		got = recorded{method: r.Method, path: r.URL.Path}
		_, _ = w.Write([]byte(`{"code":10000,"message":"success"}`))
	})
	var prompts []string
	s.readLine = func(p string) (string, error) {
		prompts = append(prompts, p)
		return " hello-world \n", nil
	}
	if err := s.Execute(context.Background(), "exercise get"); err != nil {
		t.Fatalf("exercise get failed: %v", err)
	}
	if len(prompts) != 1 || prompts[0] != "exercise_id: " {
		t.Fatalf("unexpected prompts %v", prompts)
	}
	if got.path != "/api/v1/exercises/hello-world" {
		t.Fatalf("unexpected path %s", got.path)
	}
}

func TestAuthCommandsAndLogout(t *testing.T) {
	var got recorded
	s, out, statePath := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		got = recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		_, _ = w.Write([]byte(`{"code":10000,"message":"success"}`))
	})
	ctx := context.Background()

	err := s.Execute(ctx, "submission get id=abc")
	if err == nil || !strings.Contains(err.Error(), "requires a token") {
		t.Fatalf("expected token error, got %v", err)
	}

	if err := s.Execute(ctx, "set token abcdefghijklmnop"); err != nil {
		t.Fatalf("set token failed: %v", err)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("token state should be saved: %v", err)
	}
	out.Reset()
	if err := s.Execute(ctx, "show token"); err != nil || !strings.Contains(out.String(), "abcdef...mnop") {
		t.Fatalf("unexpected masked token %q, %v", out.String(), err)
	}

	if err := s.Execute(ctx, "submission get id=abc"); err != nil {
		t.Fatalf("submission get failed: %v", err)
	}
	if got.auth != "Bearer abcdefghijklmnop" || got.path != "/api/v1/submissions/abc" {
		t.Fatalf("unexpected request %+v", got)
	}

	if err := s.Execute(ctx, "auth logout"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if s.tokenState.AccessToken != "" {
		t.Fatalf("logout should clear the token")
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Fatalf("logout should remove token state, got %v", err)
	}
}

func TestFetch(t *testing.T) {
	s, _, _ := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/exercises/hello" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":12000,"message":"exercise not found"}`))
			return
		}
		data, _ := json.Marshal(map[string]interface{}{
			"code":    10000,
			"message": "success",
			"data": map[string]string{
				"id":              "hello",
				"title":           "Hello",
				"starter_code":    helloProgram,
				"expected_output": "n=3",
			},
		})
		_, _ = w.Write(data)
	})
	ctx := context.Background()
	if err := s.Execute(ctx, "fetch hello"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	src, origin := s.ws.Source()
	if src != helloProgram || origin != "exercise:hello" {
		t.Fatalf("unexpected source %q from %s", src, origin)
	}
	if _, passed, err := s.ws.Judge(); err != nil || !passed {
		t.Fatalf("fetched exercise should pass, got %v, %v", passed, err)
	}
	if err := s.Execute(ctx, "fetch missing"); err == nil || !strings.Contains(err.Error(), "exercise not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}
