package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"codelab/internal/cli/command"
	"codelab/internal/cli/config"
	httpclient "codelab/internal/cli/http"
	"codelab/internal/cli/repl"
	"codelab/internal/cli/state"
	"codelab/internal/cli/workspace"
	"codelab/internal/engine"
)

const defaultConfigPath = "configs/cli.yaml"

const usage = `usage: codelab [flags] <command> [args]

commands:
  run <file>                   run a program and print its output
  validate <file>              check program structure only
  judge <file> <expected-file> run a program and compare its output
  repl                         interactive shell (default)

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("codelab", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	baseURL := fs.String("base", "", "Override base URL")
	timeout := fs.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	token := fs.String("token", "", "Override access token")
	statePath := fs.String("state", "", "Override token state path")
	loops := fs.Int("loops", 0, "Override loop iteration budget")
	output := fs.Int("output", 0, "Override output byte limit")
	cells := fs.Int("cells", 0, "Override array cell budget")
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config failed: %v\n", err)
		return 1
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.TokenStatePath = *statePath
	}
	if *loops > 0 {
		cfg.Engine.MaxLoopIterations = *loops
	}
	if *output > 0 {
		cfg.Engine.MaxOutputBytes = *output
	}
	if *cells > 0 {
		cfg.Engine.MaxArrayCells = *cells
	}

	ws := workspace.New(cfg.Engine)
	rest := fs.Args()
	if len(rest) == 0 {
		rest = []string{"repl"}
	}

	switch rest[0] {
	case "run":
		if len(rest) != 2 {
			fs.Usage()
			return 2
		}
		return runFile(ws, rest[1], stdout, stderr)
	case "validate":
		if len(rest) != 2 {
			fs.Usage()
			return 2
		}
		return validateFile(ws, rest[1], stdout, stderr)
	case "judge":
		if len(rest) != 3 {
			fs.Usage()
			return 2
		}
		return judgeFile(ws, rest[1], rest[2], stdout, stderr)
	case "repl":
		return startREPL(cfg, ws, *token, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		fs.Usage()
		return 2
	}
}

func runFile(ws *workspace.Workspace, path string, stdout, stderr io.Writer) int {
	if err := ws.LoadFile(path); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	res, err := ws.Run()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	workspace.Render(stdout, res)
	if res.Status != engine.StatusAccepted {
		return 1
	}
	return 0
}

func validateFile(ws *workspace.Workspace, path string, stdout, stderr io.Writer) int {
	if err := ws.LoadFile(path); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	v, err := ws.Validate()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	if !v.OK {
		_, _ = fmt.Fprintln(stdout, v.Diagnostic)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "ok")
	return 0
}

func judgeFile(ws *workspace.Workspace, path, expectedPath string, stdout, stderr io.Writer) int {
	if err := ws.LoadFile(path); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	expected, err := command.ReadFile(expectedPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	ws.SetExpected(expected)
	res, passed, err := ws.Judge()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	workspace.Render(stdout, res)
	_, _ = fmt.Fprintln(stdout, workspace.Verdict(passed))
	if !passed {
		return 1
	}
	return 0
}

func startREPL(cfg config.Config, ws *workspace.Workspace, token string, stdout, stderr io.Writer) int {
	tokenState, err := state.Load(cfg.TokenStatePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load token state failed: %v\n", err)
		return 1
	}
	if token != "" {
		tokenState.AccessToken = token
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return tokenState.AccessToken
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	session := repl.New(repl.Options{
		Client:      client,
		Commands:    command.Registry(),
		Workspace:   ws,
		TokenState:  &tokenState,
		StatePath:   cfg.TokenStatePath,
		HistoryFile: cfg.HistoryFile,
		PrettyJSON:  cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		Out:         stdout,
	})
	if err := session.Run(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
