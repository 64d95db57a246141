package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"codelab/internal/cli/command"
	httpclient "codelab/internal/cli/http"
	"codelab/internal/cli/state"
	"codelab/internal/cli/workspace"
	"codelab/internal/engine"
	pkgerrors "codelab/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "codelab> "

// errQuit ends the session loop.
var errQuit = errors.New("quit")

// Options configures a Session.
type Options struct {
	Client      *httpclient.Client
	Commands    map[string]command.Command
	Workspace   *workspace.Workspace
	TokenState  *state.TokenState
	StatePath   string
	HistoryFile string
	PrettyJSON  bool
	Out         io.Writer
}

// Session holds REPL state.
type Session struct {
	client      *httpclient.Client
	commands    map[string]command.Command
	ws          *workspace.Workspace
	tokenState  *state.TokenState
	statePath   string
	historyFile string
	prettyJSON  bool
	out         io.Writer
	// readLine asks for one more line with its own prompt.
	readLine func(prompt string) (string, error)
}

func New(opts Options) *Session {
	s := &Session{
		client:      opts.Client,
		commands:    opts.Commands,
		ws:          opts.Workspace,
		tokenState:  opts.TokenState,
		statePath:   opts.StatePath,
		historyFile: opts.HistoryFile,
		prettyJSON:  opts.PrettyJSON,
		out:         opts.Out,
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.tokenState == nil {
		s.tokenState = &state.TokenState{}
	}
	if s.ws == nil {
		s.ws = workspace.New(engine.DefaultLimits())
	}
	s.readLine = func(string) (string, error) {
		return "", fmt.Errorf("interactive input unavailable")
	}
	return s
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     s.historyFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          s.out,
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s.readLine = func(p string) (string, error) {
		rl.SetPrompt(p)
		defer rl.SetPrompt(prompt)
		return rl.Readline()
	}

	s.printLine("codelab shell, type 'help' for commands")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				s.printLine("bye")
				return nil
			}
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) completer() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("load"),
		readline.PcItem("fetch"),
		readline.PcItem("run"),
		readline.PcItem("validate"),
		readline.PcItem("expect"),
		readline.PcItem("judge"),
		readline.PcItem("env"),
		readline.PcItem("limits"),
		readline.PcItem("set",
			readline.PcItem("loops"), readline.PcItem("output"), readline.PcItem("cells"),
			readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show",
			readline.PcItem("source"), readline.PcItem("expected"),
			readline.PcItem("token"), readline.PcItem("config")),
	}
	services := map[string][]readline.PrefixCompleterInterface{}
	var order []string
	for _, cmd := range command.Sorted(s.commands) {
		if _, ok := services[cmd.Service]; !ok {
			order = append(order, cmd.Service)
		}
		services[cmd.Service] = append(services[cmd.Service], readline.PcItem(cmd.Action))
	}
	for _, svc := range order {
		items = append(items, readline.PcItem(svc, services[svc]...))
	}
	return readline.NewPrefixCompleter(items...)
}

// Execute handles one input line.
func (s *Session) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	args := tokens[1:]
	switch tokens[0] {
	case "exit", "quit":
		return errQuit
	case "help":
		s.printHelp()
		return nil
	case "load":
		return s.handleLoad(args)
	case "fetch":
		return s.handleFetch(ctx, args)
	case "run":
		return s.handleRun()
	case "validate":
		return s.handleValidate()
	case "expect":
		return s.handleExpect(args)
	case "judge":
		return s.handleJudge()
	case "env":
		return s.handleEnv()
	case "limits":
		limits := s.ws.Limits()
		s.printLine("loops: %d", limits.MaxLoopIterations)
		s.printLine("output: %d bytes", limits.MaxOutputBytes)
		s.printLine("cells: %d", limits.MaxArrayCells)
		return nil
	case "set":
		return s.handleSet(args)
	case "show":
		return s.handleShow(args)
	}
	return s.handleCommand(ctx, tokens)
}

func (s *Session) handleLoad(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: load <file>")
	}
	if err := s.ws.LoadFile(args[0]); err != nil {
		return err
	}
	src, _ := s.ws.Source()
	s.printLine("loaded %s (%d lines)", args[0], strings.Count(src, "\n")+1)
	return nil
}

func (s *Session) handleRun() error {
	res, err := s.ws.Run()
	if err != nil {
		return err
	}
	workspace.Render(s.out, res)
	return nil
}

func (s *Session) handleValidate() error {
	v, err := s.ws.Validate()
	if err != nil {
		return err
	}
	if v.OK {
		s.printLine("ok")
		return nil
	}
	s.printLine("%s", v.Diagnostic)
	return nil
}

// handleExpect sets the expected output. "@path" reads it from a file and
// "\n" in inline text stands for a newline.
func (s *Session) handleExpect(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: expect <text> | expect @<file>")
	}
	if len(args) == 1 && strings.HasPrefix(args[0], "@") {
		text, err := command.ReadFile(strings.TrimPrefix(args[0], "@"))
		if err != nil {
			return err
		}
		s.ws.SetExpected(text)
		s.printLine("expected output set (%d bytes)", len(text))
		return nil
	}
	text := strings.ReplaceAll(strings.Join(args, " "), `\n`, "\n")
	s.ws.SetExpected(text)
	s.printLine("expected output set (%d bytes)", len(text))
	return nil
}

func (s *Session) handleJudge() error {
	res, passed, err := s.ws.Judge()
	if err != nil {
		return err
	}
	workspace.Render(s.out, res)
	s.printLine("%s", workspace.Verdict(passed))
	return nil
}

func (s *Session) handleEnv() error {
	bindings, err := s.ws.Env()
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		s.printLine("no leading declarations")
		return nil
	}
	for _, b := range bindings {
		s.printLine("%s", b)
	}
	return nil
}

// handleFetch loads an exercise's starter code and expected output from the
// server into the workspace.
func (s *Session) handleFetch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fetch <exercise_id>")
	}
	if s.client == nil {
		return fmt.Errorf("no server configured")
	}
	cmd := s.commands["exercise get"]
	req, err := command.BuildRequest(cmd, command.Params{"id": args[0]})
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	env, err := resp.Envelope()
	if err != nil {
		return err
	}
	if env.Code != int(pkgerrors.Success) {
		return fmt.Errorf("fetch failed: %s (code %d)", env.Message, env.Code)
	}
	var exercise struct {
		ID             string `json:"id"`
		Title          string `json:"title"`
		StarterCode    string `json:"starter_code"`
		ExpectedOutput string `json:"expected_output"`
	}
	if err := json.Unmarshal(env.Data, &exercise); err != nil {
		return fmt.Errorf("decode exercise failed: %w", err)
	}
	s.ws.SetSource(exercise.StarterCode, "exercise:"+exercise.ID)
	s.ws.SetExpected(exercise.ExpectedOutput)
	s.printLine("fetched %q", exercise.Title)
	return nil
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set loops|output|cells|base|timeout|token <value>")
	}
	value := args[1]
	switch args[0] {
	case "loops", "output", "cells":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s limit: %s", args[0], value)
		}
		switch args[0] {
		case "loops":
			s.ws.SetLimits(engine.Limits{MaxLoopIterations: n})
		case "output":
			s.ws.SetLimits(engine.Limits{MaxOutputBytes: n})
		default:
			s.ws.SetLimits(engine.Limits{MaxArrayCells: n})
		}
		s.printLine("%s limit set to %d", args[0], n)
	case "base":
		if s.client == nil {
			return fmt.Errorf("no server configured")
		}
		s.client.SetBaseURL(value)
		s.printLine("base set to %s", value)
	case "timeout":
		if s.client == nil {
			return fmt.Errorf("no server configured")
		}
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		s.tokenState.AccessToken = value
		s.tokenState.ExpiresAt = time.Time{}
		if s.statePath != "" {
			if err := state.Save(s.statePath, *s.tokenState); err != nil {
				return fmt.Errorf("save token failed: %w", err)
			}
		}
		s.printLine("token updated")
	default:
		return fmt.Errorf("unknown set target %q", args[0])
	}
	return nil
}

func (s *Session) handleShow(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: show source|expected|token|config")
	}
	switch args[0] {
	case "source":
		src, origin := s.ws.Source()
		if src == "" {
			return workspace.ErrNoSource
		}
		s.printLine("// %s", origin)
		for i, line := range strings.Split(strings.TrimRight(src, "\n"), "\n") {
			s.printLine("%4d  %s", i+1, line)
		}
	case "expected":
		expected, ok := s.ws.Expected()
		if !ok {
			return workspace.ErrNoExpected
		}
		s.printLine("%s", expected)
	case "token":
		if s.tokenState.AccessToken == "" {
			s.printLine("token: <empty>")
			return nil
		}
		token := s.tokenState.AccessToken
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s", token)
	case "config":
		if s.client != nil {
			s.printLine("baseURL: %s", s.client.BaseURL())
		}
		s.printLine("tokenStatePath: %s", s.statePath)
		s.printLine("historyFile: %s", s.historyFile)
	default:
		return fmt.Errorf("usage: show source|expected|token|config")
	}
	return nil
}

func (s *Session) handleCommand(ctx context.Context, tokens []string) error {
	if len(tokens) < 2 {
		return fmt.Errorf("unknown command %q, type 'help'", tokens[0])
	}
	key := tokens[0] + " " + tokens[1]
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	if s.client == nil {
		return fmt.Errorf("no server configured")
	}
	params, err := command.ParseArgs(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	s.applyWorkspaceSource(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if cmd.RequiresAuth && s.tokenState.AccessToken == "" {
		return fmt.Errorf("%s requires a token, use 'set token <access_token>'", key)
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.updateTokenFromResponse(cmd, resp)
	return nil
}

// applyWorkspaceSource sends the loaded program when a code command names no
// code of its own.
func (s *Session) applyWorkspaceSource(cmd command.Command, params command.Params) {
	if params.Get("code") != "" || params.Get("file") != "" {
		return
	}
	for _, field := range cmd.Fields {
		if field.Name != "code" {
			continue
		}
		if src, _ := s.ws.Source(); src != "" {
			params.Set("code", src)
		}
		return
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		if field.Name == "code" && params.Get("file") != "" {
			continue
		}
		value, err := s.readLine(field.Prompt + ": ")
		if err != nil {
			return fmt.Errorf("missing %s: %w", field.Name, err)
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration.Round(time.Millisecond))
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) updateTokenFromResponse(cmd command.Command, resp httpclient.ResponseInfo) {
	if cmd.Key() != "auth logout" {
		return
	}
	env, err := resp.Envelope()
	if err != nil || env.Code != int(pkgerrors.Success) {
		return
	}
	*s.tokenState = state.TokenState{}
	if s.statePath != "" {
		_ = state.Clear(s.statePath)
	}
}

func (s *Session) printHelp() {
	s.printLine("local:")
	s.printLine("  load <file>            load a program into the workspace")
	s.printLine("  fetch <exercise_id>    load starter code and expected output from the server")
	s.printLine("  run | validate | judge run, check or grade the loaded program")
	s.printLine("  expect <text>|@<file>  set the expected output")
	s.printLine("  env                    show the leading declarations of main")
	s.printLine("  limits | set loops|output|cells <n>")
	s.printLine("  show source|expected|token|config")
	s.printLine("  set base|timeout|token <value> | help | exit")
	s.printLine("remote: <service> <action> key=value ...")
	for _, cmd := range command.Sorted(s.commands) {
		s.printLine("  %-20s %s", cmd.Key(), cmd.Summary)
	}
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
