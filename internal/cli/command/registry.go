package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Registry returns all remote commands keyed by "service action".
func Registry() map[string]Command {
	codeFields := []Field{
		{Name: "code", Prompt: "code", Type: FieldString, Required: true},
		{Name: "file", Aliases: []string{"source_file"}, Prompt: "file", Type: FieldFile},
	}
	commands := []Command{
		{
			Service:      "exercise",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/exercises",
			Summary:      "list exercises [difficulty=easy|medium|hard] [tag=..] [q=..]",
			Fields: []Field{
				{Name: "difficulty", Prompt: "difficulty", Type: FieldString, Query: true},
				{Name: "tag", Prompt: "tag", Type: FieldString, Query: true},
				{Name: "q", Aliases: []string{"query"}, Prompt: "search", Type: FieldString, Query: true},
			},
		},
		{
			Service:      "exercise",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/exercises/:id",
			Summary:      "show one exercise id=..",
			Fields: []Field{
				{Name: "id", Prompt: "exercise_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "exercise",
			Action:       "check",
			Method:       "POST",
			PathTemplate: "/api/v1/exercises/:id/check",
			Summary:      "judge code against an exercise without recording it",
			Fields: append([]Field{
				{Name: "id", Prompt: "exercise_id", Type: FieldString, Required: true},
			}, codeFields...),
		},
		{
			Service:      "code",
			Action:       "validate",
			Method:       "POST",
			PathTemplate: "/api/v1/validate",
			Summary:      "structural check only",
			Fields:       codeFields,
		},
		{
			Service:      "code",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/api/v1/run",
			Summary:      "run code on the server",
			Fields:       codeFields,
		},
		{
			Service:      "submission",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/exercises/:id/submissions",
			RequiresAuth: true,
			Summary:      "submit code for grading id=.. file=..",
			Fields: append([]Field{
				{Name: "id", Aliases: []string{"exercise_id"}, Prompt: "exercise_id", Type: FieldString, Required: true},
				{Name: "idempotency_key", Prompt: "idempotency_key", Type: FieldString},
			}, codeFields...),
		},
		{
			Service:      "submission",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/exercises/:id/submissions",
			RequiresAuth: true,
			Summary:      "your submissions for an exercise id=.. [limit=..]",
			Fields: []Field{
				{Name: "id", Aliases: []string{"exercise_id"}, Prompt: "exercise_id", Type: FieldString, Required: true},
				{Name: "limit", Prompt: "limit", Type: FieldInt, Query: true},
			},
		},
		{
			Service:      "submission",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			RequiresAuth: true,
			Summary:      "show one submission id=..",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "auth",
			Action:       "logout",
			Method:       "POST",
			PathTemplate: "/api/v1/auth/logout",
			RequiresAuth: true,
			Summary:      "revoke the current token",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Sorted returns the commands ordered by key.
func Sorted(commands map[string]Command) []Command {
	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	query, err := buildQuery(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if query != "" {
		path += "?" + query
	}

	headers := map[string]string{}
	if key := params.Get("idempotency_key"); key != "" {
		headers["Idempotency-Key"] = key
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	if strings.Contains(path, ":id") {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", url.PathEscape(value))
	}
	return path, nil
}

func buildQuery(cmd Command, params Params) (string, error) {
	values := url.Values{}
	for _, field := range cmd.Fields {
		if !field.Query || params.Get(field.Name) == "" {
			continue
		}
		value := params.Get(field.Name)
		if field.Type == FieldInt {
			if _, err := ParseInt(value); err != nil {
				return "", fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
		values.Set(field.Name, value)
	}
	return values.Encode(), nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	for _, field := range cmd.Fields {
		if field.Name == "code" {
			code, err := resolveCode(params)
			if err != nil {
				return nil, err
			}
			return map[string]string{"code": code}, nil
		}
	}
	return nil, nil
}

// resolveCode prefers an explicit file over inline code.
func resolveCode(params Params) (string, error) {
	if path := params.Get("file"); path != "" {
		return ReadFile(path)
	}
	code := params.Get("code")
	if code == "" {
		return "", fmt.Errorf("code is required")
	}
	return code, nil
}
