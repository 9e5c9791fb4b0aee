package mcp

import (
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/report"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

const (
	maxContextLength     = 10000
	maxDescriptionLength = 50000
)

func validateToolName(name string) (tool, error) {
	t, ok := tools[name]
	if !ok {
		return tool{}, fmt.Errorf("unknown tool: %s", name)
	}
	return t, nil
}

// stringArg returns an optional string argument
func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// answersArg reads an optional list of {question, answer} objects
func answersArg(args map[string]interface{}, key string) ([]threatmodel.Answer, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array", key)
	}
	out := make([]threatmodel.Answer, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", key, i)
		}
		q, err := stringArg(obj, "question")
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		a, err := stringArg(obj, "answer")
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		out = append(out, threatmodel.Answer{Question: q, Answer: a})
	}
	return out, nil
}

// intArg returns an optional integer argument. JSON numbers arrive as float64.
func intArg(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if f < 1 {
		return 0, fmt.Errorf("%s must be at least 1", key)
	}
	return int(f), nil
}

func validateContext(context string) error {
	if strings.TrimSpace(context) == "" {
		return fmt.Errorf("context must be non-empty")
	}
	if len(context) > maxContextLength {
		return fmt.Errorf("context exceeds maximum length of %d characters", maxContextLength)
	}
	return nil
}

func validateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("description must be non-empty")
	}
	if len(description) > maxDescriptionLength {
		return fmt.Errorf("description exceeds maximum length of %d characters", maxDescriptionLength)
	}
	return nil
}

func validateVerbosity(verbosity string) error {
	switch verbosity {
	case "", "agent", "human":
		return nil
	}
	return fmt.Errorf("Invalid verbosity '%s'. Supported values: agent, human", verbosity)
}

func validateCategory(category string) error {
	if category == "" {
		return nil
	}
	if _, ok := threatmodel.ParseCategory(category); !ok {
		return fmt.Errorf("Invalid category '%s'. Supported values: %s", category, strings.Join(categoryNames(), ", "))
	}
	return nil
}

func categoryNames() []string {
	names := make([]string, len(threatmodel.Categories))
	for i, c := range threatmodel.Categories {
		names[i] = string(c)
	}
	return names
}

// validateFormat defaults to markdown, which reads best in an agent transcript
func validateFormat(format string) (report.Format, error) {
	if format == "" {
		return report.FormatMarkdown, nil
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return "", fmt.Errorf("Invalid format '%s'. Supported formats: json, text, markdown, mermaid, dfd", format)
	}
	return f, nil
}

func validateNoUnknownParams(args map[string]interface{}, allowed []string) error {
	allowedMap := make(map[string]bool, len(allowed))
	for _, key := range allowed {
		allowedMap[key] = true
	}

	for key := range args {
		if !allowedMap[key] {
			return fmt.Errorf("Unknown parameter '%s'. Supported parameters: %s", key, strings.Join(allowed, ", "))
		}
	}
	return nil
}
