package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/compiler"
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/report"
	"github.com/mark-chris/threatc/internal/store"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// stringArgs reads the named string arguments, failing on the first that is not a string
func stringArgs(args map[string]interface{}, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := stringArg(args, k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func compileModel(ctx context.Context, s *Server, args map[string]interface{}) (string, error) {
	a, err := stringArgs(args, "description", "supplementary", "transcript", "application_name", "prior_id", "format")
	if err != nil {
		return "", err
	}
	if err := validateDescription(a["description"]); err != nil {
		return "", err
	}
	format, err := validateFormat(a["format"])
	if err != nil {
		return "", err
	}
	answers, err := answersArg(args, "answers")
	if err != nil {
		return "", err
	}

	req := compiler.Request{
		Description:   a["description"],
		Supplementary: a["supplementary"],
		Transcript:    a["transcript"],
		Answers:       answers,
		Application:   threatmodel.Application{Name: a["application_name"]},
	}
	if a["prior_id"] != "" {
		prior, err := s.store.Get(ctx, a["prior_id"])
		if err != nil {
			return "", fmt.Errorf("prior model %s: %w", a["prior_id"], err)
		}
		req.Prior = prior
	}

	model, err := s.compiler.Compile(ctx, req)
	if model != nil {
		if serr := s.store.Save(context.WithoutCancel(ctx), model); serr != nil {
			s.logger.Error("failed to save model", zap.String("model_id", model.ID), zap.Error(serr))
		}
	}
	if err != nil {
		var ce *threatmodel.CompilationError
		if errors.As(err, &ce) {
			return "", fmt.Errorf("compilation failed at stage %s: %w", ce.Stage, ce.Err)
		}
		if model != nil {
			return "", fmt.Errorf("compilation of model %s interrupted: %w", model.ID, err)
		}
		return "", err
	}
	return report.Render(model, format)
}

func getModel(ctx context.Context, s *Server, args map[string]interface{}) (string, error) {
	a, err := stringArgs(args, "id", "format")
	if err != nil {
		return "", err
	}
	format, err := validateFormat(a["format"])
	if err != nil {
		return "", err
	}

	model, err := s.store.Get(ctx, a["id"])
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("no threat model with id %s", a["id"])
	}
	if err != nil {
		return "", err
	}
	return report.Render(model, format)
}

func regenerateModel(ctx context.Context, s *Server, args map[string]interface{}) (string, error) {
	a, err := stringArgs(args, "id", "section", "format")
	if err != nil {
		return "", err
	}
	section, err := compiler.ParseSection(a["section"])
	if err != nil {
		return "", err
	}
	format, err := validateFormat(a["format"])
	if err != nil {
		return "", err
	}

	model, err := s.store.Get(ctx, a["id"])
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("no threat model with id %s", a["id"])
	}
	if err != nil {
		return "", err
	}

	updated, err := s.compiler.Regenerate(ctx, model, section)
	if err != nil {
		return "", err
	}
	if err := s.store.Save(context.WithoutCancel(ctx), updated); err != nil {
		return "", err
	}
	return report.Render(updated, format)
}

func lookupKnowledge(_ context.Context, s *Server, args map[string]interface{}) (string, error) {
	a, err := stringArgs(args, "context", "component_type", "category", "verbosity")
	if err != nil {
		return "", err
	}
	limit, err := intArg(args, "limit")
	if err != nil {
		return "", err
	}

	if a["component_type"] == "" || a["context"] != "" {
		if err := validateContext(a["context"]); err != nil {
			return "", err
		}
	}
	if err := validateCategory(a["category"]); err != nil {
		return "", err
	}
	if err := validateVerbosity(a["verbosity"]); err != nil {
		return "", err
	}

	verbosity := a["verbosity"]
	if verbosity == "" {
		verbosity = "agent"
	}

	result := knowledge.Query(s.index, knowledge.QueryOptions{
		Context:       a["context"],
		ComponentType: a["component_type"],
		Category:      a["category"],
		Limit:         limit,
		Verbosity:     verbosity,
	})

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
