package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/compiler"
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/report"
	"github.com/mark-chris/threatc/internal/store"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// CompileRequest is the body of POST /api/v1/models
type CompileRequest struct {
	Description   string                  `json:"description"`
	Supplementary string                  `json:"supplementary,omitempty"`
	Transcript    string                  `json:"transcript,omitempty"`
	Answers       []threatmodel.Answer    `json:"answers,omitempty"`
	Application   threatmodel.Application `json:"application"`
	// PriorID names a stored model whose threat ids are kept
	PriorID string `json:"prior_id,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string                    `json:"error"`
	Stage   threatmodel.StageName     `json:"stage,omitempty"`
	ModelID string                    `json:"model_id,omitempty"`
	Stages  []threatmodel.StageReport `json:"stages,omitempty"`
}

func (s *Server) createModel(c *gin.Context) {
	var body CompileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, &threatmodel.InputError{Field: "body", Message: err.Error()})
		return
	}

	req := compiler.Request{
		Description:   body.Description,
		Supplementary: body.Supplementary,
		Transcript:    body.Transcript,
		Answers:       body.Answers,
		Application:   body.Application,
	}
	if body.PriorID != "" {
		prior, err := s.store.Get(c.Request.Context(), body.PriorID)
		if err != nil {
			writeError(c, err)
			return
		}
		req.Prior = prior
	}

	model, err := s.compiler.Compile(c.Request.Context(), req)
	if model != nil {
		// cancelled compilations are kept so the partial work can be inspected
		if serr := s.store.Save(context.WithoutCancel(c.Request.Context()), model); serr != nil {
			s.logger.Error("failed to save model", zap.String("model_id", model.ID), zap.Error(serr))
			if err == nil {
				writeError(c, serr)
				return
			}
		}
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if s.hub != nil {
		s.hub.Publish("model", store.Record{
			ID:          model.ID,
			Application: model.Application.Name,
			CreatedAt:   model.CreatedAt,
			ThreatCount: len(model.Threats),
			Complete:    model.Complete,
		})
	}
	c.JSON(http.StatusCreated, model)
}

func (s *Server) listModels(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, &threatmodel.InputError{Field: "limit", Message: "must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"models": records, "count": len(records)})
}

func (s *Server) getModel(c *gin.Context) {
	model, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func (s *Server) deleteModel(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

var reportContentTypes = map[report.Format]string{
	report.FormatJSON:     "application/json; charset=utf-8",
	report.FormatText:     "text/plain; charset=utf-8",
	report.FormatMarkdown: "text/markdown; charset=utf-8",
	report.FormatMermaid:  "text/plain; charset=utf-8",
}

func (s *Server) getReport(c *gin.Context) {
	format, err := report.ParseFormat(c.DefaultQuery("format", "markdown"))
	if err != nil {
		writeError(c, err)
		return
	}
	model, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := report.Render(model, format)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, reportContentTypes[format], []byte(out))
}

func (s *Server) regenerate(c *gin.Context) {
	section, err := compiler.ParseSection(c.Param("section"))
	if err != nil {
		writeError(c, err)
		return
	}
	model, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	updated, err := s.compiler.Regenerate(c.Request.Context(), model, section)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.store.Save(context.WithoutCancel(c.Request.Context()), updated); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) queryKnowledge(c *gin.Context) {
	opts := knowledge.QueryOptions{
		Context:       c.Query("context"),
		ComponentType: c.Query("component_type"),
		Category:      c.Query("category"),
		Verbosity:     c.DefaultQuery("verbosity", "human"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, &threatmodel.InputError{Field: "limit", Message: "must be an integer"})
			return
		}
		opts.Limit = n
	}
	c.JSON(http.StatusOK, knowledge.Query(s.kb, opts))
}

func (s *Server) getKnowledgeType(c *gin.Context) {
	ct := threatmodel.NormalizeComponentType(c.Param("type"))
	entries := s.kb.Lookup(ct)
	profile, ok := s.kb.Profile(ct)
	if !ok && len(entries) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no knowledge for component type " + c.Param("type")})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"component_type":          ct,
		"security_considerations": profile.SecurityConsiderations,
		"best_practices":          profile.BestPractices,
		"compliance_requirements": profile.ComplianceRequirements,
		"threats":                 entries,
	})
}

// writeError maps the error taxonomy onto HTTP statuses
func writeError(c *gin.Context, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		ie *threatmodel.InputError
		ce *threatmodel.CompilationError
	)
	if errors.As(err, &ce) {
		resp.Stage = ce.Stage
		status = http.StatusUnprocessableEntity
		if ce.Model != nil {
			resp.ModelID = ce.Model.ID
			resp.Stages = ce.Model.Stages
		}
	}

	switch {
	case errors.As(err, &ie):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, resp)
}
