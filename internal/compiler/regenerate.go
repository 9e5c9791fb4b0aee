package compiler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Section names a part of a model that can be regenerated
type Section string

// Regenerable sections.
const (
	SectionDread        Section = "dread"
	SectionAttackTree   Section = "attack_tree"
	SectionTestCases    Section = "test_cases"
	SectionMitigations  Section = "mitigations"
	SectionArchitecture Section = "architecture"
	SectionQuestions    Section = "questions"
)

// Sections lists the regenerable sections
var Sections = []Section{SectionDread, SectionAttackTree, SectionTestCases, SectionMitigations, SectionArchitecture, SectionQuestions}

// ParseSection accepts section names and the stage names that produce them
func ParseSection(s string) (Section, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dread", "score", "scores":
		return SectionDread, nil
	case "attack_tree", "attack-tree", "tree":
		return SectionAttackTree, nil
	case "test_cases", "test-cases", "tests":
		return SectionTestCases, nil
	case "mitigations":
		return SectionMitigations, nil
	case "architecture", "data_flows", "data-flows", "dfd":
		return SectionArchitecture, nil
	case "questions", "open_questions":
		return SectionQuestions, nil
	default:
		return "", &threatmodel.InputError{Field: "section", Message: fmt.Sprintf("unknown section %q", s)}
	}
}

func (sec Section) stages() []stage {
	var names []threatmodel.StageName
	switch sec {
	case SectionDread:
		// test cases filter on DREAD and the summary weighs it
		names = []threatmodel.StageName{threatmodel.StageScore, threatmodel.StageTestCases, threatmodel.StageMitigations}
	case SectionAttackTree:
		names = []threatmodel.StageName{threatmodel.StageAttackTree}
	case SectionTestCases:
		names = []threatmodel.StageName{threatmodel.StageTestCases}
	case SectionMitigations:
		names = []threatmodel.StageName{threatmodel.StageMitigations}
	case SectionArchitecture:
		names = []threatmodel.StageName{threatmodel.StageArchitecture}
	case SectionQuestions:
		names = []threatmodel.StageName{threatmodel.StageQuestions}
	}

	var out []stage
	for _, n := range names {
		for _, st := range pipeline {
			if st.name == n {
				out = append(out, st)
			}
		}
	}
	return out
}

// Regenerate re-runs one section of a compiled model on a copy, leaving the
// input untouched. Threat ids and unrelated sections carry over. The copy is
// frozen again on success. Cancellation behaves as in Compile.
func (c *Compiler) Regenerate(ctx context.Context, model *threatmodel.ThreatModel, section Section) (*threatmodel.ThreatModel, error) {
	if model == nil {
		return nil, &threatmodel.InputError{Field: "model", Message: "must not be nil"}
	}
	stages := section.stages()
	if len(stages) == 0 {
		return nil, &threatmodel.InputError{Field: "section", Message: fmt.Sprintf("unknown section %q", section)}
	}

	m := model.Clone()
	s := &session{
		req:       Request{Description: m.Application.Description},
		model:     m,
		knowledge: knowledgeFor(c.kb, m.Components),
	}
	complete := m.Complete

	log := c.logger.With(zap.String("model_id", m.ID), zap.String("section", string(section)))
	log.Info("regeneration started")

	if err := c.runStages(ctx, s, stages); err != nil {
		return c.finish(s, err, log)
	}

	m.Complete = complete
	m.Freeze()
	log.Info("regeneration finished")
	return m, nil
}
