package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// TestCaseResult is the test-case agent's output. Cases carry no ids yet.
type TestCaseResult struct {
	TestCases []threatmodel.TestCase
	Warnings  []string
}

// GenerateTestCases asks for Gherkin test cases over ac.Threats. Cases for
// threats outside that list are dropped.
func (r *Runner) GenerateTestCases(ctx context.Context, ac Context) (TestCaseResult, error) {
	var res TestCaseResult

	err := r.run(ctx, TestCaseGeneration, r.testCasePrompt(ac), func(v any) error {
		res = TestCaseResult{}
		if !hasList(v, "test_cases", "tests") {
			return errors.New("response has no test_cases list")
		}

		for i, item := range items(v, []string{"test_cases", "tests"}) {
			id := matchThreat(item, ac.Threats)
			if id == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("test case %d dropped: unknown threat", i+1))
				continue
			}
			scenario := getString(item, "scenario", "gherkin")
			if scenario == "" {
				scenario = gherkin(item)
			}
			if scenario == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("test case %d dropped: empty scenario", i+1))
				continue
			}
			res.TestCases = append(res.TestCases, threatmodel.TestCase{
				ThreatID:       id,
				Scenario:       scenario,
				ExpectedResult: getString(item, "expected_result", "expected"),
			})
		}
		return nil
	})

	return res, err
}

// gherkin assembles a scenario from separate given/when/then fields
func gherkin(item object) string {
	var lines []string
	for _, step := range []string{"given", "when", "then"} {
		for j, s := range getStrings(item, step) {
			kw := strings.ToUpper(step[:1]) + step[1:]
			if j > 0 {
				kw = "And"
			}
			lines = append(lines, kw+" "+s)
		}
	}
	return strings.Join(lines, "\n")
}
