package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

var dreadFields = [5][]string{
	{"damage", "damage_potential"},
	{"reproducibility"},
	{"exploitability"},
	{"affected_users", "affected"},
	{"discoverability"},
}

// Scoring is the DREAD agent's salvaged output
type Scoring struct {
	Scores   []threatmodel.DreadScore
	Warnings []string
}

// ScoreThreats asks for DREAD scores over ac.Threats. Out-of-range fields are
// clamped; entries missing a field or naming an unknown threat are dropped,
// leaving that threat unscored for the caller to retry.
func (r *Runner) ScoreThreats(ctx context.Context, ac Context) (Scoring, error) {
	var res Scoring

	err := r.run(ctx, DreadScoring, r.dreadPrompt(ac, ac.Threats, false), func(v any) error {
		res = Scoring{}
		if !hasList(v, "scores", "risk_assessment", "dread_scores") {
			return errors.New("response has no scores list")
		}

		seen := make(map[string]bool)
		for i, item := range items(v, []string{"scores", "risk_assessment", "dread_scores"}) {
			id := matchThreat(item, ac.Threats)
			if id == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("score %d dropped: unknown threat", i+1))
				continue
			}
			if seen[id] {
				res.Warnings = append(res.Warnings, fmt.Sprintf("duplicate score for %s ignored", id))
				continue
			}
			s, err := parseScore(item, id)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("score for %s dropped: %v", id, err))
				continue
			}
			seen[id] = true
			res.Scores = append(res.Scores, s)
		}
		return nil
	})

	return res, err
}

// ScoreThreat asks for the DREAD score of a single threat
func (r *Runner) ScoreThreat(ctx context.Context, ac Context, threat threatmodel.Threat) (threatmodel.DreadScore, error) {
	var score threatmodel.DreadScore

	prompt := r.dreadPrompt(ac, []threatmodel.Threat{threat}, true)
	err := r.run(ctx, DreadSingle, prompt, func(v any) error {
		list := items(v, []string{"scores", "risk_assessment", "dread_scores"}, "damage", "damage_potential")
		if len(list) == 0 {
			return errors.New("response has no score")
		}
		s, err := parseScore(list[0], threat.ID)
		if err != nil {
			return err
		}
		score = s
		return nil
	})

	return score, err
}

func parseScore(item object, threatID string) (threatmodel.DreadScore, error) {
	var vals [5]int
	for i, keys := range dreadFields {
		n, ok := getScore(item, keys...)
		if !ok {
			return threatmodel.DreadScore{}, fmt.Errorf("missing or invalid %s", keys[0])
		}
		vals[i] = n
	}
	return threatmodel.NewDreadScore(threatID, vals[0], vals[1], vals[2], vals[3], vals[4]), nil
}

// matchThreat finds the threat an entry refers to, by id or, for replies that
// only echo the scenario, by title.
func matchThreat(item object, threats []threatmodel.Threat) string {
	for _, key := range []string{"threat_id", "related_threat_id", "id", "threat"} {
		v := getString(item, key)
		if v == "" {
			continue
		}
		for _, t := range threats {
			if strings.EqualFold(t.ID, v) {
				return t.ID
			}
		}
	}

	title := getString(item, "title", "threat", "threat_title", "scenario")
	if title == "" {
		return ""
	}
	for _, t := range threats {
		if strings.EqualFold(t.Title, title) || threatmodel.TitleOverlap(t.Title, title) >= threatmodel.DefaultSimilarityThreshold {
			return t.ID
		}
	}
	return ""
}
