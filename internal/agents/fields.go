package agents

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type object = map[string]any

// foldKey makes "Threat Type", "threat-type" and "threat_type" the same key
func foldKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

// lookup returns the value of the first key present in m
func lookup(m object, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	for mk, v := range m {
		if v == nil {
			continue
		}
		folded := foldKey(mk)
		for _, k := range keys {
			if folded == k {
				return v, true
			}
		}
	}
	return nil, false
}

func getString(m object, keys ...string) string {
	v, ok := lookup(m, keys...)
	if !ok {
		return ""
	}
	return asString(v)
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// getStrings accepts a list of scalars or a single string
func getStrings(m object, keys ...string) []string {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := asString(t); s != "" {
			return []string{s}
		}
	}
	return nil
}

func getObject(m object, keys ...string) object {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	o, _ := v.(object)
	return o
}

func getBool(m object, keys ...string) (bool, bool) {
	v, ok := lookup(m, keys...)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err == nil {
			return b, true
		}
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "y":
			return true, true
		case "no", "n":
			return false, true
		}
	}
	return false, false
}

// getScore reads a DREAD or risk value
func getScore(m object, keys ...string) (int, bool) {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0, false
	}
	n, err := NormalizeRiskScore(v)
	return n, err == nil
}

// NormalizeRiskScore reads a score written as 7, 7.5, "7" or "7/10". Scores
// over another denominator are rescaled to ten. The result is not clamped.
func NormalizeRiskScore(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(math.Round(t)), nil
	case int:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		denominator := 10.0
		if num, den, ok := strings.Cut(s, "/"); ok {
			s = strings.TrimSpace(num)
			d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
			if err != nil || d <= 0 {
				return 0, fmt.Errorf("invalid score denominator: %q", t)
			}
			denominator = d
		}
		// "8 - high" and similar
		if fields := strings.Fields(s); len(fields) > 0 {
			s = fields[0]
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid score: %q", t)
		}
		return int(math.Round(f * 10 / denominator)), nil
	default:
		return 0, fmt.Errorf("invalid score type %T", v)
	}
}

// items finds the list of records in a decoded response. It accepts a bare
// list, an object holding the list under one of keys, an object holding any
// single list, or a lone record that has one of the marker fields.
func items(root any, keys []string, markers ...string) []object {
	switch t := root.(type) {
	case []any:
		return objects(t)
	case object:
		if v, ok := lookup(t, keys...); ok {
			if list, ok := v.([]any); ok {
				return objects(list)
			}
		}
		var only []any
		lists := 0
		for _, v := range t {
			if list, ok := v.([]any); ok && len(list) > 0 {
				if _, isObj := list[0].(object); isObj {
					only = list
					lists++
				}
			}
		}
		if lists == 1 {
			return objects(only)
		}
		if _, ok := lookup(t, markers...); ok && len(markers) > 0 {
			return []object{t}
		}
	}
	return nil
}

func objects(list []any) []object {
	out := make([]object, 0, len(list))
	for _, item := range list {
		if o, ok := item.(object); ok {
			out = append(out, o)
		}
	}
	return out
}

// hasList reports whether root carries a list under one of keys, even an empty one
func hasList(root any, keys ...string) bool {
	switch t := root.(type) {
	case []any:
		return true
	case object:
		v, ok := lookup(t, keys...)
		if !ok {
			return false
		}
		_, isList := v.([]any)
		return isList
	}
	return false
}
