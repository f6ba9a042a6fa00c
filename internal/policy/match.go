package policy

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// MatchApplications returns the candidates the spoken application name refers to.
// Substring, whitespace-stripped, and alias matches win; when none exist the
// best phonetic or Jaro-Winkler match above FuzzyThreshold is returned.
func (p Policy) MatchApplications(spoken string, candidates []string) []string {
	name := strings.ToLower(strings.TrimSpace(spoken))
	if name == "" {
		return nil
	}
	alias := name
	if mapped, ok := p.Aliases[name]; ok {
		alias = mapped
	}
	compact := strings.Join(strings.Fields(name), "")

	var out []string
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if strings.Contains(lc, name) || strings.Contains(lc, compact) || strings.Contains(lc, alias) {
			out = append(out, c)
		}
	}
	if len(out) > 0 || p.FuzzyThreshold <= 0 {
		return out
	}
	return p.fuzzyMatches(compact, candidates)
}

type scored struct {
	name  string
	score float64
}

func (p Policy) fuzzyMatches(compact string, candidates []string) []string {
	spokenCode, _ := matchr.DoubleMetaphone(compact)

	var hits []scored
	for _, c := range candidates {
		lc := strings.Join(strings.Fields(strings.ToLower(c)), "")
		score := matchr.JaroWinkler(compact, lc, false)
		if spokenCode != "" {
			if code, alt := matchr.DoubleMetaphone(lc); code == spokenCode || alt == spokenCode {
				score = max(score, p.FuzzyThreshold)
			}
		}
		if score >= p.FuzzyThreshold {
			hits = append(hits, scored{name: c, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.name)
	}
	return out
}
