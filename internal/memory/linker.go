package memory

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// MaxRelationships caps the links recorded on a memory.
	MaxRelationships = 5
	minSharedTokens  = 2
	minTokenRunes    = 4
)

// keywords returns the distinct lowercased tokens longer than three runes.
func keywords(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= minTokenRunes {
			out[f] = struct{}{}
		}
	}
	return out
}

// Relate links new content to existing memories that share at least two
// keywords with it. Candidates with more shared keywords come first, ties
// keep the order of existing; selfID is never linked.
func Relate(content string, existing []Item, selfID string) []string {
	words := keywords(content)
	if len(words) < minSharedTokens {
		return []string{}
	}

	type candidate struct {
		id     string
		shared int
	}
	var cands []candidate
	for _, item := range existing {
		if item.ID == "" || item.ID == selfID {
			continue
		}
		shared := 0
		for w := range keywords(item.Content) {
			if _, ok := words[w]; ok {
				shared++
			}
		}
		if shared >= minSharedTokens {
			cands = append(cands, candidate{id: item.ID, shared: shared})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].shared > cands[j].shared })

	out := make([]string, 0, MaxRelationships)
	for _, c := range cands {
		if len(out) == MaxRelationships {
			break
		}
		out = append(out, c.id)
	}
	return out
}
