package memory

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinImportance = 1.0
	MaxImportance = 10.0

	// longContentRunes is the length above which content earns a bonus.
	longContentRunes = 100
)

var baseImportance = map[MemoryType]float64{
	TypeGoal:         8,
	TypePreference:   7,
	TypeLearning:     7,
	TypeFact:         6,
	TypeConversation: 5,
}

var urgencyMarkers = map[string]bool{"urgent": true, "urgently": true, "important": true, "critical": true, "asap": true}

// urgencyNegations cancel a marker that directly follows them. "t" is the
// tail of contractions like "isn't".
var urgencyNegations = map[string]bool{"not": true, "no": true, "never": true, "t": true}

// ScoreImportance computes the creation-time importance of a memory:
// a base per type, +1 for long content, +2 for urgency, capped at 10.
func ScoreImportance(t MemoryType, content string, ctx map[string]any) float64 {
	score, ok := baseImportance[t]
	if !ok {
		score = baseImportance[TypeConversation]
	}
	if utf8.RuneCountInString(content) > longContentRunes {
		score++
	}
	if isUrgent(content, ctx) {
		score += 2
	}
	return clampImportance(score)
}

func isUrgent(content string, ctx map[string]any) bool {
	if v, ok := ctx["urgent"].(bool); ok && v {
		return true
	}
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		if !urgencyMarkers[w] {
			continue
		}
		if i > 0 && urgencyNegations[words[i-1]] {
			continue
		}
		return true
	}
	return false
}

// GrowImportance applies the access reward for an item that has now been
// accessed accessCount times. It never lowers importance.
func GrowImportance(current float64, accessCount int) float64 {
	next := current
	switch {
	case accessCount > 10:
		next += 1
	case accessCount > 5:
		next += 0.5
	}
	return clampImportance(next)
}

func clampImportance(v float64) float64 {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}
