package dialogue

import (
	"errors"
	"fmt"
	"sort"
)

// PushbackPenalty is subtracted from pressuring tactics right after pushback.
const PushbackPenalty = 0.2

var (
	ErrEmptyLibrary          = errors.New("tactic library is empty")
	ErrMissingFallbackTactic = errors.New("tactic library has no reflect_back tactic")
	ErrDuplicateTactic       = errors.New("tactic library declares a tactic twice")
)

// Candidate is an applicable tactic with its penalized score.
type Candidate struct {
	Tactic Tactic
	Score  float64
}

// Library is the static, ordered tactic catalogue plus the set of tactics
// considered pressuring.
type Library struct {
	tactics    []Tactic
	pressuring map[TacticID]bool
	fallback   Tactic
}

// NewLibrary validates the catalogue. A library without reflect_back is a
// configuration error.
func NewLibrary(tactics []Tactic, pressuring []TacticID) (*Library, error) {
	if len(tactics) == 0 {
		return nil, ErrEmptyLibrary
	}
	lib := &Library{
		tactics:    append([]Tactic(nil), tactics...),
		pressuring: make(map[TacticID]bool, len(pressuring)),
	}
	seen := make(map[TacticID]bool, len(tactics))
	for _, t := range tactics {
		if seen[t.ID()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTactic, t.ID())
		}
		seen[t.ID()] = true
		if t.ID() == TacticReflectBack {
			lib.fallback = t
		}
	}
	if lib.fallback == nil {
		return nil, ErrMissingFallbackTactic
	}
	for _, id := range pressuring {
		lib.pressuring[id] = true
	}
	return lib, nil
}

// MustLibrary is NewLibrary for static catalogues known to be valid.
func MustLibrary(tactics []Tactic, pressuring []TacticID) *Library {
	lib, err := NewLibrary(tactics, pressuring)
	if err != nil {
		panic(err)
	}
	return lib
}

func (l *Library) Tactics() []Tactic {
	return append([]Tactic(nil), l.tactics...)
}

func (l *Library) Fallback() Tactic {
	return l.fallback
}

func (l *Library) IsPressuring(id TacticID) bool {
	return l.pressuring[id]
}

// Score returns max(0, utility - penalty), where the penalty applies only to
// pressuring tactics when the last user act was pushback.
func (l *Library) Score(t Tactic, s ConversationState) float64 {
	score := t.Utility(s)
	if s.LastUserAct == ActPushback && l.pressuring[t.ID()] {
		score -= PushbackPenalty
	}
	if score < 0 {
		return 0
	}
	return score
}

// Rank scores every applicable tactic and orders them best first. Equal
// scores keep catalogue order.
func (l *Library) Rank(s ConversationState) []Candidate {
	var out []Candidate
	for _, t := range l.tactics {
		if t.When(s) {
			out = append(out, Candidate{Tactic: t, Score: l.Score(t, s)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Select returns the best tactic, or reflect_back when nothing applies.
func (l *Library) Select(s ConversationState) Tactic {
	ranked := l.Rank(s)
	if len(ranked) == 0 {
		return l.fallback
	}
	return ranked[0].Tactic
}
