package dialogue

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"go-advisor/internal/goal"
)

var (
	ErrEmptyGoalSet        = errors.New("persona declares no goals")
	ErrDuplicateGoal       = errors.New("persona declares a goal twice")
	ErrInvalidDetourBudget = errors.New("persona detour budget must not be negative")
)

// Tone flags shape the style instruction in the system message.
type Tone struct {
	Warm          bool `yaml:"warm" json:"warm"`
	Concise       bool `yaml:"concise" json:"concise"`
	PlainLanguage bool `yaml:"plain_language" json:"plain_language"`
	Formal        bool `yaml:"formal" json:"formal"`
}

// Flex holds the rules for how far the conversation may stray from its goals.
type Flex struct {
	DetourBudget   int  `yaml:"detour_budget" json:"detour_budget"`
	NeverBlockUser bool `yaml:"never_block_user" json:"never_block_user"`
}

// Persona is the static policy document for one assistant. It is loaded
// once and never mutated afterwards.
type Persona struct {
	ID      string      `yaml:"id" json:"id"`
	Mission string      `yaml:"mission" json:"mission"`
	Goals   []goal.Spec `yaml:"goals" json:"goals"`
	Tone    Tone        `yaml:"tone" json:"tone"`
	Flex    Flex        `yaml:"flex" json:"flex"`
}

// DefaultPersona is a general-purpose advisor used when no persona file is configured.
func DefaultPersona() Persona {
	return Persona{
		ID:      "advisor",
		Mission: "You are a practical business advisor. Help the user reach a concrete, agreed next step.",
		Goals: []goal.Spec{
			{ID: GoalDiagnoseIntent, Description: "pin down the outcome you want"},
			{ID: GoalGatherConstraints, Description: "work out your budget, timing and other constraints"},
			{ID: GoalProposePlan, Description: "put together a concrete plan"},
			{ID: GoalConfirmCommitment, Description: "agree on a first step"},
		},
		Tone: Tone{Warm: true, Concise: true, PlainLanguage: true},
		Flex: Flex{DetourBudget: 2, NeverBlockUser: true},
	}
}

// LoadPersona reads and validates a YAML persona document.
func LoadPersona(path string) (Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("failed to read persona file: %w", err)
	}
	return ParsePersona(raw)
}

func ParsePersona(raw []byte) (Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Persona{}, fmt.Errorf("invalid persona format: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	return p, nil
}

// Validate reports configuration errors that must stop startup.
func (p Persona) Validate() error {
	if len(p.Goals) == 0 {
		return ErrEmptyGoalSet
	}
	seen := make(map[goal.GoalID]bool, len(p.Goals))
	for _, g := range p.Goals {
		if strings.TrimSpace(string(g.ID)) == "" {
			return fmt.Errorf("%w: empty goal id", ErrEmptyGoalSet)
		}
		if seen[g.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateGoal, g.ID)
		}
		seen[g.ID] = true
	}
	if p.Flex.DetourBudget < 0 {
		return ErrInvalidDetourBudget
	}
	return nil
}

// Describe returns the declared description for a goal, or a readable
// form of its id.
func (p Persona) Describe(id goal.GoalID) string {
	for _, g := range p.Goals {
		if g.ID == id && g.Description != "" {
			return g.Description
		}
	}
	return strings.ReplaceAll(string(id), "_", " ")
}
