package dialogue

import (
	"strings"
	"unicode"
)

// UserAct labels the latest user utterance.
type UserAct string

const (
	ActQuestion    UserAct = "question"
	ActPushback    UserAct = "pushback"
	ActApproval    UserAct = "approval"
	ActOffTopic    UserAct = "offtopic"
	ActProvideInfo UserAct = "provide_info"
)

// Classifier labels an utterance. Implementations always return an act;
// provide_info is the default when nothing else applies.
type Classifier interface {
	Classify(utterance string) UserAct
}

// HeuristicClassifier is the rule-based classifier. Checks run in a fixed
// order: pushback, approval, question, off-topic.
type HeuristicClassifier struct{}

var (
	pushbackLeads = []string{"no", "nope", "nah", "but", "however"}

	pushbackPhrases = []string{
		"don't think", "do not think", "not sure", "won't work", "will not work",
		"doesn't work", "does not work", "not really", "disagree", "too expensive",
		"not interested", "rather not", "i can't", "i cannot", "no thanks",
		"that's not", "not what i", "don't want", "do not want", "doesn't help",
		"actually no", "actually not",
	}

	approvalLeads = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "agreed", "absolutely", "definitely", "great", "perfect"}

	approvalPhrases = []string{
		"sounds good", "let's do it", "lets do it", "that works", "works for me",
		"i agree", "go ahead", "love it", "makes sense", "it's a deal", "that's a deal",
	}

	// approvalUtterances only count as approval when they are the whole message.
	approvalUtterances = []string{"deal", "done", "fine"}

	interrogatives = []string{
		"what", "why", "how", "when", "where", "who", "which",
		"can", "could", "would", "should", "is", "are", "do", "does", "did", "will",
	}

	offTopicKeywords = []string{
		"weather", "football", "soccer", "basketball", "sports", "movie", "movies",
		"joke", "recipe", "celebrity", "politics", "horoscope", "tv show",
	}
)

func (HeuristicClassifier) Classify(utterance string) UserAct {
	norm := normalize(utterance)
	padded := " " + norm + " "
	lead := firstWord(norm)

	switch {
	case containsWord(pushbackLeads, lead) || containsPhrase(padded, pushbackPhrases):
		return ActPushback
	case containsWord(approvalLeads, lead) || containsPhrase(padded, approvalPhrases) || containsWord(approvalUtterances, norm):
		return ActApproval
	case strings.HasSuffix(strings.TrimSpace(utterance), "?") || containsWord(interrogatives, lead):
		return ActQuestion
	case containsPhrase(padded, offTopicKeywords):
		return ActOffTopic
	default:
		return ActProvideInfo
	}
}

// normalize lowercases, folds curly apostrophes and turns every other
// punctuation mark into a space.
func normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "’", "'"))
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

func containsPhrase(padded string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// ObserveAct records the classified act on the state: it sets LastUserAct,
// counts detours and nudges satisfaction.
func ObserveAct(s ConversationState, act UserAct) ConversationState {
	out := s.Clone()
	out.LastUserAct = act
	switch act {
	case ActOffTopic:
		out.DetoursUsed++
		out.Satisfaction = clamp01(out.Satisfaction - 0.05)
	case ActPushback:
		out.Satisfaction = clamp01(out.Satisfaction - 0.15)
	case ActApproval:
		out.Satisfaction = clamp01(out.Satisfaction + 0.1)
	}
	return out
}
