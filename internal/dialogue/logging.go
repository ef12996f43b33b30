package dialogue

import (
	"time"

	"go.uber.org/zap"

	"go-advisor/internal/goal"
)

// TurnLogger emits one structured event per turn stage.
type TurnLogger struct {
	log *zap.Logger
}

func NewTurnLogger(l *zap.Logger) *TurnLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &TurnLogger{log: l.Named("dialogue")}
}

func (l *TurnLogger) ActClassified(userID string, act UserAct) {
	l.log.Debug("act classified", zap.String("user_id", userID), zap.String("act", string(act)))
}

func (l *TurnLogger) TacticSelected(chosen TacticID, ranked []Candidate) {
	alts := make([]string, 0, len(ranked))
	for _, c := range ranked {
		alts = append(alts, string(c.Tactic.ID()))
	}
	l.log.Debug("tactic selected", zap.String("tactic", string(chosen)), zap.Strings("ranked", alts))
}

func (l *TurnLogger) ContextUnavailable(userID string, err error) {
	l.log.Warn("retrieval context unavailable", zap.String("user_id", userID), zap.Error(err))
}

func (l *TurnLogger) Patched(tactic TacticID, replyLen int) {
	l.log.Debug("reply patched with follow-up", zap.String("tactic", string(tactic)), zap.Int("reply_len", replyLen))
}

func (l *TurnLogger) TurnCompleted(userID string, tactic TacticID, completed []goal.GoalID, elapsed time.Duration) {
	ids := make([]string, len(completed))
	for i, id := range completed {
		ids[i] = string(id)
	}
	l.log.Info("turn completed",
		zap.String("user_id", userID),
		zap.String("tactic", string(tactic)),
		zap.Strings("completed_goals", ids),
		zap.Duration("elapsed", elapsed),
	)
}

func (l *TurnLogger) TurnFailed(userID, stage string, err error) {
	l.log.Error("turn failed", zap.String("user_id", userID), zap.String("stage", stage), zap.Error(err))
}
