package gameserver

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EndSession finalizes a session exactly once: it broadcasts one
// game_ended event to both participants, hands the outcome to the
// archiving collaborator, and removes the session. A second invocation
// for the same id (a resign racing a disconnect, say) observes the
// session already gone and does nothing.
//
// winnerID may be 0 when the session ends with no winner. The rating
// delta then stays 0.
func (s *Service) EndSession(gameID string, winnerID int64, reason string) {
	sess, ok := s.store.Finish(gameID)
	if !ok {
		return
	}

	a, b := sess.Participants()
	duration := sess.Duration(s.now())

	var delta int
	if winnerID != 0 {
		loserID := a.ID
		if winnerID == a.ID {
			loserID = b.ID
		}
		delta = s.rater.Change(winnerID, loserID, sess.Kind())
	}

	result := GameResult{
		Winner:       winnerID,
		Reason:       reason,
		RatingChange: delta,
		Duration:     int64(duration.Seconds()),
	}
	ended := Event{Type: EventGameEnded, Result: &result}
	s.push(a.ID, ended)
	if b.ID != 0 {
		s.push(b.ID, ended)
	}

	s.logger.Info("game ended",
		zap.String("game_id", gameID),
		zap.String("reason", reason),
		zap.Int64("winner", winnerID),
		zap.Duration("duration", duration),
	)

	if s.archiver == nil || b.ID == 0 {
		return
	}
	rec := GameRecord{
		GameID:       gameID,
		Kind:         sess.Kind(),
		PlayerA:      a.ID,
		PlayerB:      b.ID,
		WinnerID:     winnerID,
		Reason:       reason,
		RatingChange: delta,
		Duration:     duration,
		FinishedAt:   s.now(),
	}
	go s.archive(rec)
}

// archive hands the finished game to the collaborator store off the
// connection path. Failures are logged and dropped.
func (s *Service) archive(rec GameRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	start := time.Now()
	if err := s.archiver.ArchiveResult(ctx, rec); err != nil {
		s.logger.Error("archiving game result",
			zap.String("game_id", rec.GameID),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("game archived",
		zap.String("game_id", rec.GameID),
		zap.Duration("elapsed", time.Since(start)),
	)
}
