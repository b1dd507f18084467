package gameserver

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// handleGameAction routes one game_action message in the context of its
// session. NotFound and InvalidState come back to the dispatcher, which
// discards the message; neither ends the connection.
func (s *Service) handleGameAction(userID int64, msg ClientMessage) error {
	sess, err := s.store.Get(msg.GameID)
	if err != nil {
		return err
	}

	switch msg.Action {
	case ActionMove:
		opponent, err := sess.ApplyMove(userID, msg.Data)
		if err != nil {
			return err
		}
		s.push(opponent, Event{Type: EventOpponentMove, Move: msg.Data})
		return nil

	case ActionRPSChoice:
		var data rpsChoiceData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("%w: rps_choice payload: %v", ErrMalformed, err)
		}
		choices, resolved, err := sess.RecordChoice(userID, data.Round, data.Choice)
		if err != nil {
			return err
		}
		if !resolved {
			return nil
		}
		// Each side receives the other's choice.
		for participant, choice := range choices {
			opponent, err := sess.Opponent(participant)
			if err != nil {
				continue
			}
			s.push(opponent, Event{Type: EventOpponentMove, Choice: choice})
		}
		s.logger.Debug("rps round resolved",
			zap.String("game_id", sess.ID()),
			zap.Int("round", data.Round),
		)
		return nil

	case ActionOfferDraw:
		opponent, err := sess.Opponent(userID)
		if err != nil {
			return err
		}
		s.push(opponent, Event{Type: EventDrawOffer})
		return nil

	case ActionResign:
		opponent, err := sess.Opponent(userID)
		if err != nil {
			return err
		}
		s.EndSession(sess.ID(), opponent, ReasonResignation)
		return nil

	case ActionLeave:
		opponent, err := sess.Opponent(userID)
		if err != nil {
			return err
		}
		s.push(opponent, Event{Type: EventOpponentLeft})
		s.EndSession(sess.ID(), opponent, ReasonOpponentLeft)
		return nil

	default:
		return fmt.Errorf("%w: unknown action %q", ErrMalformed, msg.Action)
	}
}
