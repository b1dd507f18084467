package gameserver

import (
	"fmt"

	"github.com/cory-johannsen/arcade/internal/game/session"
)

// handleChat relays a chat line to both participants of the session,
// tagged with the sender's display name. The sender sees their own
// message echoed back, mirroring the webapp's chat pane behavior.
func (s *Service) handleChat(userID int64, msg ClientMessage) error {
	sess, err := s.store.Get(msg.GameID)
	if err != nil {
		return err
	}

	sender := sess.PlayerName(userID)
	if sender == "" {
		return fmt.Errorf("%w: user %d in session %s", session.ErrNotParticipant, userID, sess.ID())
	}

	evt := Event{Type: EventChatMessage, Sender: sender, Text: msg.Text}
	a, b := sess.Participants()
	s.push(a.ID, evt)
	if b.ID != 0 {
		s.push(b.ID, evt)
	}
	return nil
}
