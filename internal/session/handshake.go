package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/decryptor/internal/apperr"
	"github.com/starford/decryptor/internal/message"
)

// handshake asks the relay for a session identifier and waits for it,
// resending the request every handshakeRetry. Nothing else is sent before it
// completes.
func (s *Session) handshake(ctx context.Context) error {
	ticker := time.NewTicker(s.handshakeRetry)
	defer ticker.Stop()

	s.send(message.SessionRequest{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case m, ok := <-s.port.Inbound():
			if !ok {
				return apperr.ErrClosed
			}
			resp, isResp := m.(message.SessionResponse)
			if !isResp || resp.SessionID == "" {
				continue
			}
			s.sessionID = resp.SessionID
			s.readyOnce.Do(func() { close(s.ready) })
			s.logger.Debug("session: ready", slog.String("session_id", s.sessionID))
			s.emit(Event{Type: EventReady})
			return nil

		case <-ticker.C:
			s.send(message.SessionRequest{})

		case resp := <-s.snapshotCh:
			resp <- s.snapshot()
		}
	}
}

// send attaches the session identifier and hands m to the relay. Failures are
// logged; nothing propagates out of an event handler.
func (s *Session) send(m message.Message) {
	switch v := m.(type) {
	case message.DecryptRequest:
		v.SessionID = s.sessionID
		m = v
	case message.SessionRequest:
		v.SessionID = s.sessionID
		m = v
	}
	if err := s.port.Send(m); err != nil {
		s.logger.Warn("session: send failed", slog.String("error", err.Error()))
	}
}
