package session

import (
	"context"
	"log/slog"

	"github.com/starford/decryptor/internal/checksum"
	"github.com/starford/decryptor/internal/chunk"
	"github.com/starford/decryptor/internal/dom"
	"github.com/starford/decryptor/internal/message"
	"github.com/starford/decryptor/internal/scanner"
)

// siteFor returns the site id of a candidate's node, minting one on first
// sight together with the site's own message id. The same node always maps
// to the same ids.
func (s *Session) siteFor(c scanner.Candidate) string {
	key := siteKey{node: c.Node, kind: c.Kind}
	if id, ok := s.sites[key]; ok {
		return id
	}
	id := s.siteIDs.Next()
	s.sites[key] = id
	s.nodes[id] = c.Node
	s.kinds[id] = c.Kind
	s.siteMsgs[id] = s.msgIDs.Next()
	return id
}

func fingerprint(c scanner.Candidate) string {
	if c.Kind == scanner.KindFile {
		return c.Locator
	}
	return checksum.Fingerprint(c.Content)
}

// submit registers a candidate. The first site of a fingerprint issues the
// only decrypt request for it; later sites wait on the entry or receive the
// stored result immediately.
func (s *Session) submit(ctx context.Context, c scanner.Candidate) {
	site := s.siteFor(c)
	fp := fingerprint(c)

	e, ok := s.entries[fp]
	if ok {
		if !e.addSite(site) {
			return
		}
		if e.status == StatusDecrypted {
			s.apply(e, site)
		}
		return
	}

	payload := c.Content
	if c.Kind == scanner.KindFile {
		payload = c.Locator
	}
	e = newEntry(c.Kind, payload)
	e.addSite(site)
	s.entries[fp] = e

	// Only the first site of a fingerprint puts its message id on the wire.
	msgID := s.siteMsgs[site]
	s.requests[msgID] = request{fingerprint: fp, site: site}

	switch c.Kind {
	case scanner.KindText:
		s.request(e, msgID, c.Content, message.EncodingASCII)
	case scanner.KindFile:
		s.load(ctx, fp, msgID, c.Locator)
	}
}

// request sends data for one entry, split into blocks of at most maxChunk.
func (s *Session) request(e *entry, msgID, data string, enc message.Encoding) {
	e.status = StatusInFlight
	for _, c := range chunk.Encode(msgID, data, s.maxChunk) {
		s.send(message.DecryptRequest{
			Data:      c.Data,
			Encoding:  enc,
			MessageID: c.MessageID,
			LastBlock: c.Last,
		})
	}
	e.status = StatusDecrypting
}

// load fetches a file locator off the loop; the result comes back through
// s.fetched.
func (s *Session) load(ctx context.Context, fp, msgID, locator string) {
	if s.fetcher == nil {
		s.logger.Warn("session: no fetcher for encrypted file", slog.String("locator", locator))
		return
	}
	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		data, err := s.fetcher.Fetch(ctx, locator)
		select {
		case s.fetched <- fetchResult{fingerprint: fp, messageID: msgID, data: data, err: err}:
		case <-ctx.Done():
		case <-s.done:
		}
	}()
}

func (s *Session) handleFetched(r fetchResult) {
	e, ok := s.entries[r.fingerprint]
	if !ok {
		return
	}
	if r.err != nil {
		s.logger.Warn("session: load encrypted file failed",
			slog.String("locator", e.payload),
			slog.String("error", r.err.Error()))
		return
	}
	s.request(e, r.messageID, checksum.EncodeBase64(r.data), message.EncodingBase64)
}

func (s *Session) handleMessage(m message.Message) {
	switch v := m.(type) {
	case message.DecryptResponse:
		s.onDecryptResult(v)
	case message.SessionResponse:
		// The identifier is fixed after the handshake.
	default:
		s.logger.Debug("session: ignoring message", slog.String("type", typeName(m)))
	}
}

// onDecryptResult reassembles a response, stores the result on its entry,
// and applies it to every site of that entry.
func (s *Session) onDecryptResult(resp message.DecryptResponse) {
	if !resp.Success {
		s.assembler.Drop(resp.MessageID)
		s.logger.Debug("session: decryption failed",
			slog.String("message_id", resp.MessageID),
			slog.String("error", resp.Error))
		return
	}

	data, complete := s.assembler.Add(resp.MessageID, resp.Data, resp.LastBlock)
	if !complete {
		return
	}

	req, ok := s.requests[resp.MessageID]
	if !ok {
		s.logger.Debug("session: response for unknown message", slog.String("message_id", resp.MessageID))
		return
	}
	e := s.entries[req.fingerprint]
	if e.status == StatusDecrypted {
		return
	}

	switch e.kind {
	case scanner.KindText:
		text := data
		if resp.Encoding == message.EncodingBase64 {
			raw, err := checksum.DecodeBase64(data)
			if err != nil {
				s.logger.Warn("session: decode text result failed",
					slog.String("message_id", resp.MessageID),
					slog.String("error", err.Error()))
				return
			}
			text = string(raw)
		}
		e.result = text

	case scanner.KindFile:
		raw := []byte(data)
		if resp.Encoding != message.EncodingASCII {
			var err error
			raw, err = checksum.DecodeBase64(data)
			if err != nil {
				s.logger.Warn("session: decode file result failed",
					slog.String("message_id", resp.MessageID),
					slog.String("error", err.Error()))
				return
			}
		}
		e.mimeType = resp.MimeType
		e.result = s.blobs.Put(resp.MimeType, raw)
	}

	e.status = StatusDecrypted
	delete(s.requests, resp.MessageID)

	for _, site := range e.sites {
		s.apply(e, site)
	}
	s.logger.Debug("session: decrypted",
		slog.String("fingerprint", req.fingerprint),
		slog.String("kind", e.kind.String()),
		slog.Int("sites", len(e.sites)))
	s.emit(Event{Type: EventDecrypted, Fingerprint: req.fingerprint, Kind: e.kind.String(), Sites: len(e.sites)})
}

// apply writes a decrypted result into one site.
func (s *Session) apply(e *entry, site string) {
	n, ok := s.nodes[site]
	if !ok {
		return
	}
	switch s.kinds[site] {
	case scanner.KindText:
		s.doc.SetText(n, e.result)
	case scanner.KindFile:
		s.doc.SetAttr(n, scanner.LocatorAttr, e.result)
		// Changing src alone does not restart a playing media element.
		if p := s.doc.Parent(n); dom.IsMedia(p) {
			s.doc.Reload(p)
		}
	}
}

func typeName(m message.Message) string {
	switch m.(type) {
	case message.DecryptRequest:
		return message.TypeDecryptRequest
	case message.SessionRequest:
		return message.TypeSessionRequest
	case message.GetKeysRequest:
		return message.TypeGetKeysRequest
	case message.GetKeysResponse:
		return message.TypeGetKeysResponse
	case message.UpdateKeysRequest:
		return message.TypeUpdateKeysRequest
	case message.Debug:
		return message.TypeDebug
	default:
		return "unknown"
	}
}
