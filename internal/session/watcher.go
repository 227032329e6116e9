package session

import (
	"context"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/starford/decryptor/internal/dom"
	"github.com/starford/decryptor/internal/scanner"
)

// watch observes structural changes of the document. Locator attribute
// changes are observed too but never trigger a rescan.
func (s *Session) watch() *dom.Observer {
	return s.doc.Observe(dom.ObserveOptions{
		ChildList:       true,
		CharacterData:   true,
		Attributes:      true,
		AttributeFilter: []string{scanner.LocatorAttr},
	})
}

// handleMutations rescans the subtree of every structurally changed node and
// submits what it finds. Sites already tracked are not registered twice.
func (s *Session) handleMutations(ctx context.Context, records []dom.MutationRecord) {
	seen := make(map[*html.Node]struct{}, len(records))
	var found []scanner.Candidate

	s.doc.Read(func(_ *html.Node) {
		for _, r := range records {
			if r.Type == dom.Attributes {
				continue
			}
			target := r.Target
			if r.Type == dom.CharacterData && target.Parent != nil {
				target = target.Parent
			}
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			found = append(found, scanner.Scan(target)...)
		}
	})

	if len(found) == 0 {
		return
	}
	s.logger.Debug("session: rescan", slog.Int("records", len(records)), slog.Int("candidates", len(found)))
	for _, c := range found {
		s.submit(ctx, c)
	}
}
