package dom

import (
	"slices"
	"sync"

	"golang.org/x/net/html"
)

// MutationType classifies a MutationRecord.
type MutationType int

const (
	ChildList MutationType = iota
	Attributes
	CharacterData
)

func (t MutationType) String() string {
	switch t {
	case ChildList:
		return "childList"
	case Attributes:
		return "attributes"
	case CharacterData:
		return "characterData"
	default:
		return "unknown"
	}
}

// MutationRecord describes one change to the document.
type MutationRecord struct {
	Type          MutationType
	Target        *html.Node
	AttributeName string
	AddedNodes    []*html.Node
}

// ObserveOptions selects which records an Observer receives. An empty
// AttributeFilter means every attribute.
type ObserveOptions struct {
	ChildList       bool
	Attributes      bool
	CharacterData   bool
	AttributeFilter []string
}

func (o ObserveOptions) wants(r MutationRecord) bool {
	switch r.Type {
	case ChildList:
		return o.ChildList
	case CharacterData:
		return o.CharacterData
	case Attributes:
		if !o.Attributes {
			return false
		}
		return len(o.AttributeFilter) == 0 || slices.Contains(o.AttributeFilter, r.AttributeName)
	}
	return false
}

// Observer queues mutation records until they are taken. Notify fires at
// least once after records become available.
type Observer struct {
	doc    *Document
	opts   ObserveOptions
	notify chan struct{}

	mu     sync.Mutex
	queue  []MutationRecord
	closed bool
}

// Observe registers a new Observer on the whole document.
func (d *Document) Observe(opts ObserveOptions) *Observer {
	o := &Observer{doc: d, opts: opts, notify: make(chan struct{}, 1)}
	d.omu.Lock()
	d.observers[o] = struct{}{}
	d.omu.Unlock()
	return o
}

// Notify returns a channel signalled when records are queued.
func (o *Observer) Notify() <-chan struct{} {
	return o.notify
}

// TakeRecords returns and clears the queued records.
func (o *Observer) TakeRecords() []MutationRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}

// Disconnect stops delivery and drops queued records.
func (o *Observer) Disconnect() {
	o.doc.omu.Lock()
	delete(o.doc.observers, o)
	o.doc.omu.Unlock()

	o.mu.Lock()
	o.closed = true
	o.queue = nil
	o.mu.Unlock()
}

func (o *Observer) enqueue(r MutationRecord) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, r)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (d *Document) emit(r MutationRecord) {
	d.omu.Lock()
	defer d.omu.Unlock()
	for o := range d.observers {
		if o.opts.wants(r) {
			o.enqueue(r)
		}
	}
}
