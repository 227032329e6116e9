package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDecrypted(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishDecrypted(Decrypted{Path: "a.html", Fingerprint: "-42", Kind: "text", Sites: 2})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "event: entry.decrypted\n") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"fingerprint":"-42"`) || !strings.Contains(s, `"sites":2`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestDocumentEvents_LibraryThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishDocumentLoaded("a.html")
	b.PublishDocumentRemoved("b.html")

	time.Sleep(50 * time.Millisecond)
	counts := map[string]int{}
loop:
	for {
		select {
		case msg := <-ch:
			typ := strings.TrimPrefix(strings.SplitN(string(msg), "\n", 2)[0], "event: ")
			counts[typ]++
		default:
			break loop
		}
	}

	if counts[EventDocumentLoaded] != 1 || counts[EventDocumentRemoved] != 1 {
		t.Errorf("document events = %v", counts)
	}
	if counts[EventLibraryUpdated] != 1 {
		t.Errorf("library events = %d, want 1 (throttled)", counts[EventLibraryUpdated])
	}
}

// recorder is an http.ResponseWriter whose body can be read while the
// handler is still writing.
type recorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *recorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := &recorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishDocumentLoaded("x.html")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if body := w.body(); !strings.Contains(body, "event: document.loaded") {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 70; i++ {
		b.PublishDecrypted(Decrypted{Path: "x.html"})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.PublishDecrypted(Decrypted{Path: "x.html"})
	b.PublishDocumentRemoved("x.html")
}
