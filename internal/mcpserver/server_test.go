package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/decryptor/internal/apperr"
	"github.com/starford/decryptor/internal/pageservice"
	"github.com/starford/decryptor/internal/session"
)

type fakeDocs struct {
	pages     map[string]string
	loaded    []string
	waitedFor time.Duration
	block     bool
}

func (f *fakeDocs) List(context.Context) ([]pageservice.DocumentInfo, error) {
	var out []pageservice.DocumentInfo
	for p := range f.pages {
		out = append(out, pageservice.DocumentInfo{Path: p})
	}
	return out, nil
}

func (f *fakeDocs) Load(_ context.Context, path string) (bool, error) {
	if _, ok := f.pages[path]; !ok {
		return false, apperr.ErrNotFound
	}
	f.loaded = append(f.loaded, path)
	return true, nil
}

func (f *fakeDocs) Render(path string) ([]byte, error) {
	p, ok := f.pages[path]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return []byte(p), nil
}

func (f *fakeDocs) Status(_ context.Context, path string) (session.Snapshot, error) {
	if _, ok := f.pages[path]; !ok {
		return session.Snapshot{}, apperr.ErrNotFound
	}
	return session.Snapshot{SessionID: "s-9", Ready: true, Decrypting: 1}, nil
}

func (f *fakeDocs) Wait(ctx context.Context, path string) (session.Snapshot, error) {
	if dl, ok := ctx.Deadline(); ok {
		f.waitedFor = time.Until(dl)
	}
	if f.block {
		<-ctx.Done()
		return session.Snapshot{}, ctx.Err()
	}
	return f.Status(ctx, path)
}

func testServer(t *testing.T) (*Server, *fakeDocs) {
	t.Helper()
	docs := &fakeDocs{pages: map[string]string{"a.html": "<p>SECRET</p>"}}
	return New(context.Background(), docs), docs
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "decrypt_document":
		result, err = srv.decryptDocument(ctx, req)
	case "document_status":
		result, err = srv.documentStatus(ctx, req)
	case "get_embedding_contract":
		result, err = srv.getEmbeddingContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestDecryptDocument(t *testing.T) {
	srv, docs := testServer(t)

	r := callTool(t, srv, "decrypt_document", map[string]interface{}{"path": "a.html"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if got := resultText(r); got != "<p>SECRET</p>" {
		t.Errorf("decrypt result = %q", got)
	}
	if len(docs.loaded) != 1 {
		t.Errorf("loaded = %v", docs.loaded)
	}
	if docs.waitedFor <= 0 || docs.waitedFor > defaultWait {
		t.Errorf("wait = %v, want within default", docs.waitedFor)
	}
}

func TestDecryptDocument_WaitTimeoutStillRenders(t *testing.T) {
	srv, docs := testServer(t)
	docs.block = true

	r := callTool(t, srv, "decrypt_document", map[string]interface{}{
		"path":         "a.html",
		"wait_seconds": 0.05,
	})
	if r.IsError {
		t.Fatalf("timeout should not be an error: %s", resultText(r))
	}
	if resultText(r) != "<p>SECRET</p>" {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestDecryptDocument_Missing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "decrypt_document", map[string]interface{}{"path": "nope.html"})
	if !r.IsError {
		t.Fatal("expected error for missing document")
	}
	if !strings.Contains(resultText(r), "not found: nope.html") {
		t.Errorf("error = %q", resultText(r))
	}
}

func TestDecryptDocument_PathRequired(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "decrypt_document", map[string]interface{}{})
	if !r.IsError {
		t.Fatal("expected error without path")
	}
}

func TestListDocuments(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_documents", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"path": "a.html"`) {
		t.Errorf("list = %q", resultText(r))
	}
}

func TestDocumentStatus(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "document_status", map[string]interface{}{"path": "a.html"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "s-9") {
		t.Errorf("status = %q", resultText(r))
	}
}

func TestEmbeddingContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_embedding_contract", nil)
	if !strings.Contains(resultText(r), "-----BEGIN PGP MESSAGE-----") {
		t.Error("contract missing armor example")
	}
}
