// Package mcpserver exposes the document library as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/decryptor/internal/apperr"
	"github.com/starford/decryptor/internal/pageservice"
	"github.com/starford/decryptor/internal/session"
)

const (
	defaultWait = 5 * time.Second
	maxWait     = 120 * time.Second

	contractURI = "decryptor://embedding-contract"
)

// Documents is the subset of the page service the tools use.
type Documents interface {
	List(ctx context.Context) ([]pageservice.DocumentInfo, error)
	Load(ctx context.Context, path string) (bool, error)
	Render(path string) ([]byte, error)
	Status(ctx context.Context, path string) (session.Snapshot, error)
	Wait(ctx context.Context, path string) (session.Snapshot, error)
}

// Server wraps the MCP server with decryptor tools.
type Server struct {
	mcp  *server.MCPServer
	docs Documents
	// life bounds sessions started by tools; they must outlive a single call.
	life context.Context
}

// New creates an MCP server. Sessions loaded on demand live until life is
// cancelled.
func New(life context.Context, docs Documents) *Server {
	s := &Server{docs: docs, life: life}

	s.mcp = server.NewMCPServer(
		"Decryptor",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List library documents with their decryption progress."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("decrypt_document",
		mcp.WithDescription("Return a library document as HTML with every encrypted block and file it "+
			"references decrypted. Waits up to wait_seconds for pending entries; whatever is not "+
			"decrypted by then is returned unchanged."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Library-relative path (e.g. folder/page.html)")),
		mcp.WithNumber("wait_seconds", mcp.Description("Maximum seconds to wait for pending entries (default 5)")),
	), s.decryptDocument)

	s.mcp.AddTool(mcp.NewTool("document_status",
		mcp.WithDescription("Per-entry decryption state of a loaded document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Library-relative path")),
	), s.documentStatus)

	s.mcp.AddTool(mcp.NewTool("get_embedding_contract",
		mcp.WithDescription("Explains how encrypted text and files must be embedded in a document "+
			"so they are found and decrypted."),
	), s.getEmbeddingContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Embedding Contract",
			mcp.WithResourceDescription("How encrypted content is placed in library documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents"), nil
	}
	out, _ := json.MarshalIndent(docs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) decryptDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	wait := defaultWait
	if secs := req.GetFloat("wait_seconds", -1); secs >= 0 {
		wait = min(time.Duration(secs*float64(time.Second)), maxWait)
	}

	if _, err := s.docs.Load(s.life, path); err != nil {
		return toolError(path, err), nil
	}

	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if _, err := s.docs.Wait(wctx, path); err != nil && wctx.Err() == nil {
		return toolError(path, err), nil
	}

	body, err := s.docs.Render(path)
	if err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) documentStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.docs.Status(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	out, _ := json.MarshalIndent(snap, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getEmbeddingContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EmbeddingContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     EmbeddingContract,
		},
	}, nil
}

func toolError(path string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	}
	return mcp.NewToolResultError(err.Error())
}
