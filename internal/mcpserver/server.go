// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz sync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/adapter"
	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/scanner"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp *server.MCPServer
	eng *engine.Engine
	sc  *scanner.Scanner
}

// New creates a new MCP server with all Ansuz tools registered.
func New(eng *engine.Engine, sc *scanner.Scanner) *Server {
	s := &Server{eng: eng, sc: sc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_specs",
		mcp.WithDescription("List all spec documents under the specs root with their local sync metadata."),
	), s.listSpecs)

	s.mcp.AddTool(mcp.NewTool("spec_status",
		mcp.WithDescription("Resolve a spec document against its remote record and classify it (draft, synced, conflict)."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Spec directory name (e.g. 001-rate-limiter)")),
	), s.specStatus)

	s.mcp.AddTool(mcp.NewTool("sync_spec",
		mcp.WithDescription("Push a spec document to the remote platform. Creates or updates the bound record, "+
			"then writes the new sync baseline into the frontmatter. Spec files MUST follow the canonical "+
			"frontmatter format; read the contract first via the get_spec_contract tool or the "+
			"ansuz://spec-format resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Spec directory name")),
		mcp.WithBoolean("force", mcp.Description("Override identity mismatches and change detection")),
		mcp.WithString("strategy", mcp.Description("Conflict strategy: ours, theirs, or manual")),
	), s.syncSpec)

	s.mcp.AddTool(mcp.NewTool("dry_run_spec",
		mcp.WithDescription("Predict what sync_spec would do for a document without touching the remote or local files."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Spec directory name")),
	), s.dryRunSpec)

	s.mcp.AddTool(mcp.NewTool("get_spec_contract",
		mcp.WithDescription("Returns the canonical Ansuz spec frontmatter contract. "+
			"Call this before creating or editing spec files to ensure correct structure."),
	), s.getSpecContract)

	// Resource: spec format contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://spec-format", "Spec Format Contract",
			mcp.WithResourceDescription("Canonical spec frontmatter format that all spec files must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSpecFormatResource,
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

func (s *Server) listSpecs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.sc.ScanAll()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	type row struct {
		Name       string `json:"name"`
		SpecID     string `json:"spec_id,omitempty"`
		SyncStatus string `json:"sync_status,omitempty"`
		IssueNum   int    `json:"issue_number,omitempty"`
		Files      int    `json:"files"`
	}
	rows := make([]row, 0, len(docs))
	for _, doc := range docs {
		r := row{Name: doc.Name, Files: len(doc.Files)}
		if c := doc.Canonical(); c != nil {
			r.SpecID = c.Meta.SpecID
			r.SyncStatus = c.Meta.SyncStatus
			r.IssueNum = adapter.IssueNumber(c)
		}
		rows = append(rows, r)
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) specStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := s.eng.GetStatus(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(status, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncSpec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := engine.Options{
		Force:    req.GetBool("force", false),
		Strategy: adapter.Strategy(req.GetString("strategy", "")),
	}

	res, err := s.eng.SyncOne(ctx, name, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Ref.ID != "" {
		return mcp.NewToolResultText(fmt.Sprintf("%s: %s (record %s)", res.Name, res.Action, res.Ref.ID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", res.Name, res.Action)), nil
}

func (s *Server) dryRunSpec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.eng.DryRun(ctx, name, engine.Options{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: would %s", res.Name, res.Action)), nil
}

func (s *Server) getSpecContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SpecFormatContract), nil
}

func (s *Server) readSpecFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://spec-format",
			MIMEType: "text/markdown",
			Text:     SpecFormatContract,
		},
	}, nil
}
