package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/bpmnforms/internal/bundle"
	"github.com/rendis/bpmnforms/internal/expressions"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/store"
	"github.com/rendis/bpmnforms/internal/validation"
)

// EventRecorder appends to and reads the bundle event log.
type EventRecorder interface {
	Append(ctx context.Context, bundleID, eventType string, payload any) (*store.Event, error)
	Events(ctx context.Context, bundleID string) ([]*store.Event, error)
}

// ServerDeps holds the dependencies for creating a Server. Store and Events
// are optional; without a store, bundles are returned but not persisted and
// the bundle_id arguments are rejected.
type ServerDeps struct {
	Assembler *bundle.Assembler
	Verifier  *validation.Verifier
	Templates bundle.Templates
	Store     store.Store
	Events    EventRecorder
	Binding   graph.BindingMode
	Version   string
	Logger    *slog.Logger
}

// Server wraps an MCP server with the bpmnforms tool handlers.
type Server struct {
	assembler *bundle.Assembler
	verifier  *validation.Verifier
	templates bundle.Templates
	store     store.Store
	events    EventRecorder
	binding   graph.BindingMode
	jq        *expressions.GoJQEngine
	sessions  *SessionRegistry
	notifier  ClientNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Templates.FirstStep == nil || deps.Templates.NextStep == nil {
		return nil, fmt.Errorf("mcp: both form templates are required")
	}

	verifier := deps.Verifier
	if verifier == nil {
		v, err := validation.NewVerifier()
		if err != nil {
			return nil, fmt.Errorf("mcp: create verifier: %w", err)
		}
		verifier = v
	}
	assembler := deps.Assembler
	if assembler == nil {
		assembler = bundle.NewAssembler(bundle.AssemblerDeps{Logger: logger})
	}
	binding := deps.Binding
	if binding == "" {
		binding = graph.BindingLinked
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		assembler: assembler,
		verifier:  verifier,
		templates: deps.Templates,
		store:     deps.Store,
		events:    deps.Events,
		binding:   binding,
		jq:        expressions.NewGoJQEngine(),
		sessions:  NewSessionRegistry(),
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"bpmnforms",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("bpmnforms generates Camunda forms for the user tasks of a BPMN process and writes the matching routing expressions onto its sequence flows. Use bpmnforms.generate to build a bundle, bpmnforms.verify to check one, bpmnforms.query to inspect stored bundles, bpmnforms.diagram to preview a process and bpmnforms.simulate to see where submitted form values route."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: verifyTool(), Handler: s.handleVerify},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: simulateTool(), Handler: s.handleSimulate},
	}
}

// --- Tool definitions ---

func generateTool() mcp.Tool {
	return mcp.NewTool("bpmnforms.generate",
		mcp.WithDescription("Generate one form per start event, user task and call activity of a process and enrich its routing"),
		mcp.WithString("graph", mcp.Required(), mcp.Description("BPMN 2.0 XML document, or the JSON graph form")),
		mcp.WithString("service_name", mcp.Required(), mcp.Description("Service name substituted into the forms")),
		mcp.WithString("binding",
			mcp.Enum(string(graph.BindingLinked), string(graph.BindingKey)),
			mcp.Description("How form ids are attached to nodes (default: linked)"),
		),
		mcp.WithObject("first_step_template", mcp.Description("Form template for start events (default: built-in)")),
		mcp.WithObject("next_step_template", mcp.Description("Form template for user tasks and call activities (default: built-in)")),
		mcp.WithBoolean("save", mcp.Description("Persist the bundle (default: true when a store is configured)")),
		mcp.WithBoolean("include_forms", mcp.Description("Include form documents in the result (default: true)")),
		mcp.WithString("client_id", mcp.Description("Caller id; receives a notification when the bundle is stored")),
	)
}

func verifyTool() mcp.Tool {
	return mcp.NewTool("bpmnforms.verify",
		mcp.WithDescription("Verify a bundle: form schema, form/node binding, placeholders, routing expressions and variable agreement"),
		mcp.WithString("bundle_id", mcp.Description("ID of a stored bundle")),
		mcp.WithObject("bundle", mcp.Description("Bundle object as returned by bpmnforms.generate")),
		mcp.WithString("client_id", mcp.Description("Caller id; receives a notification with the result")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("bpmnforms.query",
		mcp.WithDescription("Query stored bundles, a single bundle, bundle events or the step catalog, optionally through a jq expression"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("bundles", "bundle", "events", "catalog"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (bundle_id, service_name, since, limit, offset)")),
		mcp.WithString("jq", mcp.Description("jq expression applied to the result, e.g. .forms[].form_id")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("bpmnforms.diagram",
		mcp.WithDescription("Render a process as ASCII art, Mermaid flowchart syntax, or a base64-encoded PNG image"),
		mcp.WithString("graph", mcp.Description("BPMN 2.0 XML document, or the JSON graph form")),
		mcp.WithString("bundle_id", mcp.Description("ID of a stored bundle; renders its enriched graph")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
		mcp.WithString("title", mcp.Description("Diagram title")),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("bpmnforms.simulate",
		mcp.WithDescription("Validate values submitted on a node's form and return the nodes the process routes to"),
		mcp.WithString("bundle_id", mcp.Description("ID of a stored bundle")),
		mcp.WithObject("bundle", mcp.Description("Bundle object as returned by bpmnforms.generate")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node whose form was submitted")),
		mcp.WithObject("variables", mcp.Required(), mcp.Description("Submitted form values, e.g. {\"nextTask\": \"Task_Approve\"}")),
	)
}
