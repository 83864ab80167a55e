package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/bpmnforms/internal/bundle"
	"github.com/rendis/bpmnforms/internal/diagram"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/logging"
	"github.com/rendis/bpmnforms/internal/routing"
	"github.com/rendis/bpmnforms/internal/store"
	"github.com/rendis/bpmnforms/internal/validation"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// handleGenerate runs a generation pass over the submitted process.
func (s *Server) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("graph")
	if err != nil {
		return mcp.NewToolResultError("graph is required"), nil
	}
	service, err := req.RequireString("service_name")
	if err != nil {
		return mcp.NewToolResultError("service_name is required"), nil
	}
	binding := graph.BindingMode(req.GetString("binding", string(s.binding)))
	if binding != graph.BindingLinked && binding != graph.BindingKey {
		return mcp.NewToolResultError(fmt.Sprintf("unknown binding %q", binding)), nil
	}

	tmpl, tmplErr := s.templatesFor(req)
	if tmplErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid template: %v", tmplErr)), nil
	}

	p, parseErr := bundle.ParseGraph([]byte(source))
	if parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %v", parseErr)), nil
	}

	b, genErr := s.assembler.Assemble(ctx, p, tmpl, bundle.Options{ServiceName: service, Binding: binding})
	if genErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", genErr)), nil
	}
	ctx = logging.WithBundleID(ctx, b.ID)

	saved := false
	if req.GetBool("save", s.store != nil) {
		if s.store == nil {
			return mcp.NewToolResultError("save requested but no store is configured"), nil
		}
		if saveErr := s.store.SaveBundle(ctx, b); saveErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to store bundle: %v", saveErr)), nil
		}
		saved = true
		s.record(ctx, b.ID, store.EventBundleGenerated, map[string]any{
			"service": b.ServiceName,
			"forms":   len(b.Forms),
		})
	}

	if clientID := req.GetString("client_id", ""); clientID != "" {
		s.captureSession(ctx, clientID)
		s.notify(ctx, clientID, BundleNotice{Event: store.EventBundleGenerated, BundleID: b.ID, Saved: &saved})
	}

	if !req.GetBool("include_forms", true) {
		return marshalResult(map[string]any{
			"saved":     saved,
			"bundle_id": b.ID,
			"manifest":  b.Manifest,
		})
	}
	return marshalResult(map[string]any{
		"saved":  saved,
		"bundle": b,
	})
}

// handleVerify checks a stored or submitted bundle.
func (s *Server) handleVerify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, stored, errResult := s.loadBundle(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	ctx = logging.WithBundleID(ctx, b.ID)

	result, err := s.verifier.Verify(ctx, b)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("verification failed: %v", err)), nil
	}

	if stored {
		s.record(ctx, b.ID, store.EventBundleVerified, map[string]any{
			"valid":    result.Valid(),
			"errors":   len(result.Errors),
			"warnings": len(result.Warnings),
		})
	}
	if clientID := req.GetString("client_id", ""); clientID != "" {
		s.captureSession(ctx, clientID)
		valid := result.Valid()
		s.notify(ctx, clientID, BundleNotice{Event: store.EventBundleVerified, BundleID: b.ID, Valid: &valid})
	}

	return marshalResult(map[string]any{
		"bundle_id": b.ID,
		"valid":     result.Valid(),
		"errors":    issuesOrEmpty(result.Errors),
		"warnings":  issuesOrEmpty(result.Warnings),
	})
}

// handleQuery lists bundles, events or catalog entries, optionally reduced
// through a jq expression.
func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("no store is configured"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	var value any
	switch resource {
	case "bundles":
		value, err = s.queryBundles(ctx, filter)
	case "bundle":
		value, err = s.queryBundle(ctx, filter)
	case "events":
		value, err = s.queryEvents(ctx, filter)
	case "catalog":
		value, err = s.queryCatalog(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	expr := req.GetString("jq", "")
	if expr == "" {
		return marshalResult(value)
	}
	results, jqErr := s.jq.Query(ctx, expr, value)
	if jqErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("jq failed: %v", jqErr)), nil
	}
	if results == nil {
		results = []any{}
	}
	return marshalResult(map[string]any{"results": results})
}

// handleDiagram renders a submitted or stored process graph.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	source := req.GetString("graph", "")
	title := req.GetString("title", "")
	if source == "" {
		bundleID := req.GetString("bundle_id", "")
		if bundleID == "" {
			return mcp.NewToolResultError("at least one of graph or bundle_id is required"), nil
		}
		if s.store == nil {
			return mcp.NewToolResultError("no store is configured"), nil
		}
		b, getErr := s.store.GetBundle(ctx, bundleID)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("bundle not found: %v", getErr)), nil
		}
		source = b.Graph
		if title == "" {
			title = b.ServiceName
		}
	}

	p, parseErr := bundle.ParseGraph([]byte(source))
	if parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %v", parseErr)), nil
	}
	model := diagram.Build(p, title)

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// handleSimulate validates submitted values against the node's form and
// follows the enriched routing from that node.
func (s *Server) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	vars := mcp.ParseStringMap(req, "variables", nil)
	if vars == nil {
		vars = map[string]any{}
	}

	b, _, errResult := s.loadBundle(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	ctx = logging.WithNodeID(logging.WithBundleID(ctx, b.ID), nodeID)

	hidden := []string{}
	if f := b.Form(nodeID); f != nil {
		valuesSchema, schemaErr := validation.ValuesSchema(f.Document)
		if schemaErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("derive values schema: %v", schemaErr)), nil
		}
		if valErr := s.verifier.Forms().ValidateValues(vars, valuesSchema); valErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid variables: %v", valErr)), nil
		}
		var hideErr error
		if hidden, hideErr = s.verifier.HiddenFields(ctx, f.Document, vars); hideErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("evaluate hide rules: %v", hideErr)), nil
		}
	}

	p, parseErr := bundle.ParseGraph([]byte(b.Graph))
	if parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %v", parseErr)), nil
	}
	targets, routeErr := routing.NewSimulator(p).Route(ctx, nodeID, vars)
	if routeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("simulation failed: %v", routeErr)), nil
	}

	reached := make([]map[string]any, 0, len(targets))
	for _, id := range targets {
		n := p.Node(id)
		entry := map[string]any{"node_id": id, "name": n.DisplayName(), "kind": n.Kind}
		if n.Form != nil {
			entry["form_id"] = n.Form.FormID
		}
		reached = append(reached, entry)
	}
	s.logger.DebugContext(ctx, "route simulated", slog.Int("targets", len(reached)))

	return marshalResult(map[string]any{
		"bundle_id": b.ID,
		"node_id":   nodeID,
		"targets":   reached,
		"hidden":    hidden,
	})
}

// --- Query helpers ---

func (s *Server) queryBundles(ctx context.Context, filter map[string]any) (any, error) {
	bf := store.BundleFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if service, ok := filter["service_name"].(string); ok {
		bf.ServiceName = service
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return nil, fmt.Errorf("invalid since %q: %w", since, err)
		}
		bf.Since = &t
	}
	bundles, err := s.store.ListBundles(ctx, bf)
	if err != nil {
		return nil, err
	}
	if bundles == nil {
		bundles = []*store.BundleSummary{}
	}
	return map[string]any{"bundles": bundles}, nil
}

func (s *Server) queryBundle(ctx context.Context, filter map[string]any) (any, error) {
	id, _ := filter["bundle_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("bundle query requires 'bundle_id' in filter")
	}
	return s.store.GetBundle(ctx, id)
}

func (s *Server) queryEvents(ctx context.Context, filter map[string]any) (any, error) {
	id, _ := filter["bundle_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("event query requires 'bundle_id' in filter")
	}
	if s.events == nil {
		return nil, fmt.Errorf("no event log is configured")
	}
	events, err := s.events.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*store.Event{}
	}
	return map[string]any{"events": events}, nil
}

func (s *Server) queryCatalog(ctx context.Context) (any, error) {
	entries, err := s.store.ListCatalogEntries(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*store.CatalogEntry{}
	}
	return map[string]any{"catalog": entries}, nil
}

// --- Internal helpers ---

// loadBundle reads the bundle named by bundle_id from the store, or decodes
// the bundle argument. stored reports whether it came from the store.
func (s *Server) loadBundle(ctx context.Context, req mcp.CallToolRequest) (b *schema.Bundle, stored bool, errResult *mcp.CallToolResult) {
	if id := req.GetString("bundle_id", ""); id != "" {
		if s.store == nil {
			return nil, false, mcp.NewToolResultError("no store is configured")
		}
		got, err := s.store.GetBundle(ctx, id)
		if err != nil {
			return nil, false, mcp.NewToolResultError(fmt.Sprintf("bundle not found: %v", err))
		}
		return got, true, nil
	}

	raw := mcp.ParseStringMap(req, "bundle", nil)
	if raw == nil {
		return nil, false, mcp.NewToolResultError("one of bundle_id or bundle is required")
	}
	var decoded schema.Bundle
	if err := remarshal(raw, &decoded); err != nil {
		return nil, false, mcp.NewToolResultError(fmt.Sprintf("invalid bundle: %v", err))
	}
	return &decoded, false, nil
}

// templatesFor returns the server templates with any per-call overrides.
func (s *Server) templatesFor(req mcp.CallToolRequest) (bundle.Templates, error) {
	tmpl := s.templates
	if raw := mcp.ParseStringMap(req, "first_step_template", nil); raw != nil {
		f, err := decodeForm(raw)
		if err != nil {
			return bundle.Templates{}, fmt.Errorf("first_step_template: %w", err)
		}
		tmpl.FirstStep = f
	}
	if raw := mcp.ParseStringMap(req, "next_step_template", nil); raw != nil {
		f, err := decodeForm(raw)
		if err != nil {
			return bundle.Templates{}, fmt.Errorf("next_step_template: %w", err)
		}
		tmpl.NextStep = f
	}
	return tmpl, nil
}

func decodeForm(raw map[string]any) (*schema.Form, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return schema.ParseForm(data)
}

// remarshal converts a decoded JSON object into a typed value.
func remarshal(in map[string]any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// record appends to the event log. Failures are logged, not returned.
func (s *Server) record(ctx context.Context, bundleID, eventType string, payload any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Append(ctx, bundleID, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "record bundle event failed",
			slog.String("event", eventType), slog.String("error", err.Error()))
	}
}

func (s *Server) notify(ctx context.Context, clientID string, notice BundleNotice) {
	if err := s.notifier.Notify(ctx, clientID, notice); err != nil {
		s.logger.WarnContext(ctx, "client notification failed",
			slog.String("client_id", clientID), slog.String("error", err.Error()))
	}
}

func issuesOrEmpty(issues []schema.ValidationIssue) []schema.ValidationIssue {
	if issues == nil {
		return []schema.ValidationIssue{}
	}
	return issues
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession maps the client id to its current MCP session for notifications.
func (s *Server) captureSession(ctx context.Context, clientID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(clientID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
