package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnforms/internal/bundle"
	"github.com/rendis/bpmnforms/internal/graph/graphtest"
	"github.com/rendis/bpmnforms/internal/store"
	"github.com/rendis/bpmnforms/internal/templates"
)

// --- Helpers ---

func defaultTemplates(t *testing.T) bundle.Templates {
	t.Helper()
	pair, err := templates.Default()
	require.NoError(t, err)
	return bundle.Templates{FirstStep: pair.FirstStep, NextStep: pair.NextStep}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestServer builds a server with a deterministic assembler. st may be nil.
func newTestServer(t *testing.T, st *store.LibSQLStore) *Server {
	t.Helper()
	deps := ServerDeps{
		Assembler: bundle.NewAssembler(bundle.AssemblerDeps{
			Logger: discardLogger(),
			Clock:  func() time.Time { return time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC) },
			NewID:  func() string { return "b-mcp" },
		}),
		Templates: defaultTemplates(t),
		Logger:    discardLogger(),
	}
	if st != nil {
		deps.Store = st
		deps.Events = store.NewEventLog(st)
	}
	s, err := NewServer(deps)
	require.NoError(t, err)
	return s
}

func reviewGraphJSON(t *testing.T) string {
	t.Helper()
	g := graphtest.New().
		Start("S").Task("T1", "Review").XOR("G", "Decision").
		Task("T2", "Approve").Task("T3", "Reject").End("E").
		Chain("S", "T1", "G").Fan("G", "T2", "T3").
		Chain("T2", "E").Chain("T3", "E").
		Build()
	data, err := g.Serialize()
	require.NoError(t, err)
	return string(data)
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, result.IsError, extractText(t, result))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(extractText(t, result)), &out))
	return out
}

func generate(t *testing.T, s *Server, extra map[string]any) map[string]any {
	t.Helper()
	args := map[string]any{"graph": reviewGraphJSON(t), "service_name": "Permits"}
	for k, v := range extra {
		args[k] = v
	}
	result, err := s.handleGenerate(context.Background(), buildRequest("bpmnforms.generate", args))
	require.NoError(t, err)
	return decodeResult(t, result)
}

// --- Tests ---

func TestGenerateTool(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)

	out := generate(t, s, nil)
	assert.Equal(t, true, out["saved"])
	b := out["bundle"].(map[string]any)
	assert.Equal(t, "b-mcp", b["id"])
	assert.Len(t, b["forms"], 4)

	stored, err := st.GetBundle(context.Background(), "b-mcp")
	require.NoError(t, err)
	assert.Equal(t, "Permits", stored.ServiceName)

	events, err := store.NewEventLog(st).Events(context.Background(), "b-mcp")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventBundleGenerated, events[0].Type)
}

func TestGenerateTool_WithoutStore(t *testing.T) {
	s := newTestServer(t, nil)

	out := generate(t, s, map[string]any{"include_forms": false})
	assert.Equal(t, false, out["saved"])
	assert.Equal(t, "b-mcp", out["bundle_id"])
	assert.NotNil(t, out["manifest"])
	assert.Nil(t, out["bundle"])

	result, err := s.handleGenerate(context.Background(), buildRequest("bpmnforms.generate", map[string]any{
		"graph": reviewGraphJSON(t), "service_name": "Permits", "save": true,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "no store")
}

func TestGenerateTool_TemplateOverride(t *testing.T) {
	s := newTestServer(t, nil)

	out := generate(t, s, map[string]any{
		"next_step_template": map[string]any{
			"type": "default",
			"components": []any{
				map[string]any{"id": "Text_1", "type": "text", "text": "# STEP_NAME_PLACEHOLDER"},
			},
		},
	})
	forms := out["bundle"].(map[string]any)["forms"].([]any)
	review := forms[1].(map[string]any)
	assert.Equal(t, "001-review.form", review["filename"])
	doc := review["document"].(map[string]any)
	components := doc["components"].([]any)
	require.Len(t, components, 1)
	assert.Equal(t, "# Review", components[0].(map[string]any)["text"])
}

func TestGenerateTool_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing graph", map[string]any{"service_name": "x"}, "graph is required"},
		{"missing service", map[string]any{"graph": "{}"}, "service_name is required"},
		{"bad graph", map[string]any{"graph": "{", "service_name": "x"}, "invalid graph"},
		{"bad binding", map[string]any{"graph": "{}", "service_name": "x", "binding": "inline"}, "unknown binding"},
		{"bad template", map[string]any{"graph": "{}", "service_name": "x", "first_step_template": map[string]any{"components": "nope"}}, "invalid template"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleGenerate(context.Background(), buildRequest("bpmnforms.generate", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tc.want)
		})
	}
}

func TestVerifyTool_Stored(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)
	generate(t, s, nil)

	result, err := s.handleVerify(context.Background(), buildRequest("bpmnforms.verify", map[string]any{
		"bundle_id": "b-mcp",
	}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, true, out["valid"])
	assert.Empty(t, out["errors"])

	events, err := store.NewEventLog(st).Events(context.Background(), "b-mcp")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, store.EventBundleVerified, events[1].Type)
}

func TestVerifyTool_Submitted(t *testing.T) {
	s := newTestServer(t, nil)
	b := generate(t, s, nil)["bundle"].(map[string]any)

	result, err := s.handleVerify(context.Background(), buildRequest("bpmnforms.verify", map[string]any{
		"bundle": b,
	}))
	require.NoError(t, err)
	assert.Equal(t, true, decodeResult(t, result)["valid"])

	// Drop a form: coverage and binding checks fail.
	b["forms"] = b["forms"].([]any)[:2]
	result, err = s.handleVerify(context.Background(), buildRequest("bpmnforms.verify", map[string]any{
		"bundle": b,
	}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, false, out["valid"])
	assert.NotEmpty(t, out["errors"])
}

func TestVerifyTool_Missing(t *testing.T) {
	s := newTestServer(t, nil)

	result, err := s.handleVerify(context.Background(), buildRequest("bpmnforms.verify", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleVerify(context.Background(), buildRequest("bpmnforms.verify", map[string]any{"bundle_id": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "no store")
}

func TestQueryTool(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)
	generate(t, s, nil)
	require.NoError(t, st.UpsertCatalogEntry(context.Background(), &store.CatalogEntry{Name: "Review", Description: "Check it."}))

	query := func(args map[string]any) *mcp.CallToolResult {
		result, err := s.handleQuery(context.Background(), buildRequest("bpmnforms.query", args))
		require.NoError(t, err)
		return result
	}

	out := decodeResult(t, query(map[string]any{"resource": "bundles"}))
	assert.Len(t, out["bundles"], 1)

	out = decodeResult(t, query(map[string]any{"resource": "bundles", "jq": "[.bundles[].id]"}))
	assert.Equal(t, []any{[]any{"b-mcp"}}, out["results"])

	out = decodeResult(t, query(map[string]any{
		"resource": "bundle",
		"filter":   map[string]any{"bundle_id": "b-mcp"},
		"jq":       ".forms[].filename",
	}))
	assert.Equal(t, []any{"000-start.form", "001-review.form", "002-approve.form", "003-reject.form"}, out["results"])

	out = decodeResult(t, query(map[string]any{"resource": "events", "filter": map[string]any{"bundle_id": "b-mcp"}}))
	assert.Len(t, out["events"], 1)

	out = decodeResult(t, query(map[string]any{"resource": "catalog"}))
	assert.Len(t, out["catalog"], 1)

	out = decodeResult(t, query(map[string]any{"resource": "bundles", "filter": map[string]any{"service_name": "Other"}}))
	assert.Empty(t, out["bundles"])
}

func TestQueryTool_Errors(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing resource", map[string]any{}, "resource is required"},
		{"unknown resource", map[string]any{"resource": "workflows"}, "unknown resource type"},
		{"bundle without id", map[string]any{"resource": "bundle"}, "bundle_id"},
		{"events without id", map[string]any{"resource": "events"}, "bundle_id"},
		{"bad since", map[string]any{"resource": "bundles", "filter": map[string]any{"since": "yesterday"}}, "invalid since"},
		{"bad jq", map[string]any{"resource": "bundles", "jq": ".["}, "jq failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleQuery(context.Background(), buildRequest("bpmnforms.query", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tc.want)
		})
	}
}

func TestDiagramTool(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)
	generate(t, s, nil)

	diagramOf := func(args map[string]any) *mcp.CallToolResult {
		result, err := s.handleDiagram(context.Background(), buildRequest("bpmnforms.diagram", args))
		require.NoError(t, err)
		return result
	}

	result := diagramOf(map[string]any{"graph": reviewGraphJSON(t), "format": "mermaid"})
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "graph LR")

	result = diagramOf(map[string]any{"bundle_id": "b-mcp", "format": "ascii"})
	require.False(t, result.IsError)
	text := extractText(t, result)
	assert.Contains(t, text, "=== Permits ===")
	assert.Contains(t, text, "form: 001-review-20260601T083000Z")

	result = diagramOf(map[string]any{"bundle_id": "b-mcp", "format": "image"})
	require.False(t, result.IsError)
	png, err := base64.StdEncoding.DecodeString(extractText(t, result))
	require.NoError(t, err)
	require.True(t, len(png) > 4)
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])

	result = diagramOf(map[string]any{"format": "svg", "graph": "{}"})
	assert.True(t, result.IsError)
	result = diagramOf(map[string]any{"format": "ascii"})
	assert.True(t, result.IsError)
	result = diagramOf(map[string]any{"format": "ascii", "bundle_id": "missing"})
	assert.True(t, result.IsError)
}

func TestSimulateTool(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)
	generate(t, s, nil)

	simulate := func(vars map[string]any) *mcp.CallToolResult {
		result, err := s.handleSimulate(context.Background(), buildRequest("bpmnforms.simulate", map[string]any{
			"bundle_id": "b-mcp",
			"node_id":   "T1",
			"variables": vars,
		}))
		require.NoError(t, err)
		return result
	}

	out := decodeResult(t, simulate(map[string]any{"nextTask": "T2"}))
	targets := out["targets"].([]any)
	require.Len(t, targets, 1)
	first := targets[0].(map[string]any)
	assert.Equal(t, "T2", first["node_id"])
	assert.Equal(t, "Approve", first["name"])
	assert.Equal(t, "002-approve-20260601T083000Z", first["form_id"])
	assert.Empty(t, out["hidden"])

	out = decodeResult(t, simulate(map[string]any{"nextTask": "T3"}))
	assert.Equal(t, "T3", out["targets"].([]any)[0].(map[string]any)["node_id"])

	result := simulate(map[string]any{"nextTask": "nope"})
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "invalid variables")
}

func TestSimulateTool_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	b := generate(t, s, nil)["bundle"].(map[string]any)

	result, err := s.handleSimulate(context.Background(), buildRequest("bpmnforms.simulate", map[string]any{
		"bundle": b, "variables": map[string]any{},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "node_id is required")

	result, err = s.handleSimulate(context.Background(), buildRequest("bpmnforms.simulate", map[string]any{
		"bundle": b, "node_id": "ghost", "variables": map[string]any{},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "simulation failed")
}

func TestExtractInt(t *testing.T) {
	filter := map[string]any{"a": float64(3), "b": 4, "c": "5", "d": "x"}
	assert.Equal(t, 3, extractInt(filter, "a", 0))
	assert.Equal(t, 4, extractInt(filter, "b", 0))
	assert.Equal(t, 5, extractInt(filter, "c", 0))
	assert.Equal(t, 9, extractInt(filter, "d", 9))
	assert.Equal(t, 9, extractInt(nil, "a", 9))
}
