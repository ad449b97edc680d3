// Package mcpadapter exposes the classification engine as MCP tools.
package mcpadapter

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
	"github.com/kirillkom/property-doc-engine/internal/core/usecase"
)

const serverName = "property-doc-engine"

type Services struct {
	Classifier ports.Classifier
	Extractor  ports.FieldExtractor
	TestRunner ports.TestRunner
	Suggester  ports.Suggester
	Documents  ports.DocumentReader
}

type handlers struct {
	svc    Services
	logger *slog.Logger
}

// NewServer registers one tool per configured service.
func NewServer(version string, svc Services, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: logger}

	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Classify property management documents, extract their fields and build business object suggestions."),
	)

	if svc.Classifier != nil {
		s.AddTool(mcp.NewTool("classify_text",
			mcp.WithDescription("Rank active document types against raw text and report whether the best one is auto-assigned."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Extracted document text")),
		), h.classifyText)
	}
	if svc.Extractor != nil {
		s.AddTool(mcp.NewTool("extract_fields",
			mcp.WithDescription("Apply one document type's extraction rules to raw text."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Extracted document text")),
			mcp.WithString("document_type_id", mcp.Required(), mcp.MinLength(1)),
		), h.extractFields)
	}
	if svc.TestRunner != nil {
		s.AddTool(mcp.NewTool("run_test",
			mcp.WithDescription("Classify ad hoc text, extract fields with the chosen or top type and optionally check determinism."),
			mcp.WithString("text", mcp.Required()),
			mcp.WithString("document_type_id", mcp.Description("Type to extract with; defaults to the top-ranked type")),
			mcp.WithNumber("determinism_runs", mcp.Min(0), mcp.Max(usecase.MaxDeterminismRuns)),
			mcp.WithBoolean("include_inactive"),
		), h.runTest)
	}
	if svc.Suggester != nil {
		s.AddTool(mcp.NewTool("suggest_document",
			mcp.WithDescription("Build the business object suggestion for a stored document."),
			mcp.WithString("document_id", mcp.Required(), mcp.MinLength(1)),
		), h.suggestDocument)
	}
	if svc.Documents != nil {
		s.AddTool(mcp.NewTool("get_document",
			mcp.WithDescription("Return a stored document's metadata and processing status."),
			mcp.WithString("document_id", mcp.Required(), mcp.MinLength(1)),
		), h.getDocument)
	}
	return s
}

func (h *handlers) classifyText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.svc.Classifier.Classify(ctx, text)
	return h.respond("classify_text", result, err)
}

func (h *handlers) extractFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typeID, err := req.RequireString("document_type_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.svc.Extractor.Extract(ctx, text, typeID)
	return h.respond("extract_fields", result, err)
}

func (h *handlers) runTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.svc.TestRunner.Run(ctx, domain.TestRunRequest{
		Text:            text,
		TypeID:          req.GetString("document_type_id", ""),
		DeterminismRuns: req.GetInt("determinism_runs", 0),
		IncludeInactive: req.GetBool("include_inactive", false),
	})
	return h.respond("run_test", result, err)
}

func (h *handlers) suggestDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.svc.Suggester.Suggest(ctx, documentID)
	return h.respond("suggest_document", result, err)
}

func (h *handlers) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := h.svc.Documents.GetByID(ctx, documentID)
	return h.respond("get_document", doc, err)
}

// respond reports domain failures inside the tool result so the client model
// can see them; only unexpected ones are logged.
func (h *handlers) respond(tool string, payload any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		switch {
		case domain.IsKind(err, domain.ErrNotFound):
			return mcp.NewToolResultErrorFromErr("not found", err), nil
		case domain.IsKind(err, domain.ErrInvalidInput):
			return mcp.NewToolResultErrorFromErr("invalid input", err), nil
		case domain.IsKind(err, domain.ErrTemporary):
			return mcp.NewToolResultErrorFromErr("temporarily unavailable, retry later", err), nil
		default:
			h.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
			return mcp.NewToolResultError("internal error"), nil
		}
	}
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		h.logger.Error("mcp_tool_encode_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error"), nil
	}
	return result, nil
}
