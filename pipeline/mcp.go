package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdfmill/backend"
	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/corpus"
	"github.com/hazyhaar/pdfmill/idgen"
	"github.com/hazyhaar/pdfmill/kit"
)

// RegisterMCP registers pdfmill tools on an MCP server. The tools operate
// on single documents, for interactive probing of a corpus before or after
// a batch run.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerClassifyTool(srv)
	p.registerExtractTool(srv)
	p.registerStatsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// requestIDs tags tool invocations for log correlation.
var requestIDs = idgen.Prefixed("req_", idgen.Default)

// instrument chains the shared tool middleware onto an endpoint: every call
// carries a request ID and leaves a debug line with its outcome.
func (p *Pipeline) instrument(tool string, ep kit.Endpoint) kit.Endpoint {
	tag := kit.Middleware(func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			return next(kit.WithRequestID(ctx, requestIDs()), req)
		}
	})
	logged := kit.Middleware(func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			p.logger.Debug("tool call",
				"tool", tool,
				"request_id", kit.GetRequestID(ctx),
				"transport", kit.GetTransport(ctx),
				"duration", time.Since(start),
				"error", err)
			return resp, err
		}
	})
	return kit.Chain(tag, logged)(ep)
}

func (p *Pipeline) loadFile(path string) (corpus.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return corpus.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	id := filepath.Base(path)
	if ext := filepath.Ext(id); ext != "" {
		id = id[:len(id)-len(ext)]
	}
	return corpus.Document{ID: id, Data: data, Origin: path, Size: int64(len(data))}, nil
}

// --- classify ---

type classifyReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerClassifyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfmill_classify",
		Description: "Score one PDF with the routing classifier and report its OCR probability and route.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF file path"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*classifyReq)
		doc, err := p.loadFile(r.Path)
		if err != nil {
			return nil, err
		}
		return p.router.Route(doc)
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r classifyReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, p.instrument(tool.Name, endpoint), decode)
}

// --- extract ---

type extractReq struct {
	Path  string `json:"path"`
	Route string `json:"route"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfmill_extract",
		Description: "Extract text from one PDF. Route is chosen by the classifier unless forced to 'text' or 'ocr'.",
		InputSchema: inputSchema(map[string]any{
			"path":  map[string]any{"type": "string", "description": "PDF file path"},
			"route": map[string]any{"type": "string", "description": "Force 'text' or 'ocr'; empty lets the classifier decide"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractReq)
		doc, err := p.loadFile(r.Path)
		if err != nil {
			return nil, err
		}

		route := classifier.Route(r.Route)
		switch route {
		case classifier.RouteText, classifier.RouteOCR:
		case "":
			dec, err := p.router.Route(doc)
			if err != nil {
				return nil, err
			}
			route = dec.Route
		default:
			return nil, fmt.Errorf("unknown route %q", r.Route)
		}

		var ext backend.Extractor = p.textExt
		if route == classifier.RouteOCR {
			ext = p.ocrExt
		}
		res, retries, err := p.extractWithRetry(ctx, ext, doc)
		if err != nil {
			return nil, err
		}
		if retries > 0 {
			res.Status = backend.StatusRetriedSuccess
		}
		return res, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r extractReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, p.instrument(tool.Name, endpoint), decode)
}

// --- stats ---

func (p *Pipeline) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdfmill_stats",
		Description: "Report per-stage totals and shard completion for the configured output directory.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return p.Progress(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) {
		return nil, nil
	}

	kit.RegisterMCPTool(srv, tool, p.instrument(tool.Name, endpoint), decode)
}
