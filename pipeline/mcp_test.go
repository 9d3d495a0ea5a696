package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdfmill/backend"
	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/kit"
)

func pipelineSession(t *testing.T, p *Pipeline) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "pdfmill-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	p.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(impl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callJSON invokes a tool and decodes its text content into out.
func callJSON(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("%s tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("%s content type: %T", name, result.Content[0])
	}
	if err := json.Unmarshal([]byte(tc.Text), out); err != nil {
		t.Fatalf("%s decode: %v", name, err)
	}
}

func TestMCPClassifyTool(t *testing.T) {
	p := testPipeline(t, filepath.Join(t.TempDir(), "out"),
		newFakeExtractor(classifier.RouteText), newFakeExtractor(classifier.RouteOCR))
	session := pipelineSession(t, p)

	corpusDir := p.cfg.Source.Path

	var small classifier.Decision
	callJSON(t, session, "pdfmill_classify",
		map[string]any{"path": filepath.Join(corpusDir, "doc_0.pdf")}, &small)
	if small.ID != "doc_0" || small.Route != classifier.RouteText {
		t.Fatalf("small doc decision: %+v", small)
	}

	var big classifier.Decision
	callJSON(t, session, "pdfmill_classify",
		map[string]any{"path": filepath.Join(corpusDir, "doc_2.pdf")}, &big)
	if big.Route != classifier.RouteOCR {
		t.Fatalf("big doc decision: %+v", big)
	}
	if big.OCRProbability < p.router.Threshold() {
		t.Fatalf("ocr probability %v below threshold", big.OCRProbability)
	}
}

func TestMCPClassifyToolMissingFile(t *testing.T) {
	p := testPipeline(t, filepath.Join(t.TempDir(), "out"),
		newFakeExtractor(classifier.RouteText), newFakeExtractor(classifier.RouteOCR))
	session := pipelineSession(t, p)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pdfmill_classify",
		Arguments: map[string]any{"path": "/no/such.pdf"},
	})
	if err != nil {
		t.Fatalf("protocol error: %v", err)
	}
	if result.GetError() == nil {
		t.Fatal("expected tool-level error for missing file")
	}
}

func TestMCPExtractTool(t *testing.T) {
	textExt := newFakeExtractor(classifier.RouteText)
	ocrExt := newFakeExtractor(classifier.RouteOCR)
	p := testPipeline(t, filepath.Join(t.TempDir(), "out"), textExt, ocrExt)
	session := pipelineSession(t, p)

	corpusDir := p.cfg.Source.Path

	// Classifier picks the route when none is forced.
	var res backend.Result
	callJSON(t, session, "pdfmill_extract",
		map[string]any{"path": filepath.Join(corpusDir, "doc_1.pdf")}, &res)
	if res.ID != "doc_1" || res.Status != backend.StatusSuccess {
		t.Fatalf("result: %+v", res)
	}
	if textExt.callCount("doc_1") != 1 || ocrExt.callCount("doc_1") != 0 {
		t.Fatal("small document should have gone to the text backend")
	}

	// Forcing ocr overrides the classifier.
	callJSON(t, session, "pdfmill_extract",
		map[string]any{"path": filepath.Join(corpusDir, "doc_1.pdf"), "route": "ocr"}, &res)
	if ocrExt.callCount("doc_1") != 1 {
		t.Fatal("forced route ignored")
	}

	// Unknown route is a tool error.
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pdfmill_extract",
		Arguments: map[string]any{"path": filepath.Join(corpusDir, "doc_1.pdf"), "route": "teleport"},
	})
	if err != nil {
		t.Fatalf("protocol error: %v", err)
	}
	if result.GetError() == nil {
		t.Fatal("expected tool-level error for unknown route")
	}
}

func TestInstrumentTagsRequestID(t *testing.T) {
	p := testPipeline(t, filepath.Join(t.TempDir(), "out"),
		newFakeExtractor(classifier.RouteText), newFakeExtractor(classifier.RouteOCR))

	var seen string
	ep := p.instrument("pdfmill_classify", func(ctx context.Context, _ any) (any, error) {
		seen = kit.GetRequestID(ctx)
		return nil, nil
	})
	if _, err := ep(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q, want req_ prefix", seen)
	}

	// Endpoint errors pass through the middleware untouched.
	boom := errors.New("boom")
	ep = p.instrument("pdfmill_classify", func(context.Context, any) (any, error) {
		return nil, boom
	})
	if _, err := ep(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestMCPStatsTool(t *testing.T) {
	p := testPipeline(t, filepath.Join(t.TempDir(), "out"),
		newFakeExtractor(classifier.RouteText), newFakeExtractor(classifier.RouteOCR))
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	session := pipelineSession(t, p)

	var progress Progress
	callJSON(t, session, "pdfmill_stats", map[string]any{}, &progress)
	if len(progress.Stages) != 3 {
		t.Fatalf("stages = %d, want 3", len(progress.Stages))
	}
	if progress.Report == nil || progress.Report.Totals[StageText].Counters.Processed != 7 {
		t.Fatalf("stats report: %+v", progress.Report)
	}
}
