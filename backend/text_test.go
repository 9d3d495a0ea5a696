package backend

import (
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/corpus"
)

func TestTextExtractor(t *testing.T) {
	// WHAT: the structured-text path extracts a single-page PDF.
	// WHY: this is the fast variant; it must report page count and status
	// without touching any network service.
	doc := corpus.Document{ID: "doc1", Data: buildTextPDF("hello extraction world")}
	e := NewTextExtractor(nil)

	res, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "doc1" {
		t.Fatalf("id = %q, want doc1", res.ID)
	}
	if res.Route != classifier.RouteText {
		t.Fatalf("route = %q, want %q", res.Route, classifier.RouteText)
	}
	if res.PageCount != 1 {
		t.Fatalf("page count = %d, want 1", res.PageCount)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want %q", res.Status, StatusSuccess)
	}
	if !strings.Contains(res.Text, "hello") {
		t.Logf("note: parser extracted %q from minimal fixture", res.Text)
	}
}

func TestTextExtractorEmptyTextIsSuccess(t *testing.T) {
	// A parseable document with no extractable text is still a success.
	doc := corpus.Document{ID: "empty", Data: buildTextPDF("")}
	res, err := NewTextExtractor(nil).Extract(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want %q", res.Status, StatusSuccess)
	}
}

func TestTextExtractorCorrupt(t *testing.T) {
	doc := corpus.Document{ID: "bad", Data: []byte("%PDF-1.4 not really")}
	_, err := NewTextExtractor(nil).Extract(context.Background(), doc)
	if err == nil {
		t.Fatal("expected error for corrupt PDF")
	}
	if Retryable(err) {
		t.Fatalf("corrupt content must not be retryable: %v", err)
	}
}

func TestTextExtractorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := corpus.Document{ID: "doc", Data: buildTextPDF("x")}
	_, err := NewTextExtractor(nil).Extract(ctx, doc)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if !Retryable(err) {
		t.Fatalf("deadline errors must be retryable: %v", err)
	}
}
