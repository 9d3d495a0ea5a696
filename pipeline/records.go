package pipeline

// Stage names. Each (stage, shard) pair produces one output file and one
// completion marker.
const (
	StageClassification = "classification"
	StageText           = "text"
	StageOCR            = "ocr"
)

// FailureRecord is one document that a stage could not process. Failures
// are data, not log lines: they land next to the successes so a corpus
// audit never has to grep logs.
type FailureRecord struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// LayoutDirs are the output subdirectories a run creates.
//
//	classification/  routing decisions, one file per shard
//	text/ ocr/       extraction results, one file per shard
//	text_input/      PDFs routed to the text path
//	ocr_input/       PDFs routed to the OCR path
//	ocr_pages/       rendered page images kept for audit
//	failures/        per-stage failure records
//	stats/           per-shard counter snapshots
//	completions/     completion markers
var LayoutDirs = []string{
	"classification", "text", "ocr",
	"text_input", "ocr_input", "ocr_pages",
	"failures", "stats", "completions",
}
