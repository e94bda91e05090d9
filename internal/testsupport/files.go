package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"quill/internal/document"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteDocument serializes doc into the lifecycle directory for stage.
func WriteDocument(t testing.TB, lib *document.Library, stage document.Stage, doc document.Document) string {
	t.Helper()

	if doc.Header == nil {
		doc.Header = document.NewHeader()
	}
	doc.Header.Set(document.KeyStage, string(stage))
	path := lib.Path(stage, doc.Slug())
	WriteFile(t, path, document.Serialize(doc))
	return path
}
