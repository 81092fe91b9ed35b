package walker

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
)

// testdataDir returns the absolute path to the testdata/documents directory.
func testdataDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to determine test file location")
	}
	root := filepath.Join(filepath.Dir(filename), "..", "..", "testdata", "documents")
	abs, err := filepath.Abs(root)
	if err != nil {
		t.Fatalf("resolve testdata path: %v", err)
	}
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		t.Fatalf("testdata dir does not exist: %s", abs)
	}
	return abs
}

func relPaths(files []FileInfo) []string {
	var out []string
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	sort.Strings(out)
	return out
}

func TestWalk_SupportedExtensions(t *testing.T) {
	files, err := Walk(WalkerConfig{
		RootDir:    testdataDir(t),
		Extensions: []string{".pdf", ".txt"},
	})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}

	got := relPaths(files)
	want := []string{"handbook.txt", "nested/faq.txt", "notes.txt"}
	if len(got) != len(want) {
		t.Fatalf("Walk() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalk_FileInfoFields(t *testing.T) {
	files, err := Walk(WalkerConfig{RootDir: testdataDir(t), Extensions: []string{".txt"}})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}

	for _, f := range files {
		if !filepath.IsAbs(f.Path) {
			t.Errorf("FileInfo.Path %q is not absolute", f.Path)
		}
		if f.Extension != ".txt" {
			t.Errorf("FileInfo.Extension = %q, want .txt", f.Extension)
		}
		if f.Size <= 0 {
			t.Errorf("FileInfo.Size for %s should be positive", f.RelPath)
		}
		if len(f.ContentHash) != 64 {
			t.Errorf("FileInfo.ContentHash for %s should be 64 hex chars, got %d", f.RelPath, len(f.ContentHash))
		}
	}
}

func TestWalk_SkipsHiddenDirs(t *testing.T) {
	files, err := Walk(WalkerConfig{RootDir: testdataDir(t)})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	for _, f := range files {
		if f.RelPath == ".cache/old.txt" {
			t.Error("hidden directory should be skipped")
		}
	}
}

func TestWalk_IncludeExclude(t *testing.T) {
	files, err := Walk(WalkerConfig{
		RootDir: testdataDir(t),
		Include: []string{"**/*.txt"},
		Exclude: []string{"nested/**"},
	})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	for _, f := range files {
		if f.RelPath == "nested/faq.txt" {
			t.Error("nested/faq.txt should be excluded")
		}
		if f.Extension != ".txt" {
			t.Errorf("unexpected file %s", f.RelPath)
		}
	}
}

func TestWalk_MaxFileSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "small.txt"), []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := Walk(WalkerConfig{RootDir: dir, MaxFileSize: 1024})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "small.txt" {
		t.Errorf("expected only small.txt, got %v", relPaths(files))
	}
}

func TestWalk_NotADirectory(t *testing.T) {
	path := filepath.Join(testdataDir(t), "notes.txt")
	if _, err := Walk(WalkerConfig{RootDir: path}); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestMatchesInclude_CaseInsensitive(t *testing.T) {
	if !MatchesInclude("reports/Q3.PDF", []string{"**/*.pdf"}) {
		t.Error("expected upper-case extension to match")
	}
	if MatchesInclude("reports/q3.docx", []string{"**/*.pdf"}) {
		t.Error("docx should not match *.pdf")
	}
	if !MatchesInclude("anything", nil) {
		t.Error("empty include list should include everything")
	}
}

func TestMatchesExclude(t *testing.T) {
	if !MatchesExclude("drafts/~$report.txt", []string{"**/~$*"}) {
		t.Error("expected office lock file to be excluded")
	}
	if MatchesExclude("notes.txt", nil) {
		t.Error("empty exclude list should exclude nothing")
	}
}
