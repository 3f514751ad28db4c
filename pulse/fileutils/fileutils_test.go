package fileutils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "reviews_history.jsonl")
	if err := WriteFileAtomic(path, []byte("a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("b\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want 1", len(entries))
	}
	b, _ := os.ReadFile(path)
	if string(b) != "b\n" {
		t.Fatalf("content=%q", string(b))
	}
}

func TestLatestArtifact_PrefersDateInName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	names := []string{"reviews_2025-02-02.csv", "reviews_2025-02-09.csv", "reviews_2025-01-26.csv", "notes.txt"}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	// Make the oldest-by-name file the newest by mtime.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "reviews_2025-01-26.csv"), future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	a, err := LatestArtifact(dir, "reviews_*.csv")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if filepath.Base(a.Path) != "reviews_2025-02-09.csv" {
		t.Fatalf("latest=%s", a.Path)
	}

	all, err := MatchingArtifacts(dir, "reviews_*.csv")
	if err != nil {
		t.Fatalf("matching: %v", err)
	}
	if len(all) != 3 || filepath.Base(all[0].Path) != "reviews_2025-01-26.csv" {
		t.Fatalf("all=%v", all)
	}

	if _, err := LatestArtifact(dir, "surveys_*.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err=%v, want not exist", err)
	}
}

func TestAcquireLock_Exclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.lock")
	release, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := AcquireLock(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire err=%v, want ErrLocked", err)
	}
	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	release, err = AcquireLock(path)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = release()
}

func TestDecodeModelJSON_ExtractsObject(t *testing.T) {
	t.Parallel()

	var out struct {
		Score float64 `json:"sentiment_score"`
	}
	if err := DecodeModelJSON("```json\n{\"sentiment_score\": -0.5}\n```", &out); err != nil {
		t.Fatalf("fenced: %v", err)
	}
	if out.Score != -0.5 {
		t.Fatalf("score=%v", out.Score)
	}
	if err := DecodeModelJSON("Sure! {\"sentiment_score\": 0.25} hope that helps", &out); err != nil {
		t.Fatalf("chatter: %v", err)
	}
	if out.Score != 0.25 {
		t.Fatalf("score=%v", out.Score)
	}
	if err := DecodeModelJSON("   ", &out); err == nil {
		t.Fatalf("expected error for empty output")
	}
}

func TestDecodeModelJSON_BracesInsideStrings(t *testing.T) {
	t.Parallel()

	var out struct {
		Aspects []string `json:"aspects"`
	}
	text := `Here you go: {"aspects": ["wifi}", "{breakfast"]} and {"ignored": true}`
	if err := DecodeModelJSON(text, &out); err != nil {
		t.Fatalf("DecodeModelJSON: %v", err)
	}
	if len(out.Aspects) != 2 || out.Aspects[0] != "wifi}" || out.Aspects[1] != "{breakfast" {
		t.Fatalf("aspects=%v", out.Aspects)
	}
	if err := DecodeModelJSON(`{"aspects": [`, &out); err == nil {
		t.Fatalf("expected error for unbalanced object")
	}
}
