package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDocumentRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureDocumentRepo("doc-1", "# Notes\n\nfirst draft\n", "Avery"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Idempotent on an existing repo.
	if err := svc.EnsureDocumentRepo("doc-1", "ignored", "Avery"); err != nil {
		t.Fatalf("EnsureDocumentRepo() second call error = %v", err)
	}

	commit, err := svc.CommitSnapshot("doc-1", "# Notes\n\nsecond draft\n", "Avery", "Update draft")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}

	content, err := svc.ContentAtHash("doc-1", commit.Hash)
	if err != nil {
		t.Fatalf("ContentAtHash() error = %v", err)
	}
	if content != "# Notes\n\nsecond draft\n" {
		t.Fatalf("unexpected content: %q", content)
	}

	head, headCommit, err := svc.HeadContent("doc-1")
	if err != nil {
		t.Fatalf("HeadContent() error = %v", err)
	}
	if head != content {
		t.Fatalf("head content mismatch: %q", head)
	}
	if headCommit.Hash != commit.Hash {
		t.Fatalf("head commit mismatch: %s != %s", headCommit.Hash, commit.Hash)
	}
}

func TestNamedVersions(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureDocumentRepo("doc-1", "v1\n", "Avery"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	commit, err := svc.CommitSnapshot("doc-1", "v2\n", "Avery", "Second version")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	if err := svc.CreateNamedVersion("doc-1", commit.Hash, "launch-draft"); err != nil {
		t.Fatalf("CreateNamedVersion() error = %v", err)
	}
	// Tagging the same name again is a no-op.
	if err := svc.CreateNamedVersion("doc-1", commit.Hash, "launch-draft"); err != nil {
		t.Fatalf("CreateNamedVersion() repeat error = %v", err)
	}

	versions, err := svc.ListNamedVersions("doc-1")
	if err != nil {
		t.Fatalf("ListNamedVersions() error = %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected 1 named version, got %d", len(versions))
	}
	if versions[0].Name != "launch-draft" {
		t.Fatalf("unexpected version name: %s", versions[0].Name)
	}

	content, err := svc.ContentAtHash("doc-1", "launch-draft")
	if err != nil {
		t.Fatalf("ContentAtHash() by tag error = %v", err)
	}
	if content != "v2\n" {
		t.Fatalf("unexpected tagged content: %q", content)
	}
}

func TestConcurrentSnapshots(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureDocumentRepo("doc-1", "base\n", "Avery"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			content := fmt.Sprintf("draft-%02d\n", idx)
			if _, err := svc.CommitSnapshot("doc-1", content, "Avery", fmt.Sprintf("Snapshot %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitSnapshot() concurrent error = %v", err)
		}
	}

	history, err := svc.History("doc-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < writers+1 {
		t.Fatalf("expected at least %d commits in history, got %d", writers+1, len(history))
	}

	head, _, err := svc.HeadContent("doc-1")
	if err != nil {
		t.Fatalf("HeadContent() error = %v", err)
	}
	if !strings.HasPrefix(head, "draft-") {
		t.Fatalf("unexpected head content after concurrent snapshots: %q", head)
	}
}
