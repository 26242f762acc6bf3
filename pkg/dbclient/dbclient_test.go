package dbclient

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/driver/sqlite"
	"github.com/codescope/codedb/pkg/models"
	"github.com/codescope/codedb/pkg/server"
)

// startDaemon brings up a full daemon on a throwaway socket and database
// and returns a connected typed client.
func startDaemon(t *testing.T) *DB {
	t.Helper()

	dir := t.TempDir()
	drv := sqlite.New(driver.Config{Path: filepath.Join(dir, "test.db")}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := drv.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = drv.Disconnect() })

	socketPath := filepath.Join(dir, "codedb.sock")
	srv := server.New(server.Config{
		SocketPath:     socketPath,
		Workers:        2,
		RequestTimeout: 10 * time.Second,
	}, drv)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(srv.Stop)

	db, err := Connect(ctx, socketPath)
	if err != nil {
		t.Fatalf("Connect(daemon) error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestProjectLifecycle(t *testing.T) {
	db := startDaemon(t)
	ctx := context.Background()
	root := t.TempDir()

	if _, err := db.CreateProject(ctx, "bad", "relative/root", ""); err == nil {
		t.Error("CreateProject() with relative root expected error, got nil")
	}

	project, err := db.CreateProject(ctx, "demo", root, "fixture project")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if project.ID == "" {
		t.Fatal("CreateProject() assigned no ID")
	}

	got, err := db.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got.Name != "demo" || got.RootPath != root {
		t.Errorf("GetProject() = %+v", got)
	}

	byRoot, err := db.GetProjectByRoot(ctx, root)
	if err != nil {
		t.Fatalf("GetProjectByRoot() error = %v", err)
	}
	if byRoot.ID != project.ID {
		t.Errorf("GetProjectByRoot() id = %q, want %q", byRoot.ID, project.ID)
	}

	got.Name = "renamed"
	got.Description = "updated"
	if err := db.UpdateProject(ctx, got); err != nil {
		t.Fatalf("UpdateProject() error = %v", err)
	}
	again, _ := db.GetProject(ctx, project.ID)
	if again.Name != "renamed" || again.Description != "updated" {
		t.Errorf("project after update = %+v", again)
	}

	projects, err := db.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(projects) != 1 {
		t.Errorf("ListProjects() = %d projects, want 1", len(projects))
	}

	if err := db.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	if _, err := db.GetProject(ctx, project.ID); !errors.Is(err, models.ErrProjectNotFound) {
		t.Errorf("GetProject() after delete error = %v, want ErrProjectNotFound", err)
	}
	if err := db.DeleteProject(ctx, project.ID); !errors.Is(err, models.ErrProjectNotFound) {
		t.Errorf("DeleteProject() twice error = %v, want ErrProjectNotFound", err)
	}
}

func TestFileLifecycle(t *testing.T) {
	db := startDaemon(t)
	ctx := context.Background()

	project, err := db.CreateProject(ctx, "demo", t.TempDir(), "")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	file := &models.File{
		ProjectID:     project.ID,
		Path:          "src/main.go",
		Language:      "go",
		Size:          120,
		NeedsChunking: true,
	}
	if err := db.CreateFile(ctx, file); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if file.ID == 0 {
		t.Fatal("CreateFile() wrote no ID back")
	}

	other := &models.File{ProjectID: project.ID, Path: "README.md", NeedsChunking: true}
	if err := db.CreateFile(ctx, other); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	got, err := db.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if got.Path != "src/main.go" || !got.NeedsChunking {
		t.Errorf("GetFile() = %+v", got)
	}

	// Ordered by path: README.md before src/main.go.
	files, err := db.GetProjectFiles(ctx, project.ID, false)
	if err != nil {
		t.Fatalf("GetProjectFiles() error = %v", err)
	}
	if len(files) != 2 || files[0].Path != "README.md" {
		t.Errorf("GetProjectFiles() = %+v", files)
	}

	pending, err := db.GetFilesNeedingChunking(ctx, 1)
	if err != nil {
		t.Fatalf("GetFilesNeedingChunking() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("GetFilesNeedingChunking(1) = %d files, want 1", len(pending))
	}

	got.NeedsChunking = false
	got.Hash = "abc123"
	if err := db.UpdateFile(ctx, got); err != nil {
		t.Fatalf("UpdateFile() error = %v", err)
	}
	updated, _ := db.GetFile(ctx, file.ID)
	if updated.NeedsChunking || updated.Hash != "abc123" {
		t.Errorf("file after update = %+v", updated)
	}

	if err := db.MarkFileDeleted(ctx, file.ID); err != nil {
		t.Fatalf("MarkFileDeleted() error = %v", err)
	}
	visible, _ := db.GetProjectFiles(ctx, project.ID, false)
	if len(visible) != 1 {
		t.Errorf("visible files after soft delete = %d, want 1", len(visible))
	}
	all, _ := db.GetProjectFiles(ctx, project.ID, true)
	if len(all) != 2 {
		t.Errorf("all files after soft delete = %d, want 2", len(all))
	}

	if err := db.MarkNeedsChunking(ctx, other.ID); err != nil {
		t.Fatalf("MarkNeedsChunking() error = %v", err)
	}

	if _, err := db.GetFile(ctx, 99999); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("GetFile(missing) error = %v, want ErrFileNotFound", err)
	}
	if err := db.UpdateFile(ctx, &models.File{ID: 99999}); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("UpdateFile(missing) error = %v, want ErrFileNotFound", err)
	}
}

func TestTreeRoundTrip(t *testing.T) {
	db := startDaemon(t)
	ctx := context.Background()

	project, err := db.CreateProject(ctx, "demo", t.TempDir(), "")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	file := &models.File{ProjectID: project.ID, Path: "lib.py", Language: "python"}
	if err := db.CreateFile(ctx, file); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	if _, err := db.GetAST(ctx, file.ID); !errors.Is(err, models.ErrAttributeNotFound) {
		t.Errorf("GetAST() before save error = %v, want ErrAttributeNotFound", err)
	}

	ast := map[string]any{
		"type": "module",
		"body": []any{map[string]any{"type": "function_def", "name": "run"}},
	}
	if err := db.SaveAST(ctx, file.ID, ast); err != nil {
		t.Fatalf("SaveAST() error = %v", err)
	}

	got, err := db.GetAST(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetAST() error = %v", err)
	}
	if got["type"] != "module" {
		t.Errorf("GetAST() = %+v", got)
	}

	if err := db.PatchAST(ctx, file.ID, map[string]any{"version": 3}); err != nil {
		t.Fatalf("PatchAST() error = %v", err)
	}
	got, _ = db.GetAST(ctx, file.ID)
	if got["type"] != "module" || got["version"] != float64(3) {
		t.Errorf("patched AST = %+v", got)
	}

	if err := db.SaveCST(ctx, file.ID, map[string]any{"root": "concrete"}); err != nil {
		t.Fatalf("SaveCST() error = %v", err)
	}

	if err := db.DeleteAST(ctx, file.ID); err != nil {
		t.Fatalf("DeleteAST() error = %v", err)
	}
	if _, err := db.GetAST(ctx, file.ID); !errors.Is(err, models.ErrAttributeNotFound) {
		t.Errorf("GetAST() after delete error = %v, want ErrAttributeNotFound", err)
	}

	// The CST is untouched by AST deletion.
	cst, err := db.GetCST(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetCST() error = %v", err)
	}
	if cst["root"] != "concrete" {
		t.Errorf("GetCST() = %+v", cst)
	}

	// Saving against a file that does not exist is refused instead of
	// leaving an orphan row behind.
	if err := db.SaveAST(ctx, 424242, ast); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("SaveAST(missing file) error = %v, want ErrFileNotFound", err)
	}
	if err := db.PatchAST(ctx, 424242, map[string]any{"version": 1}); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("PatchAST(missing file) error = %v, want ErrFileNotFound", err)
	}
	if err := db.SaveCST(ctx, 424242, map[string]any{"root": "x"}); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("SaveCST(missing file) error = %v, want ErrFileNotFound", err)
	}
	if _, err := db.GetAST(ctx, 424242); !errors.Is(err, models.ErrAttributeNotFound) {
		t.Errorf("GetAST(missing file) error = %v, want ErrAttributeNotFound", err)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	db := startDaemon(t)
	ctx := context.Background()

	project, err := db.CreateProject(ctx, "demo", t.TempDir(), "")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	file := &models.File{ProjectID: project.ID, Path: "a.go"}
	if err := db.CreateFile(ctx, file); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	if _, err := db.SaveVector(ctx, file.ID, nil, nil, "m"); err == nil {
		t.Error("SaveVector() with empty embedding expected error, got nil")
	}

	if _, err := db.SaveVector(ctx, 424242, nil, []float32{1}, "m"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("SaveVector(missing file) error = %v, want ErrFileNotFound", err)
	}

	embedding := []float32{0.25, -1.5, 3.75, 0}
	if _, err := db.SaveVector(ctx, file.ID, nil, embedding, "text-embed-1"); err != nil {
		t.Fatalf("SaveVector() error = %v", err)
	}

	chunkID := int64(7)
	if _, err := db.SaveVector(ctx, file.ID, &chunkID, []float32{1, 2}, "text-embed-1"); err != nil {
		t.Fatalf("SaveVector() with chunk error = %v", err)
	}

	vectors, err := db.GetVectors(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetVectors() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("GetVectors() = %d vectors, want 2", len(vectors))
	}

	first := vectors[0]
	if len(first.Embedding) != len(embedding) {
		t.Fatalf("embedding dimension = %d, want %d", len(first.Embedding), len(embedding))
	}
	for i, v := range embedding {
		if first.Embedding[i] != v {
			t.Errorf("embedding[%d] = %v, want %v", i, first.Embedding[i], v)
		}
	}
	if first.ChunkID != nil {
		t.Errorf("first vector chunk id = %v, want nil", *first.ChunkID)
	}
	if vectors[1].ChunkID == nil || *vectors[1].ChunkID != 7 {
		t.Errorf("second vector chunk id = %v, want 7", vectors[1].ChunkID)
	}
	if first.Model != "text-embed-1" {
		t.Errorf("model = %q", first.Model)
	}

	deleted, err := db.DeleteVectors(ctx, file.ID)
	if err != nil {
		t.Fatalf("DeleteVectors() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("DeleteVectors() = %d, want 2", deleted)
	}
}

func TestVectorPacking(t *testing.T) {
	in := []float32{1.5, -2.25, 0, 1e10}
	out, err := unpackVector(packVector(in))
	if err != nil {
		t.Fatalf("unpackVector() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("unpacked %d values, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("value %d = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := unpackVector([]byte{1, 2, 3}); err == nil {
		t.Error("unpackVector() with ragged length expected error, got nil")
	}
}

func TestWorkerCycleStats(t *testing.T) {
	db := startDaemon(t)
	ctx := context.Background()

	first, err := db.StartWorkerCycle(ctx, 10)
	if err != nil {
		t.Fatalf("StartWorkerCycle() error = %v", err)
	}

	// Starting a second cycle force-closes the first (a crashed worker
	// leaves its row open).
	second, err := db.StartWorkerCycle(ctx, 8)
	if err != nil {
		t.Fatalf("StartWorkerCycle() error = %v", err)
	}

	rows, err := db.Query(ctx,
		"SELECT cycle_id FROM indexing_worker_stats WHERE cycle_end_time IS NULL", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["cycle_id"] != second {
		t.Errorf("open cycles = %+v, want only %s", rows, second)
	}

	// Each file outcome is folded into the open row as it lands.
	if err := db.RecordWorkerFile(ctx, second, true, 100); err != nil {
		t.Fatalf("RecordWorkerFile() error = %v", err)
	}
	if err := db.RecordWorkerFile(ctx, second, true, 200); err != nil {
		t.Fatalf("RecordWorkerFile() error = %v", err)
	}
	if err := db.RecordWorkerFile(ctx, second, false, 0); err != nil {
		t.Fatalf("RecordWorkerFile() error = %v", err)
	}

	if err := db.FinishWorkerCycle(ctx, second); err != nil {
		t.Fatalf("FinishWorkerCycle() error = %v", err)
	}

	cycles, err := db.RecentWorkerCycles(ctx, 10)
	if err != nil {
		t.Fatalf("RecentWorkerCycles() error = %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("RecentWorkerCycles() = %d cycles, want 2", len(cycles))
	}

	var finished, stale *models.IndexingWorkerStats
	for i := range cycles {
		switch cycles[i].CycleID {
		case second:
			finished = &cycles[i]
		case first:
			stale = &cycles[i]
		}
	}
	if finished == nil || stale == nil {
		t.Fatalf("cycles %s and %s missing from %+v", second, first, cycles)
	}
	if stale.CycleEndTime == nil {
		t.Error("stale cycle still open after the next start")
	}
	if finished.FilesIndexed != 2 || finished.FilesFailed != 1 {
		t.Errorf("finished cycle = %+v", finished)
	}
	if finished.TotalProcessingMs != 300 {
		t.Errorf("total = %v, want 300", finished.TotalProcessingMs)
	}
	if finished.AvgProcessingMs != 150 {
		t.Errorf("avg = %v, want 150", finished.AvgProcessingMs)
	}
	if finished.CycleEndTime == nil {
		t.Error("finished cycle left open")
	}

	if err := db.RecordWorkerFile(ctx, "ghost-cycle", true, 1); err == nil {
		t.Error("RecordWorkerFile(unknown) expected error, got nil")
	}
	if err := db.FinishWorkerCycle(ctx, "ghost-cycle"); err == nil {
		t.Error("FinishWorkerCycle(unknown) expected error, got nil")
	}
}

func TestIndexFileThroughDaemon(t *testing.T) {
	db := startDaemon(t)
	ctx := context.Background()
	root := t.TempDir()

	project, err := db.CreateProject(ctx, "demo", root, "")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	absPath := filepath.Join(root, "main.go")
	if err := os.WriteFile(absPath, []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	result, err := db.IndexFile(ctx, absPath, project.ID)
	if err != nil {
		t.Fatalf("IndexFile() error = %v", err)
	}
	if result["language"] != "go" || result["path"] != "main.go" {
		t.Errorf("IndexFile() = %+v", result)
	}

	files, err := db.GetProjectFiles(ctx, project.ID, false)
	if err != nil {
		t.Fatalf("GetProjectFiles() error = %v", err)
	}
	if len(files) != 1 || files[0].NeedsChunking {
		t.Errorf("files after index = %+v", files)
	}
}
