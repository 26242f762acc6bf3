// Package models defines the code-analysis entities persisted by the
// driver. Timestamps are stored and transported as epoch-seconds floats so
// rows survive the JSON wire format without precision surprises.
package models

import "time"

// Now returns the current time as epoch seconds.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Project{},
		&File{},
		&ASTTree{},
		&CSTTree{},
		&VectorIndex{},
		&CodeContent{},
		&CodeChunk{},
		&IndexingWorkerStats{},
	}
}

// Project is a registered source tree rooted at RootPath.
type Project struct {
	ID          string  `gorm:"primaryKey;size:64" json:"id"`
	RootPath    string  `gorm:"not null" json:"root_path"`
	Name        string  `gorm:"size:255" json:"name"`
	Description string  `json:"description,omitempty"`
	CreatedAt   float64 `json:"created_at"`
	UpdatedAt   float64 `json:"updated_at"`
}

// TableName returns the table name for Project.
func (Project) TableName() string { return "projects" }

// File is one source file tracked within a project. Path is relative to
// the project root. The NeedsChunking flag marks files whose derived
// indexes (AST/CST/content/chunks) require refresh.
type File struct {
	ID            int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID     string  `gorm:"index;not null;size:64" json:"project_id"`
	Path          string  `gorm:"not null" json:"path"`
	Language      string  `gorm:"size:64" json:"language,omitempty"`
	Hash          string  `gorm:"size:64" json:"hash,omitempty"`
	Size          int64   `json:"size"`
	Deleted       bool    `gorm:"default:false;index" json:"deleted"`
	NeedsChunking bool    `gorm:"default:true;index" json:"needs_chunking"`
	CreatedAt     float64 `json:"created_at"`
	UpdatedAt     float64 `json:"updated_at"`
}

// TableName returns the table name for File.
func (File) TableName() string { return "files" }

// ASTTree holds the serialized abstract syntax tree for one file.
// Tree is a JSON document produced by the parsing subsystem.
type ASTTree struct {
	ID        int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    int64   `gorm:"uniqueIndex;not null" json:"file_id"`
	Tree      string  `json:"tree"`
	UpdatedAt float64 `json:"updated_at"`
}

// TableName returns the table name for ASTTree.
func (ASTTree) TableName() string { return "ast_trees" }

// CSTTree holds the serialized concrete syntax tree for one file.
type CSTTree struct {
	ID        int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    int64   `gorm:"uniqueIndex;not null" json:"file_id"`
	Tree      string  `json:"tree"`
	UpdatedAt float64 `json:"updated_at"`
}

// TableName returns the table name for CSTTree.
func (CSTTree) TableName() string { return "cst_trees" }

// VectorIndex holds one embedding vector. Embedding is raw little-endian
// float32 bytes; it crosses the wire base64-encoded inside JSON.
type VectorIndex struct {
	ID        int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    int64   `gorm:"index;not null" json:"file_id"`
	ChunkID   *int64  `gorm:"index" json:"chunk_id,omitempty"`
	Embedding []byte  `gorm:"type:blob" json:"embedding"`
	Dimension int     `json:"dimension"`
	Model     string  `gorm:"size:128" json:"model,omitempty"`
	UpdatedAt float64 `json:"updated_at"`
}

// TableName returns the table name for VectorIndex.
func (VectorIndex) TableName() string { return "vector_index" }

// CodeContent is the full extracted text for one file.
type CodeContent struct {
	ID        int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    int64   `gorm:"uniqueIndex;not null" json:"file_id"`
	Content   string  `json:"content"`
	LineCount int     `json:"line_count"`
	UpdatedAt float64 `json:"updated_at"`
}

// TableName returns the table name for CodeContent.
func (CodeContent) TableName() string { return "code_content" }

// CodeChunk is one contiguous slice of a file used for vectorization.
type CodeChunk struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    int64  `gorm:"index;not null" json:"file_id"`
	Ordinal   int    `gorm:"not null" json:"ordinal"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
	Symbol    string `gorm:"size:255" json:"symbol,omitempty"`
}

// TableName returns the table name for CodeChunk.
func (CodeChunk) TableName() string { return "code_chunks" }

// IndexingWorkerStats is one row per worker cycle. A cycle is open while
// CycleEndTime is null; the worker closes any stale open row before
// starting a new one.
type IndexingWorkerStats struct {
	ID                int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CycleID           string   `gorm:"uniqueIndex;size:36" json:"cycle_id"`
	CycleStartTime    float64  `json:"cycle_start_time"`
	CycleEndTime      *float64 `json:"cycle_end_time,omitempty"`
	FilesTotalAtStart int64    `json:"files_total_at_start"`
	FilesIndexed      int64    `json:"files_indexed"`
	FilesFailed       int64    `json:"files_failed"`
	TotalProcessingMs float64  `json:"total_processing_ms"`
	AvgProcessingMs   float64  `json:"avg_processing_ms"`
}

// TableName returns the table name for IndexingWorkerStats.
func (IndexingWorkerStats) TableName() string { return "indexing_worker_stats" }
