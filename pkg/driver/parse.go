package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseResult is what the parsing subsystem produces for one file. The
// driver persists it into code_content, code_chunks, ast_trees and
// cst_trees.
type ParseResult struct {
	Language  string
	Content   string
	LineCount int
	Chunks    []ParsedChunk
	AST       map[string]any
	CST       map[string]any
}

// ParsedChunk is one contiguous slice of a parsed file.
type ParsedChunk struct {
	Ordinal   int
	StartLine int
	EndLine   int
	Content   string
	Symbol    string
}

// Parser is the external parsing subsystem invoked by IndexFile.
// Tree-sitter based implementations live outside this repository; the
// shipped LineChunker keeps the composite operation exercisable without
// them.
type Parser interface {
	ParseFile(ctx context.Context, absPath string) (*ParseResult, error)
}

// LineChunker is a Parser that splits files into fixed-size line chunks
// and produces no syntax trees.
type LineChunker struct {
	// ChunkLines is the number of lines per chunk. Zero means 100.
	ChunkLines int
}

// ParseFile reads the file and slices it into line chunks.
func (p *LineChunker) ParseFile(_ context.Context, absPath string) (*ParseResult, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", absPath, err)
	}

	chunkLines := p.ChunkLines
	if chunkLines <= 0 {
		chunkLines = 100
	}

	content := string(raw)
	lines := strings.Split(content, "\n")

	var chunks []ParsedChunk
	for start := 0; start < len(lines); start += chunkLines {
		end := start + chunkLines
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, ParsedChunk{
			Ordinal:   len(chunks),
			StartLine: start + 1,
			EndLine:   end,
			Content:   strings.Join(lines[start:end], "\n"),
		})
	}

	return &ParseResult{
		Language:  languageFromExt(absPath),
		Content:   content,
		LineCount: len(lines),
		Chunks:    chunks,
	}, nil
}

func languageFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".rs":
		return "rust"
	case ".c", ".h":
		return "c"
	case ".cc", ".cpp", ".hpp":
		return "cpp"
	case ".java":
		return "java"
	default:
		return ""
	}
}

var _ Parser = (*LineChunker)(nil)
