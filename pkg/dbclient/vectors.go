package dbclient

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/codescope/codedb/pkg/models"
)

// SaveVector stores one embedding for a file (or a specific chunk of it).
// The vector is packed as little-endian float32 bytes and crosses the wire
// base64-encoded.
func (d *DB) SaveVector(ctx context.Context, fileID int64, chunkID *int64, embedding []float32, model string) (int64, error) {
	if len(embedding) == 0 {
		return 0, fmt.Errorf("empty embedding")
	}
	if _, err := d.GetFile(ctx, fileID); err != nil {
		return 0, err
	}

	data := map[string]any{
		"file_id":    fileID,
		"embedding":  base64.StdEncoding.EncodeToString(packVector(embedding)),
		"dimension":  len(embedding),
		"model":      model,
		"updated_at": now(),
	}
	if chunkID != nil {
		data["chunk_id"] = *chunkID
	}

	return d.insertRow(ctx, models.VectorIndex{}.TableName(), data)
}

// GetVectors returns the stored embeddings for a file. Embeddings come
// back decoded to float32 slices.
func (d *DB) GetVectors(ctx context.Context, fileID int64) ([]Vector, error) {
	rows, err := d.selectRows(ctx, models.VectorIndex{}.TableName(),
		map[string]any{"file_id": fileID}, []string{"id"}, 0)
	if err != nil {
		return nil, err
	}

	vectors := make([]Vector, 0, len(rows))
	for _, row := range rows {
		var rec models.VectorIndex
		if err := decodeRow(row, &rec); err != nil {
			return nil, err
		}

		raw := rec.Embedding
		// SQLite hands blobs back as text through the JSON wire; the
		// payload is the base64 form written by SaveVector.
		if decoded, decErr := base64.StdEncoding.DecodeString(string(raw)); decErr == nil {
			raw = decoded
		}

		embedding, err := unpackVector(raw)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", rec.ID, err)
		}

		vectors = append(vectors, Vector{
			ID:        rec.ID,
			FileID:    rec.FileID,
			ChunkID:   rec.ChunkID,
			Embedding: embedding,
			Model:     rec.Model,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return vectors, nil
}

// DeleteVectors removes all embeddings for a file and returns the count.
func (d *DB) DeleteVectors(ctx context.Context, fileID int64) (int64, error) {
	return d.deleteRows(ctx, models.VectorIndex{}.TableName(), map[string]any{"file_id": fileID})
}

// Vector is one decoded embedding row.
type Vector struct {
	ID        int64
	FileID    int64
	ChunkID   *int64
	Embedding []float32
	Model     string
	UpdatedAt float64
}

// packVector encodes a float32 slice as little-endian bytes.
func packVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// unpackVector decodes little-endian float32 bytes.
func unpackVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("embedding length %d is not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
