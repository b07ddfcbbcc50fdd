package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// timeLayout sorts lexicographically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// float32SliceToBytes encodes an embedding as little-endian float32s.
func float32SliceToBytes(floats []float32) []byte {
	if floats == nil {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice decodes a blob written by float32SliceToBytes.
func bytesToFloat32Slice(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	floats := make([]float32, len(buf)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return floats
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var c domain.Chunk
	var source sql.NullString
	var page sql.NullInt64
	var blob []byte
	var created string
	if err := row.Scan(&c.ID, &c.Content, &c.Checksum, &source, &c.Position, &page, &blob, &created); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	c.SourcePath = source.String
	if page.Valid {
		n := int(page.Int64)
		c.PageNumber = &n
	}
	c.Embedding = bytesToFloat32Slice(blob)
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
