package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFloat32Roundtrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestTimeFormatSortsChronologically(t *testing.T) {
	early := time.Date(2026, 3, 1, 9, 0, 0, 5, time.UTC)
	late := early.Add(time.Millisecond)
	assert.Less(t, formatTime(early), formatTime(late))
	assert.True(t, parseTime(formatTime(early)).Equal(early))
}
