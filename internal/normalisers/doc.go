// Package normalisers provides implementations of the Normaliser interface
// for file formats that are not plain text. Each normaliser knows how to
// extract text content from the formats it lists.
package normalisers

import (
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/normalisers/docx"
	"github.com/cosmikwolf/sazid/internal/normalisers/html"
)

// Defaults returns the built-in normalisers.
func Defaults() []driven.Normaliser {
	return []driven.Normaliser{html.New(), docx.New()}
}
