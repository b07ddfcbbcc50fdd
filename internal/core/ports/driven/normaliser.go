package driven

// Normaliser extracts indexable text from one family of file formats.
type Normaliser interface {
	// Extensions returns the lower-case file extensions handled, with the dot.
	Extensions() []string

	// Normalise returns the text content of data read from path.
	Normalise(path string, data []byte) (string, error)
}
