package store

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 12

	eventIDPrefix     = "evt"
	exceptionIDPrefix = "exc"
)

// newID returns "<prefix>-<random>", e.g. "evt-3k9x0q2m7a1b".
func newID(prefix string) (string, error) {
	id, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + "-" + id, nil
}
