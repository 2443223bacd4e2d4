package util

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const passIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewPassID returns a short id used to correlate the log lines of one run.
func NewPassID() string {
	id, err := gonanoid.Generate(passIDAlphabet, 10)
	if err != nil {
		return uuid.New().String()
	}
	return id
}
