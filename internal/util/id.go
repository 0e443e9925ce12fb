package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a prefixed random identifier, e.g. "doc_3f1a...".
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewUUID returns a plain UUID string for rows whose primary key is a uuid column.
func NewUUID() string {
	return uuid.NewString()
}
