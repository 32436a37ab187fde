// Package models defines the record types and content-addressed identity
// scheme shared across the ingestion pipeline.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Namespace is the fixed UUID namespace for deterministic id derivation.
// Identical content always maps to the same id, independent of filename
// or ingestion time.
var Namespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// CanonicalizeText normalizes whitespace so that byte-trivial variations
// of the same document hash identically.
func CanonicalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ContentHash returns the SHA-256 hex digest of the canonicalized text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(CanonicalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// FileID derives the primary deterministic id from a content hash.
func FileID(contentHash string) string {
	return uuid.NewSHA1(Namespace, []byte(contentHash)).String()
}

// MetadataID derives the composite id for the metadata record of a file.
func MetadataID(fileID string) string {
	return uuid.NewSHA1(Namespace, []byte(fileID+"::metadata")).String()
}

// SectionID derives the composite id for a named section of a file.
func SectionID(fileID, sectionName string) string {
	return uuid.NewSHA1(Namespace, []byte(fileID+"::"+sectionName)).String()
}

// ChunkID derives the composite id for a chunk of a file.
func ChunkID(fileID string, chunkIndex int) string {
	return uuid.NewSHA1(Namespace, []byte(fmt.Sprintf("%s::chunk::%d", fileID, chunkIndex))).String()
}
