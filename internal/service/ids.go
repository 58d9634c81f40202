package service

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// storeKey names the stored original after the document id and keeps the
// extension so the loader can pick a parser when re-reading it.
func storeKey(docID, filename string) string {
	return docID + strings.ToLower(filepath.Ext(filename))
}
