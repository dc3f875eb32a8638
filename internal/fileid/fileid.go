// Package fileid derives stable document and chunk ids from file paths.
package fileid

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes the name-based UUIDs generated for file paths.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("digital-twin:file"))

// DocumentID returns a stable document id for path. Paths are cleaned first,
// so "/a/./b" and "/a/b/" map to the same id as "/a/b".
func DocumentID(path string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(path))).String()
}

// ChunkID returns the id of the n-th chunk of a document.
func ChunkID(documentID string, n int) string {
	return fmt.Sprintf("%s_%d", documentID, n)
}
