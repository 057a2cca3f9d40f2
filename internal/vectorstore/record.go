package vectorstore

import "time"

// Record is the validated, in-memory shape a stored {id, document,
// metadata} row is parsed back into.
type Record struct {
	ID        string
	Document  string
	Metadata  map[string]string
	Timestamp time.Time
	Embedding []float32
}

// Match pairs a Record with its similarity score from a Query call.
type Match struct {
	Record     Record
	Similarity float64
}

// sanitizeCollectionName drops every non-alphanumeric character so a
// collection name derived from a user-chosen session name is always a
// safe SQL identifier suffix.
func sanitizeCollectionName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		}
	}
	return string(out)
}

// SanitizeCollectionName exposes sanitizeCollectionName to callers outside
// this package that need to detect whether two distinct session names
// collapse to the same sanitized identifier before a write would let one
// silently overwrite the other's collection.
func SanitizeCollectionName(name string) string {
	return sanitizeCollectionName(name)
}
