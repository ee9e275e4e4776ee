package boltstore

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta  = []byte("meta")
	bucketSpies = []byte("spies")
)

// Meta key constants.
var (
	keySchema = []byte("schema")
)

// schemaVersion is bumped when the on-disk layout changes.
const schemaVersion = 1

// idToKey converts a participant ID to its 16-byte key.
func idToKey(id uuid.UUID) []byte {
	return id[:]
}

// keyToID converts a 16-byte key back to a participant ID.
func keyToID(b []byte) (uuid.UUID, error) {
	return uuid.FromBytes(b)
}

// intToKey converts an int to an 8-byte big-endian value.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian value back to an int.
func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
