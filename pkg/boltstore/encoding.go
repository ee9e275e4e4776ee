package boltstore

import (
	"bytes"
	"encoding/gob"
	"time"
)

// SpyRecord is the stored form of one spy preference.
type SpyRecord struct {
	Name  string    // participant name when spying was enabled
	Since time.Time // when spying was enabled
}

// encodeSpy serializes a SpyRecord to bytes using gob.
func encodeSpy(rec *SpyRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeSpy deserializes bytes back into a SpyRecord.
func decodeSpy(data []byte) (*SpyRecord, error) {
	var rec SpyRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
