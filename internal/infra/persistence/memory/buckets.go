package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets names the independently encoded sections of a Snapshot, in the
// order durable stores write them.
var Buckets = []string{"roots", "history", "links", "counters", "libraries"}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case "roots":
		return &s.Roots, true
	case "history":
		return &s.History, true
	case "links":
		return &s.Links, true
	case "counters":
		return &s.Counters, true
	case "libraries":
		return &s.Libraries, true
	default:
		return nil, false
	}
}

// EncodeBucket returns the JSON encoding of one snapshot section.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	return json.Marshal(target)
}

// DecodeBucket fills one snapshot section from its JSON encoding. Unknown
// buckets are ignored so older tables keep loading.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
