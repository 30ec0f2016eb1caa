package engine

import "encoding/json"

// marshalCached serializes a cache value (always a model.AnalysisResult
// here); a marshal failure just means "don't cache this one".
func marshalCached(v interface{}) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return data, true
}

// unmarshalCached decodes a previously cached value; a decode failure
// (e.g. a stale format from an older binary) is treated as a cache miss
// by the caller.
func unmarshalCached(data []byte, target interface{}) bool {
	return json.Unmarshal(data, target) == nil
}
