// Package metrics decodes agent metric payloads and extracts the scalar
// values rules evaluate against.
//
// A payload is an ordered list of named entries:
//
//	[{"name": "cpu.percent", "value": 12.5},
//	 {"name": "mem.percent", "value": 48.1},
//	 {"name": "disk", "value": [{"mountpoint": "/", "percent": 71.2}, ...]}]
//
// Entry values may be scalars or nested structures; this package is the
// single place that knows how to pull a comparable number out of each
// shape. All extraction is fail-open: a sample missing the requested field
// yields ok=false rather than an error, and the caller treats it as
// non-violating.
package metrics

import (
	"encoding/json"
	"fmt"
)

// Point is one named entry of a metric payload. Value stays raw JSON so
// non-scalar shapes (the disk mountpoint array) survive decoding intact.
type Point struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Payload is the decoded ordered metric list of one sample.
type Payload []Point

// Decode parses a raw payload document, preserving entry order.
func Decode(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode metric payload: %w", err)
	}
	return p, nil
}

// diskEntry is one mountpoint record inside the "disk" payload entry.
type diskEntry struct {
	Mountpoint string  `json:"mountpoint"`
	Percent    float64 `json:"percent"`
}

// payload entry names as reported by the agent
const (
	pointCPUPercent = "cpu.percent"
	pointMemPercent = "mem.percent"
	pointDisk       = "disk"
)

// rootMountpoint is the disk partition rules evaluate against.
const rootMountpoint = "/"

// extractor pulls one metric selector's value from a payload.
type extractor func(Payload) (float64, bool)

// extractors maps rule metric selectors to their payload extraction.
var extractors = map[string]extractor{
	"cpu":    scalarExtractor(pointCPUPercent),
	"memory": scalarExtractor(pointMemPercent),
	"disk":   extractRootDiskPercent,
}

// Extract returns the value of the given metric selector in the payload.
// ok is false when the payload has no usable value for the selector,
// including unknown selectors and malformed entries.
func Extract(p Payload, metric string) (float64, bool) {
	fn, known := extractors[metric]
	if !known {
		return 0, false
	}
	return fn(p)
}

// MetricName maps a rule metric selector to the payload entry name used
// as the baseline key. Returns "" for unknown selectors.
func MetricName(metric string) string {
	switch metric {
	case "cpu":
		return pointCPUPercent
	case "memory":
		return pointMemPercent
	case "disk":
		return pointDisk
	default:
		return ""
	}
}

// scalarExtractor builds an extractor for a plain numeric payload entry.
func scalarExtractor(name string) extractor {
	return func(p Payload) (float64, bool) {
		raw, found := find(p, name)
		if !found {
			return 0, false
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, false
		}
		return v, true
	}
}

// extractRootDiskPercent returns the usage percent of the root mountpoint
// from the disk entry's mountpoint array.
func extractRootDiskPercent(p Payload) (float64, bool) {
	raw, found := find(p, pointDisk)
	if !found {
		return 0, false
	}
	var entries []diskEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, false
	}
	for _, e := range entries {
		if e.Mountpoint == rootMountpoint {
			return e.Percent, true
		}
	}
	return 0, false
}

// find returns the raw value of the first payload entry with the name.
func find(p Payload, name string) (json.RawMessage, bool) {
	for _, pt := range p {
		if pt.Name == name {
			return pt.Value, true
		}
	}
	return nil, false
}
