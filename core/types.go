package core

import (
	"sort"
	"time"
)

// IndicatorKind represents the type of an indicator of compromise.
type IndicatorKind string

const (
	IndicatorIP     IndicatorKind = "ip"
	IndicatorHash   IndicatorKind = "hash"
	IndicatorDomain IndicatorKind = "domain"
)

// RawAlert is an alert as received from the alert source. The shape is
// source-defined and treated as semi-structured: known fields (data.srcip,
// data.dstip, data.md5, data.sha256) are read directly, everything else is
// only seen through a flattened textual projection.
type RawAlert map[string]interface{}

// DataField returns the string value of a field nested under "data".
func (a RawAlert) DataField(name string) (string, bool) {
	data, ok := a["data"].(map[string]interface{})
	if !ok {
		return "", false
	}
	value, ok := data[name].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// IndicatorSet holds the deduplicated indicators extracted from one alert.
// Accessors return sorted slices so downstream processing is deterministic.
type IndicatorSet struct {
	ips     map[string]struct{}
	hashes  map[string]struct{}
	domains map[string]struct{}
}

// NewIndicatorSet creates an empty indicator set.
func NewIndicatorSet() *IndicatorSet {
	return &IndicatorSet{
		ips:     make(map[string]struct{}),
		hashes:  make(map[string]struct{}),
		domains: make(map[string]struct{}),
	}
}

// AddIP adds an IP address to the set.
func (s *IndicatorSet) AddIP(ip string) { s.ips[ip] = struct{}{} }

// AddHash adds a file hash to the set.
func (s *IndicatorSet) AddHash(hash string) { s.hashes[hash] = struct{}{} }

// AddDomain adds a domain to the set.
func (s *IndicatorSet) AddDomain(domain string) { s.domains[domain] = struct{}{} }

// IPs returns the extracted IP addresses in lexical order.
func (s *IndicatorSet) IPs() []string { return sortedKeys(s.ips) }

// Hashes returns the extracted file hashes in lexical order.
func (s *IndicatorSet) Hashes() []string { return sortedKeys(s.hashes) }

// Domains returns the extracted domains in lexical order.
func (s *IndicatorSet) Domains() []string { return sortedKeys(s.domains) }

// Len returns the total number of indicators across all kinds.
func (s *IndicatorSet) Len() int {
	return len(s.ips) + len(s.hashes) + len(s.domains)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FailureKind classifies why a provider contributed nothing for an indicator.
type FailureKind string

const (
	// FailureUnavailable means the provider was not configured or its
	// circuit was open. Expected, not logged as an error.
	FailureUnavailable FailureKind = "unavailable"
	// FailureError means the provider call failed (transport, non-2xx,
	// malformed response). Logged, contributes nothing to fusion.
	FailureError FailureKind = "error"
)

// ProviderFailure records a provider that could not contribute to a verdict.
type ProviderFailure struct {
	Provider string      `json:"provider" bson:"provider"`
	Kind     FailureKind `json:"kind" bson:"kind"`
	Detail   string      `json:"detail,omitempty" bson:"detail,omitempty"`
}

// IndicatorVerdict is the fused verdict for a single indicator.
//
// ThreatScore is the maximum across contributing sources that declared the
// indicator malicious and is 0 when no source flagged it.
type IndicatorVerdict struct {
	Indicator   string                            `json:"indicator" bson:"indicator"`
	Kind        IndicatorKind                     `json:"kind" bson:"kind"`
	Malicious   bool                              `json:"malicious" bson:"malicious"`
	ThreatScore int                               `json:"threat_score" bson:"threat_score"`
	PerSource   map[string]map[string]interface{} `json:"sources" bson:"sources"`
	Failures    []ProviderFailure                 `json:"failures,omitempty" bson:"failures,omitempty"`
}

// EnrichedAlert is the enrichment record produced for one raw alert. Records
// are append-only: re-enriching an alert produces a new record with a new ID,
// never an update.
//
// IsMalicious is true iff at least one indicator verdict is malicious;
// ThreatScore is the maximum over all indicator verdict scores.
type EnrichedAlert struct {
	ID              string                      `json:"id" bson:"_id"`
	Original        RawAlert                    `json:"original" bson:"original"`
	IOCs            map[string]IndicatorVerdict `json:"iocs" bson:"iocs"`
	IsMalicious     bool                        `json:"is_malicious" bson:"is_malicious"`
	ThreatScore     int                         `json:"threat_score" bson:"threat_score"`
	Recommendations []string                    `json:"recommendations" bson:"recommendations"`
	EnrichedAt      time.Time                   `json:"enriched_at" bson:"enriched_at"`
}

// RunSummary is the outcome of one batch enrichment run.
type RunSummary struct {
	Processed         int              `json:"processed"`
	MaliciousDetected int              `json:"malicious_detected"`
	Data              []*EnrichedAlert `json:"data"`
}
