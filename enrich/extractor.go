// Package enrich implements the alert enrichment pipeline: indicator
// extraction, threat-intel fan-out, verdict fusion and batch processing.
package enrich

import (
	"fmt"
	"regexp"
	"strings"

	"argus/core"
	"argus/metrics"
)

var (
	ipPattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	hashPattern = regexp.MustCompile(`\b[a-fA-F0-9]{32,64}\b`)
	// Hostname shape per RFC 1035: dot-separated labels, alphabetic TLD of
	// at least two characters.
	domainPattern = regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}\b`)
)

// domainDenylist holds hostnames that show up constantly in alert noise and
// carry no intel value.
var domainDenylist = map[string]struct{}{
	"localhost":   {},
	"example.com": {},
	"test.com":    {},
}

const (
	minDomainLen = 5
	maxDomainLen = 253
)

// ExtractorConfig tunes indicator extraction.
type ExtractorConfig struct {
	// TrustStructuredFields controls whether well-known structured fields
	// (data.srcip, data.dstip, data.md5, data.sha256) are taken verbatim,
	// bypassing the private-range filter. Structured fields were put there
	// deliberately by the alert source, so they default to trusted.
	TrustStructuredFields bool
	// ExtraDenylist adds hostnames to the built-in domain denylist.
	ExtraDenylist []string
}

// DefaultExtractorConfig returns the extraction defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{TrustStructuredFields: true}
}

// Extractor pulls IP, hash and domain indicators out of raw alerts.
type Extractor struct {
	cfg      ExtractorConfig
	denylist map[string]struct{}
}

// NewExtractor creates an extractor with the given config.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	denylist := make(map[string]struct{}, len(domainDenylist)+len(cfg.ExtraDenylist))
	for d := range domainDenylist {
		denylist[d] = struct{}{}
	}
	for _, d := range cfg.ExtraDenylist {
		denylist[strings.ToLower(d)] = struct{}{}
	}
	return &Extractor{cfg: cfg, denylist: denylist}
}

// Extract scans the whole alert for indicators. The alert is flattened to a
// single string so that indicators buried at any nesting depth are found,
// then well-known structured fields are overlaid on top.
func (e *Extractor) Extract(alert core.RawAlert) *core.IndicatorSet {
	set := core.NewIndicatorSet()
	if alert == nil {
		return set
	}

	projection := fmt.Sprintf("%v", map[string]interface{}(alert))

	for _, ip := range ipPattern.FindAllString(projection, -1) {
		if e.keepIP(ip) {
			set.AddIP(ip)
		}
	}
	for _, hash := range hashPattern.FindAllString(projection, -1) {
		set.AddHash(strings.ToLower(hash))
	}
	for _, domain := range domainPattern.FindAllString(projection, -1) {
		domain = strings.ToLower(domain)
		if e.keepDomain(domain) {
			set.AddDomain(domain)
		}
	}

	if e.cfg.TrustStructuredFields {
		e.overlayStructured(alert, set)
	}

	metrics.IndicatorsExtracted.WithLabelValues(string(core.IndicatorIP)).Add(float64(len(set.IPs())))
	metrics.IndicatorsExtracted.WithLabelValues(string(core.IndicatorHash)).Add(float64(len(set.Hashes())))
	metrics.IndicatorsExtracted.WithLabelValues(string(core.IndicatorDomain)).Add(float64(len(set.Domains())))
	return set
}

// overlayStructured adds the indicators the alert source placed in dedicated
// fields. These bypass the private-range filter entirely.
func (e *Extractor) overlayStructured(alert core.RawAlert, set *core.IndicatorSet) {
	if v, ok := alert.DataField("srcip"); ok && isDottedQuad(v) {
		set.AddIP(v)
	}
	if v, ok := alert.DataField("dstip"); ok && isDottedQuad(v) {
		set.AddIP(v)
	}
	if v, ok := alert.DataField("md5"); ok && isHexHash(v) {
		set.AddHash(strings.ToLower(v))
	}
	if v, ok := alert.DataField("sha256"); ok && isHexHash(v) {
		set.AddHash(strings.ToLower(v))
	}
}

// keepIP reports whether a scanned dotted quad is a valid, lookup-worthy
// address. Private and reserved ranges are dropped: intel providers have
// nothing to say about them and the lookups cost quota.
func (e *Extractor) keepIP(ip string) bool {
	octets, ok := parseOctets(ip)
	if !ok {
		return false
	}
	switch octets[0] {
	case 0, 10, 127, 255:
		return false
	case 172:
		if octets[1] >= 16 && octets[1] <= 31 {
			return false
		}
	case 192:
		if octets[1] == 168 {
			return false
		}
	}
	return true
}

func (e *Extractor) keepDomain(domain string) bool {
	if len(domain) < minDomainLen || len(domain) > maxDomainLen {
		return false
	}
	if _, denied := e.denylist[domain]; denied {
		return false
	}
	return true
}

func parseOctets(ip string) ([4]int, bool) {
	var octets [4]int
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return octets, false
	}
	for i, part := range parts {
		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				return octets, false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return octets, false
		}
		octets[i] = n
	}
	return octets, true
}

func isDottedQuad(v string) bool {
	_, ok := parseOctets(v)
	return ok && ipPattern.MatchString(v)
}

func isHexHash(v string) bool {
	return len(v) >= 32 && len(v) <= 64 && hashPattern.MatchString(v)
}
