package enrich

import (
	"argus/core"
	"argus/intel"
)

// Fuse folds per-provider lookup results into a single indicator verdict.
//
// The fold is OR for the verdict and MAX for the score: one malicious source
// is enough to flag the indicator, and the score is the strongest claim, never
// an average. Averaging would let quiet providers dilute a confident one.
// Unavailable and failed providers contribute nothing; they are recorded so
// analysts can see which sources were consulted.
func Fuse(indicator string, kind core.IndicatorKind, results []intel.Result) core.IndicatorVerdict {
	verdict := core.IndicatorVerdict{
		Indicator: indicator,
		Kind:      kind,
		PerSource: make(map[string]map[string]interface{}),
	}

	for _, r := range results {
		switch r.Status {
		case intel.StatusSuccess:
			if r.Malicious {
				verdict.Malicious = true
			}
			if r.Score > verdict.ThreatScore {
				verdict.ThreatScore = r.Score
			}
			fields := r.Fields
			if fields == nil {
				fields = map[string]interface{}{}
			}
			verdict.PerSource[r.Provider] = fields
		case intel.StatusUnavailable:
			verdict.Failures = append(verdict.Failures, core.ProviderFailure{
				Provider: r.Provider,
				Kind:     core.FailureUnavailable,
				Detail:   r.Detail,
			})
		case intel.StatusError:
			verdict.Failures = append(verdict.Failures, core.ProviderFailure{
				Provider: r.Provider,
				Kind:     core.FailureError,
				Detail:   r.Detail,
			})
		}
	}

	if verdict.ThreatScore > 100 {
		verdict.ThreatScore = 100
	}
	return verdict
}
