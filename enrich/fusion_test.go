package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"argus/core"
	"argus/intel"
)

func TestFuseORForVerdictMAXForScore(t *testing.T) {
	tests := []struct {
		name          string
		results       []intel.Result
		wantMalicious bool
		wantScore     int
	}{
		{
			name: "single malicious source flags the indicator",
			results: []intel.Result{
				intel.Success("abuseipdb", true, 85, nil),
				intel.Success("otx", false, 0, nil),
				intel.Success("virustotal", false, 0, nil),
			},
			wantMalicious: true,
			wantScore:     85,
		},
		{
			name: "score is the strongest claim, never an average",
			results: []intel.Result{
				intel.Success("abuseipdb", true, 60, nil),
				intel.Success("otx", true, 75, nil),
			},
			wantMalicious: true,
			wantScore:     75,
		},
		{
			name: "all clean stays clean with zero score",
			results: []intel.Result{
				intel.Success("abuseipdb", false, 0, nil),
				intel.Success("otx", false, 0, nil),
			},
			wantMalicious: false,
			wantScore:     0,
		},
		{
			name:          "no results fuse to clean",
			results:       nil,
			wantMalicious: false,
			wantScore:     0,
		},
		{
			name: "score clamps at 100",
			results: []intel.Result{
				intel.Success("otx", true, 140, nil),
			},
			wantMalicious: true,
			wantScore:     100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Fuse("45.77.23.11", core.IndicatorIP, tt.results)
			assert.Equal(t, tt.wantMalicious, verdict.Malicious)
			assert.Equal(t, tt.wantScore, verdict.ThreatScore)
		})
	}
}

func TestFuseRecordsSourcesAndFailures(t *testing.T) {
	results := []intel.Result{
		intel.Success("abuseipdb", true, 85, map[string]interface{}{"confidence_score": 85}),
		intel.Unavailable("otx", "API key not configured"),
		intel.Error("virustotal", "returned status 500"),
	}

	verdict := Fuse("45.77.23.11", core.IndicatorIP, results)

	// Failed providers never contribute to the verdict, only to the audit
	// trail.
	assert.True(t, verdict.Malicious)
	assert.Equal(t, 85, verdict.ThreatScore)

	assert.Contains(t, verdict.PerSource, "abuseipdb")
	assert.NotContains(t, verdict.PerSource, "otx")
	assert.NotContains(t, verdict.PerSource, "virustotal")

	assert.Len(t, verdict.Failures, 2)
	assert.Equal(t, core.FailureUnavailable, verdict.Failures[0].Kind)
	assert.Equal(t, "otx", verdict.Failures[0].Provider)
	assert.Equal(t, core.FailureError, verdict.Failures[1].Kind)
	assert.Equal(t, "virustotal", verdict.Failures[1].Provider)
}

func TestFuseSuccessWithNilFieldsStillRecorded(t *testing.T) {
	verdict := Fuse("evil-infra.net", core.IndicatorDomain, []intel.Result{
		intel.Success("virustotal", false, 0, nil),
	})

	fields, ok := verdict.PerSource["virustotal"]
	assert.True(t, ok)
	assert.NotNil(t, fields)
}
