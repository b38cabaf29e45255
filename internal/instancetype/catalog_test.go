package instancetype

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
)

func TestDefaultCatalogLookup(t *testing.T) {
	c := Default()

	tests := []struct {
		instanceType string
		maxCredit    float64
		vcpus        int
	}{
		{"t3.micro", 288, 2},
		{"t3.large", 864, 2},
		{"t3a.xlarge", 2304, 4},
		{"t4g.2xlarge", 4608, 8},
	}
	for _, tt := range tests {
		t.Run(tt.instanceType, func(t *testing.T) {
			s, err := c.Lookup(tt.instanceType)
			require.NoError(t, err)
			assert.Equal(t, tt.maxCredit, s.MaxCPUCredit)
			assert.Equal(t, tt.vcpus, s.VCPUs)
		})
	}
}

func TestLaunchCredit(t *testing.T) {
	c := Default()

	v, err := c.LaunchCredit("t2.micro")
	require.NoError(t, err)
	assert.Equal(t, 30.0, v)

	v, err = c.LaunchCredit("t2.2xlarge")
	require.NoError(t, err)
	assert.Equal(t, 240.0, v)

	_, err = c.LaunchCredit("t3.micro")
	assert.True(t, errors.Is(err, apperrors.ErrConfigurationLookup))
}

func TestEveryCreditTypeHasBaseline(t *testing.T) {
	c := Default()
	for _, e := range c.Entries() {
		_, err := c.Baseline(e.Type)
		assert.NoError(t, err, "baseline missing for %s", e.Type)
	}
}

func TestLookupMiss(t *testing.T) {
	_, err := Default().Lookup("m5.large")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConfigurationLookup))
	assert.Contains(t, err.Error(), "m5.large")
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	_, err := Parse([]byte("credit:\n  - {type: t3.nano, max_cpu_credit: 0, vcpus: 2}\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("credit:\n  - {type: t3.nano, max_cpu_credit: 1, vcpus: 2}\n  - {type: t3.nano, max_cpu_credit: 1, vcpus: 2}\n"))
	assert.Error(t, err)
}

func TestEntriesSorted(t *testing.T) {
	entries := Default().Entries()
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Type, entries[i].Type)
	}
}
