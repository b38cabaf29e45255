package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
)

var defaultRules = Rules{
	BurstableFamilies:        []string{"t2", "t3", "t3a", "t4g"},
	ComputeIntensivePatterns: []string{"batch", "", "render"},
}

func TestClassifyInstance(t *testing.T) {
	tests := []struct {
		name          string
		instance      Instance
		wantBurstable bool
		wantLegacy    bool
		wantCompute   bool
		wantFamily    string
	}{
		{
			name:          "t3 standard",
			instance:      Instance{ID: "i-1", Type: "t3.large", Tags: map[string]string{"Name": "web"}},
			wantBurstable: true,
			wantFamily:    "t3",
		},
		{
			name:          "t3a is not t3",
			instance:      Instance{ID: "i-2", Type: "t3a.micro"},
			wantBurstable: true,
			wantFamily:    "t3a",
		},
		{
			name:          "t2 legacy",
			instance:      Instance{ID: "i-3", Type: "t2.micro"},
			wantBurstable: true,
			wantLegacy:    true,
			wantFamily:    "t2",
		},
		{
			name:        "non burstable still matches by name",
			instance:    Instance{ID: "i-4", Type: "m5.large", Tags: map[string]string{"Name": "batch-runner"}},
			wantCompute: true,
			wantFamily:  "m5",
		},
		{
			name:       "non burstable",
			instance:   Instance{ID: "i-8", Type: "m5.large", Tags: map[string]string{"Name": "orders-db"}},
			wantFamily: "m5",
		},
		{
			name:          "compute intensive by name",
			instance:      Instance{ID: "i-5", Type: "t3.medium", Tags: map[string]string{"Name": "nightly-batch-01"}},
			wantBurstable: true,
			wantCompute:   true,
			wantFamily:    "t3",
		},
		{
			name:          "missing name tag never matches",
			instance:      Instance{ID: "i-6", Type: "t4g.small"},
			wantBurstable: true,
			wantFamily:    "t4g",
		},
		{
			name:          "t1 family is not configured",
			instance:      Instance{ID: "i-7", Type: "t1.micro"},
			wantBurstable: false,
			wantFamily:    "t1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ClassifyInstance(tt.instance, defaultRules)
			assert.Equal(t, tt.wantBurstable, res.IsBurstable)
			assert.Equal(t, tt.wantLegacy, res.IsT2Legacy)
			assert.Equal(t, tt.wantCompute, res.ComputeIntensive)
			assert.Equal(t, tt.wantFamily, res.Family)
			assert.Equal(t, tt.instance.Tag(NameTag), res.DisplayName)
		})
	}
}

func TestWorkload(t *testing.T) {
	assert.Equal(t, WorkloadComputeIntensive, Result{ComputeIntensive: true}.Workload())
	assert.Equal(t, WorkloadStandard, Result{}.Workload())
}

func TestEmptyPatternIgnored(t *testing.T) {
	assert.False(t, MatchesAny("anything", []string{""}))
	assert.False(t, MatchesAny("", []string{"batch"}))
}

func TestPlatform(t *testing.T) {
	assert.Equal(t, PlatformLinux, Platform("Linux/UNIX"))
	assert.Equal(t, PlatformLinux, Platform("Red Hat Enterprise Linux"))
	assert.Equal(t, PlatformLinux, Platform(""))
	assert.Equal(t, PlatformWindows, Platform("Windows with SQL Server Standard"))
}

type fakeDescriber map[string]*Instance

func (f fakeDescriber) DescribeInstance(_ context.Context, id string) (*Instance, error) {
	inst, ok := f[id]
	if !ok {
		return nil, apperrors.NewInstanceNotFound(id)
	}
	return inst, nil
}

func TestClassifierClassify(t *testing.T) {
	c := New(fakeDescriber{
		"i-0abc": {ID: "i-0abc", Type: "t3.small", PlatformDetails: "Windows"},
	}, defaultRules, zap.NewNop())

	res, err := c.Classify(context.Background(), "i-0abc")
	require.NoError(t, err)
	assert.True(t, res.IsBurstable)
	assert.Equal(t, PlatformWindows, res.Platform)

	_, err = c.Classify(context.Background(), "i-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInstanceNotFound))
}
