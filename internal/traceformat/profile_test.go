package traceformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in   string
		want Profile
	}{
		{"bare", Profile{}},
		{"pid", Profile{HasPid: true}},
		{"sec", Profile{Granularity: GranularitySeconds}},
		{"centi+elapsed", Profile{Granularity: GranularityCentiseconds, HasElapsed: true}},
		{"pid+micro+elapsed", Profile{HasPid: true, Granularity: GranularityMicroseconds, HasElapsed: true}},
	}
	for _, tt := range tests {
		got, err := ParseProfile(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseProfileRoundTrip(t *testing.T) {
	for _, p := range []Profile{
		{},
		{HasPid: true, Granularity: GranularityMicroseconds, HasElapsed: true},
		{Granularity: GranularitySeconds},
	} {
		got, err := ParseProfile(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestParseProfileUnknownToken(t *testing.T) {
	_, err := ParseProfile("pid+nano")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format token")
}
