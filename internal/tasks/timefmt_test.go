package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime_Cascade(t *testing.T) {
	want := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)

	inputs := []string{
		"2021-06-01T10:00:00Z",
		"2021-06-01T10:00:00+00:00",
		"2021-06-01T15:30:00+05:30",
		"2021-06-01 10:00:00+00:00",
		"2021-06-01 10:00:00.000000 +0000 UTC",
		"2021-06-01T10:00:00.000-0000",
		"2021-06-01T10:00:00",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, err := ParseTime(in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestParseTime_Fractional(t *testing.T) {
	got, err := ParseTime("2021-06-01T10:00:00.123456+02:00")
	require.NoError(t, err)
	assert.Equal(t, 123456000, got.Nanosecond())
}

func TestParseTime_Failure(t *testing.T) {
	_, err := ParseTime("01/06/2021")
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, err.Error(), "01/06/2021")
}

func TestParseTime_ZoneAbbreviation(t *testing.T) {
	want := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, in := range []string{"2021-06-01 10:00:00 UTC", "2021-06-01 10:00:00.000 GMT"} {
		got, err := ParseTime(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "got %s", got)
	}

	got, err := ParseTime("2021-06-01 15:30:00 +0530 IST")
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "numeric offset wins, got %s", got)

	for _, in := range []string{"2021-06-01 15:30:00 IST", "2021-06-01 10:00:00 PST"} {
		_, err := ParseTime(in)
		var parseErr *ParseError
		assert.ErrorAs(t, err, &parseErr, in)
	}
}

func TestFormatISO(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	assert.Equal(t, "2021-06-01T15:30:00+05:30", FormatISO(time.Date(2021, 6, 1, 15, 30, 0, 0, loc)))
	assert.Equal(t, "2021-06-01T10:00:00.500000+00:00", FormatISO(time.Date(2021, 6, 1, 10, 0, 0, 500000000, time.UTC)))
}

func TestToLocation_DefaultsToUTC(t *testing.T) {
	out, err := ToLocation("2021-06-01T15:30:00+05:30", nil)
	require.NoError(t, err)
	assert.Equal(t, "2021-06-01T10:00:00+00:00", out)
}
