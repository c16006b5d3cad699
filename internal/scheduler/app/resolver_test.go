package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestScheduleResolver_FutureExpression(t *testing.T) {
	resolver, err := NewScheduleResolver("", func() time.Time { return fixedNow() })
	require.NoError(t, err)

	delay, err := resolver.Resolve("2024-01-01 00:10:00")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, delay)
}

func TestScheduleResolver_FarFutureExpression(t *testing.T) {
	resolver, err := NewScheduleResolver("", func() time.Time { return fixedNow() })
	require.NoError(t, err)

	delay, err := resolver.Resolve("2099-01-01 00:00:00")
	require.NoError(t, err)

	expected := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC).Sub(fixedNow())
	assert.Equal(t, expected, delay)
	assert.Greater(t, delay, time.Duration(0))
}

func TestScheduleResolver_MalformedExpressions(t *testing.T) {
	resolver, err := NewScheduleResolver("", func() time.Time { return fixedNow() })
	require.NoError(t, err)

	cases := []string{
		"",
		"not-a-date",
		"2024-01-01",
		"2024/01/01 00:10:00",
		"2024-01-01T00:10:00",
		"2024-13-01 00:10:00",
		"2024-01-32 00:10:00",
		"2024-01-01 25:10:00",
		"2024-01-01 00:61:00",
		"2024-01-0a 00:10:00",
	}
	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			_, err := resolver.Resolve(expr)
			assert.ErrorIs(t, err, domain.ErrInvalidScheduleFormat, "expression %q must be rejected as malformed", expr)
		})
	}
}

func TestScheduleResolver_PastIsNotMalformed(t *testing.T) {
	resolver, err := NewScheduleResolver("", func() time.Time { return fixedNow() })
	require.NoError(t, err)

	for _, expr := range []string{"2023-12-31 23:59:59", "2024-01-01 00:00:00"} {
		_, err := resolver.Resolve(expr)
		assert.ErrorIs(t, err, domain.ErrScheduleInPast, "expression %q parses but is not in the future", expr)
		assert.NotErrorIs(t, err, domain.ErrInvalidScheduleFormat)
	}
}

func TestScheduleResolver_Timezone(t *testing.T) {
	resolver, err := NewScheduleResolver("America/New_York", func() time.Time { return fixedNow() })
	require.NoError(t, err)

	// 2024-01-01 12:00:00 in New York (UTC-5 in winter) is 17:00 UTC.
	delay, err := resolver.Resolve("2024-01-01 12:00:00")
	require.NoError(t, err)
	assert.Equal(t, 17*time.Hour, delay)
}

func TestScheduleResolver_UnknownTimezone(t *testing.T) {
	_, err := NewScheduleResolver("Atlantis/Nowhere", nil)
	assert.Error(t, err)
}
