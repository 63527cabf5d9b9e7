package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcast/internal/apperr"
)

func TestNext(t *testing.T) {
	from := time.Date(2026, 10, 14, 6, 30, 0, 0, time.UTC)

	next, err := Next("0 7 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC), next)

	next, err = Next("@every 6h", from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(6*time.Hour), next)

	next, err = Next("@daily", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), next)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0 7 * * 1-5"))
	assert.NoError(t, Validate("@weekly"))

	err := Validate("")
	assert.Equal(t, "jobs.invalidSchedule", apperr.KeyOf(err))

	err = Validate("every tuesday")
	assert.Equal(t, "jobs.invalidSchedule", apperr.KeyOf(err))

	err = Validate("* * * * *")
	assert.Equal(t, "jobs.scheduleTooFrequent", apperr.KeyOf(err))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidateChecksEveryGap(t *testing.T) {
	// 50 minutes, then 5 minutes
	err := Validate("0,50,55 1 * * *")
	assert.Equal(t, "jobs.scheduleTooFrequent", apperr.KeyOf(err))

	// closely spaced firings once a month, mid month
	err = Validate("0,5 3 15 * *")
	assert.Equal(t, "jobs.scheduleTooFrequent", apperr.KeyOf(err))

	// the short gap only appears on Feb 29
	err = Validate("0,10 0 29 2 *")
	assert.Equal(t, "jobs.scheduleTooFrequent", apperr.KeyOf(err))

	assert.NoError(t, Validate("0,30 8-18 * * 1-5"))
	assert.NoError(t, Validate("@every 15m"))
	assert.NoError(t, Validate("0 9 1 1 *"))

	err = Validate("@every 10m")
	assert.Equal(t, "jobs.scheduleTooFrequent", apperr.KeyOf(err))
}
