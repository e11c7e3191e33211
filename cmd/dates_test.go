package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/core/model"
)

func TestParseDates(t *testing.T) {
	dates, err := parseDates([]string{"2025-09-01..2025-09-03", "2025-09-02", "2025-09-10T00:00:00"})
	require.NoError(t, err)
	assert.Equal(t, []model.Date{
		model.NewDate(2025, 9, 1),
		model.NewDate(2025, 9, 2),
		model.NewDate(2025, 9, 3),
		model.NewDate(2025, 9, 10),
	}, dates)

	_, err = parseDates([]string{"2025-09-05..2025-09-01"})
	assert.Error(t, err)
	_, err = parseDates([]string{"tomorrow"})
	assert.Error(t, err)
	_, err = parseDates(nil)
	assert.Error(t, err)
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitIDs(" a,,b "))
	assert.Empty(t, splitIDs(""))
}
