package registryfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/core/defaults"
	"github.com/kilianp07/kioskpower/core/logger"
	"github.com/kilianp07/kioskpower/core/model"
)

const sample = `
institutions:
  - id: s1
    name: North School
    weekend:
      onTime: "10:00"
      offTime: "14:00"
  - id: s2
    name: South School
clients:
  - id: c1
    name: Hall
    locality: Entrance
    institution_id: s1
    unique_id: term-01
  - id: c2
    name: Gym
    institution_id: s2
    status: pending
`

func TestLoadAndDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)

	clients, err := reg.ListClients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, model.ApprovalApproved, clients[0].Status)
	assert.Equal(t, "term-01", clients[0].UniqueID)

	tpl, err := reg.FetchTemplate(context.Background(), "s2")
	require.NoError(t, err)
	assert.Nil(t, tpl)

	dir := defaults.NewDirectory(reg, reg, logger.Nop{})
	require.NoError(t, dir.Refresh(context.Background()))
	_, ok := dir.Client("c2")
	assert.False(t, ok, "pending clients are not schedulable")

	sat := model.NewDate(2025, 8, 9)
	assert.Equal(t, model.TimePair{OnTime: "10:00", OffTime: "14:00"}, dir.Times(sat, "c1"))
	mon := model.NewDate(2025, 8, 4)
	assert.Equal(t, defaults.FallbackWeekday, dir.Times(mon, "c1"))
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse([]byte("clients:\n  - id: a\n  - id: a\n"))
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = Parse([]byte("institutions:\n  - id: s\n    weekday: {onTime: \"8\", offTime: \"16:00\"}\n"))
	assert.Error(t, err)

	for _, doc := range []string{"", "- id: a\n", "just text"} {
		_, err = Parse([]byte(doc))
		assert.ErrorIs(t, err, ErrNotMapping, "%q", doc)
	}

	_, err = Parse([]byte(":::"))
	assert.Error(t, err)

	_, err = Parse([]byte("terminals:\n  - id: a\n"))
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = Parse([]byte("clients: [\n"))
	assert.Error(t, err)
}
