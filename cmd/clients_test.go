package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/core/defaults"
	"github.com/kilianp07/kioskpower/infra/registryfile"
)

const registryYAML = `
institutions:
  - id: s1
    name: North School
    weekday:
      onTime: "07:30"
      offTime: "16:00"
  - id: s2
    name: South School
    weekend:
      onTime: "10:00"
      offTime: "14:00"
clients:
  - id: c1
    name: Hall
    institution_id: s1
  - id: c2
    name: Gym
    locality: Sports hall
    institution_id: s2
  - id: c3
    name: Lab
    institution_id: s2
    status: pending
`

func TestWriteClients(t *testing.T) {
	reg, err := registryfile.Parse([]byte(registryYAML))
	require.NoError(t, err)
	dir := defaults.NewDirectory(reg, reg, nil)
	require.NoError(t, dir.Refresh(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, writeClients(&buf, dir, ""))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"c1", "Hall", "North", "School", "07:30-16:00", "08:00-18:00"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"c2", "Sports", "hall", "South", "School", "09:00-22:30", "10:00-14:00"}, strings.Fields(lines[2]))

	buf.Reset()
	require.NoError(t, writeClients(&buf, dir, "s2"))
	assert.NotContains(t, buf.String(), "Hall")
	assert.Contains(t, buf.String(), "Sports hall")
}
