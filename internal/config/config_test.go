// SPDX-License-Identifier: GPL-3.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFillsDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
simulation:
  duration_hours: 2
  seed: 12345
network:
  type: nbiot
  num_devices: 50
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2.0, c.Simulation.DurationHours)
	require.Equal(t, int64(12345), c.Simulation.Seed)
	require.Equal(t, "nbiot", c.Network.Type)
	require.Equal(t, 50, c.Network.NumDevices)
	require.Equal(t, 1, c.Network.NumGateways) // default preserved
	require.True(t, c.Protocols.Novel.Enabled)
}

func TestValidateRejectsZeroDevices(t *testing.T) {
	c := Default()
	c.Network.NumDevices = 0
	require.Error(t, c.Validate())
}

func TestValidateRejectsNoProtocolsEnabled(t *testing.T) {
	c := Default()
	c.Protocols.Novel.Enabled = false
	c.Protocols.CompactPS.Enabled = false
	c.Protocols.ReqResp.Enabled = false
	require.Error(t, c.Validate())
}

func TestValidateRejectsBadNetworkType(t *testing.T) {
	c := Default()
	c.Network.Type = "sigfox"
	require.Error(t, c.Validate())
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}
