package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ip_mapping:
  192.168.1.100: 10.0.0.100
port_mapping:
  8080: 80
vlan_operations:
  add_vlan: 100
timestamp_shift: 1.5
payload_replacement:
  - search: old.host
    replace: new.host
`), 0o644))

	rs, err := ParseFile(path)
	require.NoError(t, err)

	assert.Len(t, rs.IPMap, 1)
	assert.Equal(t, uint16(80), rs.PortMap[8080])
	require.NotNil(t, rs.VLAN)
	assert.Equal(t, VLANAdd, rs.VLAN.Kind)
	assert.Len(t, rs.Payload, 1)
}

func TestParseFileInvalidRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port_mapping:\n  99999: 80\n"), 0o644))

	_, err := ParseFile(path)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
