package daemon

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/dennypage/mcast-bridge/internal/config"
	"github.com/dennypage/mcast-bridge/internal/iface"
)

func TestConfigKindMapsEveryDirection(t *testing.T) {
	require.Equal(t, iface.ConfigNone, configKind(config.DirectionUnset))
	require.Equal(t, iface.ConfigStatic, configKind(config.DirectionStatic))
	require.Equal(t, iface.ConfigDynamic, configKind(config.DirectionDynamic))
	require.Equal(t, iface.ConfigForced, configKind(config.DirectionForced))
}

func TestFamilyLabel(t *testing.T) {
	require.Equal(t, "ipv4", familyLabel(unix.AF_INET))
	require.Equal(t, "ipv6", familyLabel(unix.AF_INET6))
}
