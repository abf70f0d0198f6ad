package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreatePidfileWritesOwnPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcast-bridged.pid")

	pf, err := CreatePidfile(path)
	require.NoError(t, err)
	require.NoError(t, pf.Write())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data[:len(data)-1]))
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)

	pf.Remove()
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestCreatePidfileRejectsLivePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcast-bridged.pid")

	pf, err := CreatePidfile(path)
	require.NoError(t, err)
	require.NoError(t, pf.Write())
	defer pf.Remove()

	_, err = CreatePidfile(path)
	require.Error(t, err)
}

func TestCreatePidfileReclaimsStalePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcast-bridged.pid")

	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0644))

	pf, err := CreatePidfile(path)
	require.NoError(t, err)
	defer pf.Remove()
	require.NoError(t, pf.Write())
}
