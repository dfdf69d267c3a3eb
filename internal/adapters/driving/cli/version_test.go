package cli

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeVersion runs Execute as main does, with a bootstrap that must not
// be reached.
func executeVersion(t *testing.T, buildVersion string) string {
	t.Helper()

	origVersion, origBootstrap := version, bootstrap
	t.Cleanup(func() {
		version, bootstrap = origVersion, origBootstrap
		rootCmd.SetArgs(nil)
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	booted := false
	err := Execute(func(Options) (*Services, error) {
		booted = true
		return &Services{}, nil
	}, buildVersion)

	require.NoError(t, err)
	assert.False(t, booted, "version must not open storage")
	return buf.String()
}

func TestExecute_VersionFromLdflags(t *testing.T) {
	out := executeVersion(t, "1.4.2")

	assert.Contains(t, out, "openleg-sync version 1.4.2")
	assert.Contains(t, out, runtime.Version())
}

func TestExecute_EmptyBuildVersionKeepsDefault(t *testing.T) {
	version = "dev"
	out := executeVersion(t, "")

	assert.Contains(t, out, "openleg-sync version dev")
}

func TestVersionCmd_RejectsArgs(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"version", "extra"})
	defer rootCmd.SetArgs(nil)

	assert.Error(t, rootCmd.Execute())
}
