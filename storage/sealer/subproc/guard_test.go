package subproc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuperviseReturnsError(t *testing.T) {
	g := &Guard{phase: "p1"}

	require.NoError(t, g.Supervise(func() error { return nil }))

	want := ioErrorf("x")
	require.Equal(t, want, g.Supervise(func() error { return want }))
}

func TestSupervisePanic(t *testing.T) {
	g := &Guard{phase: "c2"}

	err := g.Supervise(func() error {
		panic("engine exploded")
	})

	var cf *CrashFault
	require.True(t, errors.As(err, &cf))
	require.Equal(t, "c2", cf.Phase)
	require.Equal(t, "engine exploded", cf.Value)
	require.Contains(t, string(cf.Stack), "TestSupervisePanic")
	require.Equal(t, ExitCrashed, ExitCode(err))
}

func TestSuperviseRuntimeFault(t *testing.T) {
	g := &Guard{phase: "p2"}

	err := g.Supervise(func() error {
		var m map[string]int
		m["x"] = 1 // assignment to nil map
		return nil
	})

	var cf *CrashFault
	require.True(t, errors.As(err, &cf))
	rerr, ok := cf.Value.(error)
	require.True(t, ok)
	require.Contains(t, rerr.Error(), "nil map")
}

func TestQuietlySwallowsPanic(t *testing.T) {
	g := &Guard{phase: "p1"}
	ran := false
	require.NotPanics(t, func() {
		g.Quietly(func() {
			ran = true
			panic("while reporting")
		})
	})
	require.True(t, ran)
}

func TestInstallGuardOnce(t *testing.T) {
	t.Setenv("GOLOG_FILE", "")
	guardInstalled.Store(false)
	t.Cleanup(func() { guardInstalled.Store(false) })

	g, err := InstallGuard("post")
	require.NoError(t, err)
	require.Equal(t, "post", g.Phase())

	_, err = InstallGuard("post")
	require.Error(t, err)
}
