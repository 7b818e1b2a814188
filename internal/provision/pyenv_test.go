package provision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Quidge/oenv/internal/toolutil"
	qt "github.com/frankban/quicktest"
	"go.uber.org/zap"
)

const installerScript = "#!/bin/bash\necho installing pyenv\n"

func newTestPyenvStep(runner Runner, client *http.Client, found string) *pyenvStep {
	s := newPyenvStep(zap.NewNop(), runner, client)
	s.find = func(name string, candidates ...string) (string, error) {
		if found == "" {
			return "", toolutil.ErrNotInstalled
		}
		return found, nil
	}
	return s
}

func TestPyenvPresentSkipsInstall(t *testing.T) {
	c := qt.New(t)

	runner := &fakeRunner{}
	step := newTestPyenvStep(runner, http.DefaultClient, "/usr/bin/pyenv")
	cfg := testProvisionConfig(c, c.TempDir())
	cfg.ShellProfile = filepath.Join(c.TempDir(), ".bashrc")

	c.Assert(step.Run(context.Background(), cfg), qt.IsNil)
	c.Assert(runner.args(), qt.DeepEquals, [][]string{{"/usr/bin/pyenv", "--version"}})
	c.Assert(pathExists(cfg.ShellProfile), qt.IsFalse)
}

func TestPyenvBrokenBinary(t *testing.T) {
	c := qt.New(t)

	runner := &fakeRunner{fn: func(toolutil.Command) error {
		return &toolutil.ExitError{Args: []string{"pyenv", "--version"}, Code: 1}
	}}
	step := newTestPyenvStep(runner, http.DefaultClient, "/usr/bin/pyenv")

	err := step.Run(context.Background(), testProvisionConfig(c, c.TempDir()))
	c.Assert(err, qt.ErrorIs, ErrPyenvSetupFailed)
}

func TestPyenvAbsentInstalls(t *testing.T) {
	c := qt.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(installerScript))
	}))
	c.Cleanup(server.Close)

	runner := &fakeRunner{}
	step := newTestPyenvStep(runner, server.Client(), "")

	profile := filepath.Join(c.TempDir(), ".bashrc")
	c.Assert(os.WriteFile(profile, []byte("alias ll='ls -l'"), 0644), qt.IsNil)

	cfg := testProvisionConfig(c, c.TempDir())
	cfg.PyenvInstallerURL = server.URL
	cfg.ShellProfile = profile

	c.Assert(step.Run(context.Background(), cfg), qt.IsNil)
	c.Assert(runner.args(), qt.DeepEquals, [][]string{{"bash"}})
	c.Assert(runner.stdin, qt.DeepEquals, []string{installerScript})

	data, err := os.ReadFile(profile)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "alias ll='ls -l'\n"+strings.Join(ProfileLines, "\n")+"\n")

	// a second run must not duplicate the profile lines
	c.Assert(step.Run(context.Background(), cfg), qt.IsNil)
	again, err := os.ReadFile(profile)
	c.Assert(err, qt.IsNil)
	c.Assert(string(again), qt.Equals, string(data))
}

func TestPyenvInstallerUnavailable(t *testing.T) {
	c := qt.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	c.Cleanup(server.Close)

	runner := &fakeRunner{}
	step := newTestPyenvStep(runner, server.Client(), "")
	cfg := testProvisionConfig(c, c.TempDir())
	cfg.PyenvInstallerURL = server.URL

	err := step.Run(context.Background(), cfg)
	c.Assert(err, qt.ErrorIs, ErrPyenvSetupFailed)
	c.Assert(err, qt.ErrorMatches, `.*expected HTTP status code 503 to be 200`)
	c.Assert(runner.args(), qt.HasLen, 0)
}

func TestPyenvInstallerFails(t *testing.T) {
	c := qt.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(installerScript))
	}))
	c.Cleanup(server.Close)

	runner := &fakeRunner{fn: func(toolutil.Command) error {
		return &toolutil.ExitError{Args: []string{"bash"}, Code: 2}
	}}
	step := newTestPyenvStep(runner, server.Client(), "")
	cfg := testProvisionConfig(c, c.TempDir())
	cfg.PyenvInstallerURL = server.URL
	cfg.ShellProfile = filepath.Join(c.TempDir(), ".bashrc")

	err := step.Run(context.Background(), cfg)
	c.Assert(err, qt.ErrorIs, ErrPyenvSetupFailed)
	c.Assert(pathExists(cfg.ShellProfile), qt.IsFalse)
}

func TestEnsureProfileLines(t *testing.T) {
	c := qt.New(t)

	profile := filepath.Join(c.TempDir(), "nested", ".profile")

	added, err := EnsureProfileLines(profile, ProfileLines)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.Equals, 3)

	// lines present with surrounding whitespace count as present
	c.Assert(os.WriteFile(profile, []byte("  "+ProfileLines[0]+"  \n"), 0644), qt.IsNil)
	added, err = EnsureProfileLines(profile, ProfileLines)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.Equals, 2)

	added, err = EnsureProfileLines(profile, ProfileLines)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.Equals, 0)
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
