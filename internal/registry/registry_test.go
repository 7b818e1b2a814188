package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/provision"
	"github.com/Quidge/oenv/internal/state"
	qt "github.com/frankban/quicktest"
	"go.uber.org/zap"
)

// fakeProvisioner records provisioning requests and fails when err is set.
type fakeProvisioner struct {
	cfgs []config.ProvisionConfig
	err  error
}

func (f *fakeProvisioner) Provision(ctx context.Context, cfg *config.ProvisionConfig) error {
	f.cfgs = append(f.cfgs, *cfg)
	return f.err
}

func newTestRegistry(c *qt.C, prov Provisioner) *Registry {
	db, err := state.Open(state.MemoryPath)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { db.Close() })

	merged, err := config.Merge(config.DefaultGlobalConfig(), config.DefaultProjectConfig(), config.FlagOverrides{})
	c.Assert(err, qt.IsNil)

	r := New(db, prov, merged, zap.NewNop())
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return r
}

func listPairs(c *qt.C, r *Registry) [][2]string {
	envs, err := r.List()
	c.Assert(err, qt.IsNil)
	pairs := make([][2]string, len(envs))
	for i, env := range envs {
		pairs[i] = [2]string{env.Name, env.Path}
	}
	return pairs
}

func current(c *qt.C, r *Registry) string {
	name, err := r.Current()
	c.Assert(err, qt.IsNil)
	return name
}

func TestCreate(t *testing.T) {
	c := qt.New(t)
	prov := &fakeProvisioner{}
	r := newTestRegistry(c, prov)

	env, err := r.Create(context.Background(), "dev", "/tmp/dev", "")
	c.Assert(err, qt.IsNil)
	c.Assert(env.Status, qt.Equals, state.StatusReady)
	c.Assert(env.Version, qt.Equals, "17.0")
	c.Assert(current(c, r), qt.Equals, "dev")

	c.Assert(prov.cfgs, qt.HasLen, 1)
	c.Assert(prov.cfgs[0].Name, qt.Equals, "dev")
	c.Assert(prov.cfgs[0].Path, qt.Equals, "/tmp/dev")
	c.Assert(prov.cfgs[0].ArchiveURL, qt.Equals, "https://github.com/odoo/odoo/archive/refs/heads/17.0.zip")

	got, err := r.Get("dev")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, state.StatusReady)
	c.Assert(got.FailedStep, qt.Equals, "")
}

func TestCreateResolvesRelativePath(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	t.Chdir(dir)

	r := newTestRegistry(c, &fakeProvisioner{})
	env, err := r.Create(context.Background(), "dev", "envs/dev", "16.0")
	c.Assert(err, qt.IsNil)
	c.Assert(env.Path, qt.Equals, filepath.Join(dir, "envs", "dev"))
	c.Assert(env.Version, qt.Equals, "16.0")
}

func TestCreateRejectsBadInput(t *testing.T) {
	c := qt.New(t)
	prov := &fakeProvisioner{}
	r := newTestRegistry(c, prov)

	_, err := r.Create(context.Background(), "", "/tmp/x", "")
	c.Assert(err, qt.IsNotNil)
	_, err = r.Create(context.Background(), "dev", "  ", "")
	c.Assert(err, qt.IsNotNil)

	r.merged.Skip = []string{"nonsense"}
	_, err = r.Create(context.Background(), "dev", "/tmp/x", "")
	c.Assert(err, qt.ErrorMatches, `unknown step "nonsense".*`)

	c.Assert(prov.cfgs, qt.HasLen, 0)
	c.Assert(listPairs(c, r), qt.HasLen, 0)
}

func TestCreateFailureKeepsEntry(t *testing.T) {
	c := qt.New(t)
	cause := errors.New("connection refused")
	prov := &fakeProvisioner{err: &provision.StepError{
		Step: provision.StepDatabase,
		Err:  errors.Join(provision.ErrContainerStartFailed, cause),
	}}
	r := newTestRegistry(c, prov)

	env, err := r.Create(context.Background(), "dev", "/tmp/dev", "")
	c.Assert(err, qt.ErrorIs, provision.ErrContainerStartFailed)
	c.Assert(env.Status, qt.Equals, state.StatusFailed)
	c.Assert(env.FailedStep, qt.Equals, provision.StepDatabase)

	got, err := r.Get("dev")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, state.StatusFailed)
	c.Assert(got.FailedStep, qt.Equals, "database")
	c.Assert(current(c, r), qt.Equals, "dev")
}

func TestListByStatus(t *testing.T) {
	c := qt.New(t)
	prov := &fakeProvisioner{}
	r := newTestRegistry(c, prov)

	_, err := r.Create(context.Background(), "good", "/tmp/good", "")
	c.Assert(err, qt.IsNil)
	prov.err = &provision.StepError{Step: provision.StepFetch, Err: provision.ErrDownloadFailed}
	_, err = r.Create(context.Background(), "bad", "/tmp/bad", "")
	c.Assert(err, qt.ErrorIs, provision.ErrDownloadFailed)

	failed, err := r.List(state.StatusFailed)
	c.Assert(err, qt.IsNil)
	c.Assert(failed, qt.HasLen, 1)
	c.Assert(failed[0].Name, qt.Equals, "bad")

	both, err := r.List(state.StatusReady, state.StatusFailed)
	c.Assert(err, qt.IsNil)
	c.Assert(both, qt.HasLen, 2)

	_, err = r.List("broken")
	c.Assert(err, qt.ErrorIs, state.ErrInvalidStatus)
}

func TestCreateOverwrite(t *testing.T) {
	c := qt.New(t)
	prov := &fakeProvisioner{}
	r := newTestRegistry(c, prov)
	ctx := context.Background()

	_, err := r.Create(ctx, "a", "/tmp/a", "")
	c.Assert(err, qt.IsNil)
	first, err := r.Get("a")
	c.Assert(err, qt.IsNil)
	_, err = r.Create(ctx, "b", "/tmp/b", "")
	c.Assert(err, qt.IsNil)

	// a failed re-create overwrites, then a successful one clears the failure
	prov.err = &provision.StepError{Step: provision.StepFetch, Err: provision.ErrDownloadFailed}
	_, err = r.Create(ctx, "a", "/tmp/a2", "16.0")
	c.Assert(err, qt.IsNotNil)
	prov.err = nil
	env, err := r.Create(ctx, "a", "/tmp/a3", "")
	c.Assert(err, qt.IsNil)
	c.Assert(env.FailedStep, qt.Equals, "")
	c.Assert(env.CreatedAt, qt.Equals, first.CreatedAt)

	c.Assert(listPairs(c, r), qt.DeepEquals, [][2]string{{"a", "/tmp/a3"}, {"b", "/tmp/b"}})
	c.Assert(current(c, r), qt.Equals, "a")
}

func TestDelete(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c, &fakeProvisioner{})
	ctx := context.Background()

	_, err := r.Create(ctx, "a", "/tmp/a", "")
	c.Assert(err, qt.IsNil)
	_, err = r.Create(ctx, "b", "/tmp/b", "")
	c.Assert(err, qt.IsNil)

	// deleting a non-current entry leaves the selection alone
	removed, err := r.Delete("a")
	c.Assert(err, qt.IsNil)
	c.Assert(removed, qt.IsTrue)
	c.Assert(current(c, r), qt.Equals, "b")

	// deleting the current entry clears it
	removed, err = r.Delete("b")
	c.Assert(err, qt.IsNil)
	c.Assert(removed, qt.IsTrue)
	c.Assert(current(c, r), qt.Equals, "")

	removed, err = r.Delete("missing")
	c.Assert(err, qt.IsNil)
	c.Assert(removed, qt.IsFalse)
	c.Assert(listPairs(c, r), qt.HasLen, 0)
}

func TestSwitch(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c, &fakeProvisioner{})
	ctx := context.Background()

	c.Assert(current(c, r), qt.Equals, "")

	_, err := r.Create(ctx, "a", "/tmp/a", "")
	c.Assert(err, qt.IsNil)
	_, err = r.Create(ctx, "b", "/tmp/b", "")
	c.Assert(err, qt.IsNil)

	c.Assert(r.Switch("a"), qt.IsNil)
	c.Assert(current(c, r), qt.Equals, "a")

	c.Assert(r.Switch("nope"), qt.ErrorIs, ErrNotFound)
	c.Assert(current(c, r), qt.Equals, "a")
}

func TestGetNotFound(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c, &fakeProvisioner{})

	_, err := r.Get("nope")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestScenario(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c, &fakeProvisioner{})
	ctx := context.Background()

	_, err := r.Create(ctx, "10.0", "/tmp/e1", "")
	c.Assert(err, qt.IsNil)
	c.Assert(current(c, r), qt.Equals, "10.0")

	_, err = r.Create(ctx, "11.0", "/tmp/e2", "")
	c.Assert(err, qt.IsNil)
	c.Assert(current(c, r), qt.Equals, "11.0")

	c.Assert(r.Switch("10.0"), qt.IsNil)
	c.Assert(current(c, r), qt.Equals, "10.0")

	removed, err := r.Delete("10.0")
	c.Assert(err, qt.IsNil)
	c.Assert(removed, qt.IsTrue)
	c.Assert(current(c, r), qt.Equals, "")

	c.Assert(listPairs(c, r), qt.DeepEquals, [][2]string{{"11.0", "/tmp/e2"}})
}
