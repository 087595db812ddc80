package startup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gobusters/ectologger"

	"github.com/asterworks/valuetracker/pkg/startup"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// fakeDependency records start and stop calls in a shared journal so tests
// can assert ordering across dependencies.
type fakeDependency struct {
	name      string
	dependsOn []string
	failures  int
	stopErr   error
	starts    int
	stops     int
	journal   *[]string
}

func (d *fakeDependency) GetName() string     { return d.name }
func (d *fakeDependency) DependsOn() []string { return d.dependsOn }

func (d *fakeDependency) Start(ctx context.Context) error {
	d.starts++
	*d.journal = append(*d.journal, "start:"+d.name)
	if d.failures > 0 {
		d.failures--
		return errors.New(d.name + " is not ready")
	}
	return nil
}

func (d *fakeDependency) Stop(ctx context.Context) error {
	d.stops++
	*d.journal = append(*d.journal, "stop:"+d.name)
	return d.stopErr
}

func TestStartupOrdering(t *testing.T) {
	journal := []string{}

	cfg := &fakeDependency{name: "config", journal: &journal}
	db := &fakeDependency{name: "database", dependsOn: []string{"config"}, journal: &journal}
	srv := &fakeDependency{name: "server", dependsOn: []string{"database"}, journal: &journal}

	boot := startup.NewStartup(getTestLogger(), 1)
	boot.AddDependency(srv)
	boot.AddDependency(cfg)
	boot.AddDependency(db)

	require.NoError(t, boot.Start(context.Background()))
	assert.Equal(t, []string{"start:config", "start:database", "start:server"}, journal)

	require.NoError(t, boot.Stop(context.Background()))
	assert.Equal(t, []string{
		"start:config", "start:database", "start:server",
		"stop:server", "stop:database", "stop:config",
	}, journal)
}

func TestStartupRetriesWithoutRestartingStartedDependencies(t *testing.T) {
	journal := []string{}

	steady := &fakeDependency{name: "steady", journal: &journal}
	flaky := &fakeDependency{name: "flaky", failures: 1, journal: &journal}

	boot := startup.NewStartup(getTestLogger(), 3)
	boot.AddDependency(steady)
	boot.AddDependency(flaky)

	require.NoError(t, boot.Start(context.Background()))
	assert.Equal(t, 1, steady.starts)
	assert.Equal(t, 2, flaky.starts)
}

func TestStartupGivesUpAfterMaxAttempts(t *testing.T) {
	journal := []string{}
	broken := &fakeDependency{name: "broken", failures: 10, journal: &journal}

	boot := startup.NewStartup(getTestLogger(), 1)
	boot.AddDependency(broken)

	err := boot.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 1 attempts")
	assert.Equal(t, 1, broken.starts)
}

func TestStartupRejectsDependencyCycle(t *testing.T) {
	journal := []string{}

	a := &fakeDependency{name: "a", dependsOn: []string{"b"}, journal: &journal}
	b := &fakeDependency{name: "b", dependsOn: []string{"a"}, journal: &journal}

	boot := startup.NewStartup(getTestLogger(), 1)
	boot.AddDependency(a)
	boot.AddDependency(b)

	err := boot.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestStartupRejectsUnknownDependency(t *testing.T) {
	journal := []string{}
	orphan := &fakeDependency{name: "orphan", dependsOn: []string{"missing"}, journal: &journal}

	boot := startup.NewStartup(getTestLogger(), 1)
	boot.AddDependency(orphan)

	err := boot.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dependency 'missing'")
}

func TestStartupAbortsRetryWhenContextCancelled(t *testing.T) {
	journal := []string{}
	broken := &fakeDependency{name: "broken", failures: 10, journal: &journal}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	boot := startup.NewStartup(getTestLogger(), 5)
	boot.AddDependency(broken)

	err := boot.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, broken.starts)
}

func TestStopContinuesPastFailingDependency(t *testing.T) {
	journal := []string{}

	first := &fakeDependency{name: "first", journal: &journal}
	second := &fakeDependency{name: "second", stopErr: errors.New("stuck"), journal: &journal}

	boot := startup.NewStartup(getTestLogger(), 1)
	boot.AddDependency(first)
	boot.AddDependency(second)

	require.NoError(t, boot.Start(context.Background()))

	err := boot.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck")
	assert.Equal(t, 1, first.stops)
	assert.Equal(t, 1, second.stops)
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	journal := []string{}
	dep := &fakeDependency{name: "idle", journal: &journal}

	boot := startup.NewStartup(getTestLogger(), 1)
	boot.AddDependency(dep)

	require.NoError(t, boot.Stop(context.Background()))
	assert.Zero(t, dep.stops)
}
