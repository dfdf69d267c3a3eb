package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driving"
)

// mockCoordinator implements driving.Coordinator for testing.
type mockCoordinator struct {
	bindings  []domain.ImporterBinding
	summaries map[string]*domain.RunSummary
	runErr    error
	sweepErr  error
	history   []domain.RunSummary
	cursors   map[string]*domain.SyncCursor

	lastMode      domain.RunMode
	lastHistoryID string
	lastLimit     int
}

func (m *mockCoordinator) RunImporter(_ context.Context, id string, mode domain.RunMode) (*domain.RunSummary, error) {
	m.lastMode = mode
	s, ok := m.summaries[id]
	if !ok {
		return nil, domain.ErrUnknownImporter
	}
	return s, m.runErr
}

func (m *mockCoordinator) Sweep(_ context.Context, mode domain.RunMode) ([]domain.RunSummary, error) {
	m.lastMode = mode
	var out []domain.RunSummary
	for _, b := range m.bindings {
		if s, ok := m.summaries[b.ID]; ok {
			out = append(out, *s)
		}
	}
	return out, m.sweepErr
}

func (m *mockCoordinator) Importers() []domain.ImporterBinding {
	return m.bindings
}

func (m *mockCoordinator) Status(_ context.Context, id string) (*driving.RunStatus, error) {
	if id == "nope" {
		return nil, domain.ErrUnknownImporter
	}
	return &driving.RunStatus{ImporterID: id, State: domain.RunStateIdle, Cursor: m.cursors[id]}, nil
}

func (m *mockCoordinator) History(_ context.Context, id string, limit int) ([]domain.RunSummary, error) {
	m.lastHistoryID = id
	m.lastLimit = limit
	return m.history, nil
}

// mockSettings implements driving.SettingsService for testing.
type mockSettings struct {
	settings    domain.SyncSettings
	validateErr error
}

func (m *mockSettings) Get() (*domain.SyncSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettings) Save(s *domain.SyncSettings) error {
	m.settings = *s
	return nil
}

func (m *mockSettings) Validate() error { return m.validateErr }

func (m *mockSettings) GetDefaults() domain.SyncSettings { return domain.DefaultSyncSettings() }

func (m *mockSettings) ApplyBindings(b []domain.ImporterBinding) ([]domain.ImporterBinding, error) {
	return b, nil
}

func completedSummary(id string) *domain.RunSummary {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.RunSummary{
		RunID:      "run-" + id,
		ImporterID: id,
		Mode:       domain.RunModeIncremental,
		State:      domain.RunStateCompleted,
		Started:    started,
		Finished:   started.Add(2 * time.Second),
		RunCounts:  domain.RunCounts{PagesFetched: 3, RecordsSeen: 5, Created: 4, Unchanged: 1},
	}
}

func newMockCoordinator() *mockCoordinator {
	return &mockCoordinator{
		bindings: []domain.ImporterBinding{
			{ID: "members", ResourceID: "member-list", Bundle: "senator", Params: map[string]string{"session": "2023"}, Identity: domain.IdentityExternalKey, Enabled: true},
			{ID: "bills", ResourceID: "bill-search", Bundle: "legislation", Identity: domain.IdentityAlias, Enabled: false},
		},
		summaries: map[string]*domain.RunSummary{
			"members": completedSummary("members"),
			"bills":   completedSummary("bills"),
		},
		cursors: map[string]*domain.SyncCursor{},
	}
}

// execute runs the root command with args and the given services installed.
func execute(t *testing.T, coord driving.Coordinator, settings driving.SettingsService, args ...string) (string, error) {
	t.Helper()

	origCoord, origSettings := coordinator, settingsService
	coordinator = coord
	settingsService = settings
	t.Cleanup(func() {
		coordinator, settingsService, scheduler = origCoord, origSettings, nil
		runFull, sweepFull = false, false
		historyJSON, historyLimit = false, 20
		scheduleHistoryLimit = 10
		rootCmd.SetArgs(nil)
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRunCmd_Incremental(t *testing.T) {
	coord := newMockCoordinator()

	out, err := execute(t, coord, nil, "run", "members")

	require.NoError(t, err)
	assert.Equal(t, domain.RunModeIncremental, coord.lastMode)
	assert.Contains(t, out, "Running members (incremental)")
	assert.Contains(t, out, "completed")
}

func TestRunCmd_Full(t *testing.T) {
	coord := newMockCoordinator()

	_, err := execute(t, coord, nil, "run", "members", "--full")

	require.NoError(t, err)
	assert.Equal(t, domain.RunModeFull, coord.lastMode)
}

func TestRunCmd_UnknownImporter(t *testing.T) {
	_, err := execute(t, newMockCoordinator(), nil, "run", "votes")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownImporter)
}

func TestRunCmd_FailedRunShowsSummary(t *testing.T) {
	coord := newMockCoordinator()
	failed := completedSummary("members")
	failed.Fail(&domain.TransportError{Status: 503, Retryable: true}, failed.Finished)
	coord.summaries["members"] = failed
	coord.runErr = errors.New("boom")

	out, err := execute(t, coord, nil, "run", "members")

	require.Error(t, err)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "status 503")
}

func TestRunCmd_NoCoordinator(t *testing.T) {
	_, err := execute(t, nil, nil, "run", "members")
	assert.ErrorIs(t, err, errNoCoordinator)
}

func TestSweepCmd(t *testing.T) {
	coord := newMockCoordinator()

	out, err := execute(t, coord, nil, "sweep", "--full")

	require.NoError(t, err)
	assert.Equal(t, domain.RunModeFull, coord.lastMode)
	assert.Contains(t, out, "Sweeping all importers (full)")
	assert.Contains(t, out, "members")
	assert.Contains(t, out, "2 importers completed.")
}

func TestSweepCmd_PartialFailure(t *testing.T) {
	coord := newMockCoordinator()
	coord.sweepErr = errors.New("bills: boom")

	out, err := execute(t, coord, nil, "sweep")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep: bills: boom")
	assert.Contains(t, out, "members")
	assert.NotContains(t, out, "importers completed")
}

func TestStatusCmd(t *testing.T) {
	coord := newMockCoordinator()
	coord.cursors["members"] = &domain.SyncCursor{
		ImporterID:     "members",
		LastError:      "HTTP 503",
		LastErrorClass: domain.ErrorClassTransportTransient,
	}

	out, err := execute(t, coord, nil, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "members")
	assert.Contains(t, out, "bills")
	assert.Contains(t, out, "HTTP 503")
}

func TestStatusCmd_UnknownImporter(t *testing.T) {
	_, err := execute(t, newMockCoordinator(), nil, "status", "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownImporter)
}

func TestImportersCmd(t *testing.T) {
	out, err := execute(t, newMockCoordinator(), nil, "importers")

	require.NoError(t, err)
	assert.Contains(t, out, "member-list")
	assert.Contains(t, out, "session=2023")
	assert.Contains(t, out, "2 importers")
}

func TestHistoryCmd_Table(t *testing.T) {
	coord := newMockCoordinator()
	coord.history = []domain.RunSummary{*completedSummary("members")}

	out, err := execute(t, coord, nil, "history", "members", "-n", "5")

	require.NoError(t, err)
	assert.Equal(t, "members", coord.lastHistoryID)
	assert.Equal(t, 5, coord.lastLimit)
	assert.Contains(t, out, "4/0/1")
}

func TestHistoryCmd_Empty(t *testing.T) {
	out, err := execute(t, newMockCoordinator(), nil, "history")

	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestHistoryCmd_JSON(t *testing.T) {
	coord := newMockCoordinator()
	coord.history = []domain.RunSummary{*completedSummary("bills")}

	out, err := execute(t, coord, nil, "history", "--json")
	require.NoError(t, err)

	var runs []runJSON
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-bills", runs[0].RunID)
	assert.Equal(t, "completed", runs[0].State)
	assert.Equal(t, "2024-03-01T10:00:00Z", runs[0].Started)
	assert.Equal(t, 4, runs[0].Counts.Created)
}

// mockScheduler implements driving.Scheduler for testing.
type mockScheduler struct {
	tasks     []domain.ScheduledTask
	results   []domain.TaskResult
	lastLimit int
}

func (m *mockScheduler) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error { return nil }

func (m *mockScheduler) Tasks(context.Context) ([]domain.ScheduledTask, error) {
	return m.tasks, nil
}

func (m *mockScheduler) TaskHistory(_ context.Context, _ string, limit int) ([]domain.TaskResult, error) {
	m.lastLimit = limit
	return m.results, nil
}

func TestScheduleCmd_NoScheduler(t *testing.T) {
	scheduler = nil

	_, err := execute(t, newMockCoordinator(), nil, "schedule")
	assert.ErrorIs(t, err, errNoScheduler)

	_, err = execute(t, newMockCoordinator(), nil, "schedule", "status")
	assert.ErrorIs(t, err, errNoScheduler)
}

func TestScheduleStatusCmd(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	sched := &mockScheduler{
		tasks: []domain.ScheduledTask{{
			ID:                  domain.TaskIDSweep,
			Name:                "Openleg sweep",
			Schedule:            "0 */2 * * *",
			Enabled:             true,
			LastError:           "bills: boom",
			ConsecutiveFailures: 2,
		}},
		results: []domain.TaskResult{{
			TaskID:          domain.TaskIDSweep,
			StartedAt:       start,
			EndedAt:         start.Add(time.Minute),
			RunIDs:          []string{"r1", "r2"},
			FailedImporters: []string{"bills"},
			ItemsProcessed:  12,
		}},
	}
	scheduler = sched

	out, err := execute(t, nil, nil, "schedule", "status", "-n", "3")

	require.NoError(t, err)
	assert.Equal(t, 3, sched.lastLimit)
	assert.Contains(t, out, "0 */2 * * *")
	assert.Contains(t, out, "bills: boom (x2)")
	assert.Contains(t, out, "Recent sweeps")
	assert.Contains(t, out, "1m0s")
}

func TestScheduleStatusCmd_NoTasks(t *testing.T) {
	scheduler = &mockScheduler{}

	out, err := execute(t, nil, nil, "schedule", "status")

	require.NoError(t, err)
	assert.Contains(t, out, "No scheduled tasks.")
}

func TestConfigCmd_Show(t *testing.T) {
	settings := &mockSettings{settings: domain.DefaultSyncSettings()}
	settings.settings.API.APIKey = "secret-key-1234"
	settings.settings.DisabledImporters = []string{"agendas"}

	out, err := execute(t, nil, settings, "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, domain.DefaultBaseURL)
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "secret-key")
	assert.Contains(t, out, "Disabled: agendas")
	assert.Contains(t, out, "every 1h0m0s")
}

func TestConfigCmd_Validate(t *testing.T) {
	settings := &mockSettings{settings: domain.DefaultSyncSettings()}

	out, err := execute(t, nil, settings, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Settings are valid.")

	settings.validateErr = domain.NewConfigurationError("coordinator.workers", "must be at least 1")
	_, err = execute(t, nil, settings, "config", "validate")
	assert.Error(t, err)
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"abc", "****"},
		{"abcd", "****"},
		{"abcdef12345", "****2345"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, maskAPIKey(tt.key))
		})
	}
}

func TestFormatParams(t *testing.T) {
	b := domain.ImporterBinding{Params: map[string]string{"year": "2024", "session": "2023"}}
	assert.Equal(t, "session=2023 year=2024", formatParams(b))
	assert.Equal(t, "-", formatParams(domain.ImporterBinding{}))
}

func TestSetup_BootstrapInstallsServices(t *testing.T) {
	coord := newMockCoordinator()
	closed := false

	origBootstrap := bootstrap
	bootstrap = func(o Options) (*Services, error) {
		assert.True(t, o.Memory)
		return &Services{
			Coordinator: coord,
			Close: func() error {
				closed = true
				return nil
			},
		}, nil
	}
	t.Cleanup(func() {
		bootstrap = origBootstrap
		opts = Options{}
	})

	out, err := execute(t, nil, nil, "importers", "--memory")

	require.NoError(t, err)
	assert.Contains(t, out, "2 importers")
	assert.True(t, closed)
}

func TestSetup_BootstrapError(t *testing.T) {
	origBootstrap := bootstrap
	bootstrap = func(Options) (*Services, error) {
		return nil, errors.New("no config")
	}
	t.Cleanup(func() { bootstrap = origBootstrap })

	_, err := execute(t, nil, nil, "importers")
	assert.EqualError(t, err, "no config")
}
