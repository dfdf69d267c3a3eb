// Command openleg-sync synchronises Openleg legislative data into a local store.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/custodia-labs/openleg-sync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/openleg-sync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/openleg-sync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/openleg-sync/internal/adapters/driving/cli"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
	"github.com/custodia-labs/openleg-sync/internal/core/services"
	"github.com/custodia-labs/openleg-sync/internal/logger"
	"github.com/custodia-labs/openleg-sync/internal/processors"
	"github.com/custodia-labs/openleg-sync/internal/requests"
	"github.com/custodia-labs/openleg-sync/internal/responses"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

func main() {
	if err := cli.Execute(bootstrap, version); err != nil {
		os.Exit(1)
	}
}

// stores groups the driven stores the services need.
type stores struct {
	cursors   driven.CursorStore
	records   driven.RecordStore
	runs      driven.RunStore
	scheduler driven.SchedulerStore
	close     func() error
}

func openStores(opts cli.Options) (*stores, error) {
	if opts.Memory {
		return &stores{
			cursors:   memory.NewCursorStore(),
			records:   memory.NewRecordStore(),
			runs:      memory.NewRunStore(),
			scheduler: memory.NewSchedulerStore(),
			close:     func() error { return nil },
		}, nil
	}

	db, err := sqlite.NewStore(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug("using database %s", db.Path())
	return &stores{
		cursors:   db.CursorStore(),
		records:   db.RecordStore(),
		runs:      db.RunStore(),
		scheduler: db.SchedulerStore(),
		close:     db.Close,
	}, nil
}

func bootstrap(opts cli.Options) (*cli.Services, error) {
	configStore, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	if err := settingsService.Validate(); err != nil {
		return nil, err
	}
	settings, err := settingsService.Get()
	if err != nil {
		return nil, err
	}
	logger.Configure(logger.Config{Level: settings.Log.Level, Encoding: settings.Log.Encoding})
	logger.Debug("openleg: %s", settings.API)

	st, err := openStores(opts)
	if err != nil {
		return nil, err
	}

	reqs, err := requests.NewOpenlegRegistry(requests.Config{
		BaseURL: settings.API.BaseURL,
		APIKey:  settings.API.APIKey,
		Timeout: settings.API.Timeout,
	}, &http.Client{}, driven.SystemClock{})
	if err != nil {
		_ = st.close()
		return nil, err
	}

	bindings, err := settingsService.ApplyBindings(services.DefaultBindings(time.Now()))
	if err != nil {
		_ = st.close()
		return nil, err
	}

	coord, err := services.NewCoordinator(
		services.CoordinatorConfig{Workers: settings.Workers, Retry: settings.Retry},
		reqs,
		responses.NewOpenlegRegistry(),
		processors.NewOpenlegRegistry(st.records),
		st.cursors,
		st.runs,
		bindings,
	)
	if err != nil {
		_ = st.close()
		return nil, err
	}

	watch := func(ctx context.Context) error {
		if err := services.WatchBindings(ctx, configStore, settingsService, coord); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	}

	return &cli.Services{
		Coordinator: coord,
		Scheduler:   services.NewScheduler(settings.Scheduler, st.scheduler, coord),
		Settings:    settingsService,
		Watch:       watch,
		Close:       st.close,
	}, nil
}
