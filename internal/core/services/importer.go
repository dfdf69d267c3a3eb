package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
	"github.com/custodia-labs/openleg-sync/internal/logger"
)

// RunObserver receives the importer's state and counters as a run progresses.
type RunObserver func(state domain.RunState, counts domain.RunCounts)

// Importer drives one binding through fetch, parse and process.
// An Importer holds no per-run state and may be reused across runs.
type Importer struct {
	binding   domain.ImporterBinding
	requests  driven.RequestRegistry
	responses driven.ResponseRegistry
	processor driven.RecordProcessor
	clock     driven.Clock
	retry     domain.RetrySettings
}

// NewImporter creates an importer for a binding. Use ValidateBinding first
// to reject bindings that could never run.
func NewImporter(
	binding domain.ImporterBinding,
	requests driven.RequestRegistry,
	responses driven.ResponseRegistry,
	processor driven.RecordProcessor,
	clock driven.Clock,
	retry domain.RetrySettings,
) *Importer {
	if clock == nil {
		clock = driven.SystemClock{}
	}
	return &Importer{
		binding:   binding,
		requests:  requests,
		responses: responses,
		processor: processor,
		clock:     clock,
		retry:     retry,
	}
}

// Binding returns the importer's binding.
func (im *Importer) Binding() domain.ImporterBinding {
	return im.binding
}

// ValidateBinding checks that every collaborator a binding names is
// registered and that its parameters resolve the resource's endpoint.
func ValidateBinding(
	b domain.ImporterBinding,
	requests driven.RequestRegistry,
	responses driven.ResponseRegistry,
	processor driven.RecordProcessor,
) error {
	if b.ID == "" {
		return domain.NewConfigurationError("importer", "id is required")
	}
	desc, err := requests.Descriptor(b.ResourceID)
	if err != nil {
		return err
	}
	if err := requests.Validate(b.ResourceID, b.Params); err != nil {
		return err
	}
	if len(b.ResponseTypes) == 0 {
		return domain.NewConfigurationError(b.ID, "binding accepts no response types")
	}
	for _, t := range b.ResponseTypes {
		if !responses.Has(t) {
			return domain.NewConfigurationError(b.ID, "no parser for response type %q", t)
		}
		if !desc.Yields(t) {
			return domain.NewConfigurationError(b.ID, "resource %s does not yield %q", desc.ID, t)
		}
	}
	if !processor.Has(b.Bundle) {
		return domain.NewConfigurationError(b.ID, "no processor for bundle %q", b.Bundle)
	}
	return nil
}

// Run executes one run from cursor. The returned result always carries a
// summary; err is the terminal error of a failed run. NextCursor is only
// meaningful when the run completed.
func (im *Importer) Run(
	ctx context.Context,
	runID string,
	mode domain.RunMode,
	cursor domain.SyncCursor,
	observe RunObserver,
) (domain.RunResult, error) {
	if observe == nil {
		observe = func(domain.RunState, domain.RunCounts) {}
	}
	log := logger.With("importer", im.binding.ID, "run", runID)

	started := im.clock.Now()
	summary := domain.RunSummary{
		RunID:      runID,
		ImporterID: im.binding.ID,
		Mode:       mode,
		State:      domain.RunStateIdle,
		Started:    started,
	}
	setState := func(s domain.RunState) {
		summary.State = s
		observe(s, summary.RunCounts)
	}
	fail := func(err error) (domain.RunResult, error) {
		summary.Fail(err, im.clock.Now())
		observe(summary.State, summary.RunCounts)
		log.Warnw("run failed", "error", err, "class", summary.ErrorClass, "pages", summary.PagesFetched)
		return domain.RunResult{Summary: summary}, err
	}

	setState(domain.RunStateFetching)
	req, err := im.requests.BuildRequest(ctx, im.binding.ResourceID, im.binding.Params, cursor, mode)
	if err != nil {
		return fail(err)
	}
	log.Infow("run started", "mode", mode, "watermark", cursor.Watermark)

	lastToken := ""
	for req != nil {
		// Cancellation is honoured between pages only.
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		setState(domain.RunStateFetching)
		page, retries, err := im.fetch(ctx, req, log)
		summary.Retries += retries
		if err != nil {
			return fail(err)
		}
		summary.PagesFetched++
		if page.NextToken != "" {
			lastToken = page.NextToken
		}

		im.processPage(ctx, page, &summary, setState, log)

		req, err = im.requests.NextPage(ctx, page)
		if err != nil {
			return fail(err)
		}
	}

	summary.Finished = im.clock.Now()
	setState(domain.RunStateCompleted)
	log.Infow("run completed",
		"pages", summary.PagesFetched,
		"seen", summary.RecordsSeen,
		"created", summary.Created,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"rejected", summary.Rejected,
		"failed", summary.Failed,
		"retries", summary.Retries,
	)

	return domain.RunResult{
		Summary: summary,
		NextCursor: domain.SyncCursor{
			ImporterID: im.binding.ID,
			Watermark:  started,
			LastToken:  lastToken,
		},
	}, nil
}

// fetch executes a request with exponential backoff on retryable
// transport errors. It returns the number of retries made.
func (im *Importer) fetch(ctx context.Context, req *http.Request, log *zap.SugaredLogger) (*domain.RawPage, int, error) {
	bo := backoff.NewExponentialBackOff()
	if im.retry.InitialInterval > 0 {
		bo.InitialInterval = im.retry.InitialInterval
	}
	if im.retry.MaxInterval > 0 {
		bo.MaxInterval = im.retry.MaxInterval
	}
	bo.Reset()

	attempts := 0
	op := func() (*domain.RawPage, error) {
		attempts++
		page, err := im.requests.Fetch(ctx, im.binding.ResourceID, req.Clone(ctx))
		if err == nil {
			return page, nil
		}
		var te *domain.TransportError
		if errors.As(err, &te) && te.Retryable {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	page, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(max(im.retry.MaxRetries, 0)+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debugw("retrying fetch", "attempt", attempts, "wait", next, "error", err)
		}),
	)
	retries := max(attempts-1, 0)
	if err != nil {
		return nil, retries, err
	}
	return page, retries, nil
}

// processPage parses and reconciles every item of a page. Item failures
// are counted and never abort the page.
func (im *Importer) processPage(
	ctx context.Context,
	page *domain.RawPage,
	summary *domain.RunSummary,
	setState func(domain.RunState),
	log *zap.SugaredLogger,
) {
	setState(domain.RunStateParsing)
	items, err := im.responses.Items(page)
	if err != nil {
		// The whole page is unreadable: skip it and count its items.
		n := max(page.ItemCount, 1)
		summary.RecordsSeen += n
		summary.Failed += n
		log.Warnw("page skipped", "url", page.URL, "error", err)
		return
	}
	summary.RecordsSeen += len(items)

	setState(domain.RunStateProcessing)
	// Reconcile writes are not interrupted mid-page.
	writeCtx := context.WithoutCancel(ctx)
	for _, item := range items {
		if !im.binding.Accepts(item.ResponseType) {
			summary.Failed++
			log.Debugw("item response type not accepted", "type", item.ResponseType)
			continue
		}
		record, err := im.responses.Parse(item.ResponseType, item.Raw)
		if err != nil {
			summary.Failed++
			log.Warnw("item parse failed", "type", item.ResponseType, "error", err)
			continue
		}
		key := im.binding.IdentityFor(record.ExternalKey())
		outcome, err := im.processor.Import(writeCtx, im.binding.Bundle, key, record)
		if err != nil {
			summary.Failed++
			log.Warnw("item import failed", "key", key, "error", err)
			continue
		}
		if outcome.Kind == domain.OutcomeRejected {
			log.Infow("item rejected", "key", key, "reason", outcome.Reason)
		}
		summary.Record(outcome.Kind)
	}
}
