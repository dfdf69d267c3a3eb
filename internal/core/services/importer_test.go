package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openleg-sync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/processors"
	"github.com/custodia-labs/openleg-sync/internal/requests"
	"github.com/custodia-labs/openleg-sync/internal/responses"
)

// --- Test harness: an Openleg bill endpoint behind httptest ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func billItem(n int, title string) string {
	return fmt.Sprintf(`{"basePrintNo":"S%d","session":2023,"title":%q}`, n, title)
}

func listPage(items []string, offset, total int) string {
	return fmt.Sprintf(
		`{"success":true,"responseType":"bill list","total":%d,"offsetStart":%d,"offsetEnd":%d,"result":{"items":[%s],"size":%d}}`,
		total, offset, offset+len(items)-1, strings.Join(items, ","), len(items),
	)
}

// billServer serves /api/3/bills/{session} with offset-limit paging.
type billServer struct {
	mu       sync.Mutex
	bills    []string
	failures int
	status   int
	requests int

	// onRequest runs before each response, outside the lock.
	onRequest func(r *http.Request)
}

func newBillServer(n int) *billServer {
	s := &billServer{status: http.StatusServiceUnavailable}
	for i := 1; i <= n; i++ {
		s.bills = append(s.bills, billItem(i, "Bill "+strconv.Itoa(i)))
	}
	return s
}

func (s *billServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *billServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.onRequest != nil {
		s.onRequest(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	if strings.HasSuffix(r.URL.Path, "/1999") {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"success":false,"message":"no such session"}`)
		return
	}
	if s.failures > 0 {
		s.failures--
		w.WriteHeader(s.status)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	start := min(max(offset-1, 0), len(s.bills))
	end := min(start+limit, len(s.bills))
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprint(w, listPage(s.bills[start:end], offset, len(s.bills)))
}

func billResource(pageSize int) domain.ResourceDescriptor {
	return domain.ResourceDescriptor{
		ID:               requests.ResourceBillSearch,
		EndpointTemplate: "/api/3/bills/{session}",
		ResponseTypes:    []string{domain.ResponseTypeBill},
		Pagination: domain.PaginationPolicy{
			Mode:        domain.PaginationOffsetLimit,
			PageSize:    pageSize,
			FirstOffset: 1,
		},
		RequiredParams: []string{"session"},
	}
}

func billBinding(id, session string) domain.ImporterBinding {
	return domain.ImporterBinding{
		ID:            id,
		ResourceID:    requests.ResourceBillSearch,
		Params:        map[string]string{"session": session},
		ResponseTypes: []string{domain.ResponseTypeBill},
		Bundle:        processors.BundleLegislation,
		Identity:      domain.IdentityAlias,
		Enabled:       true,
	}
}

type pipeline struct {
	server    *billServer
	clock     *testClock
	requests  *requests.Registry
	responses *responses.Registry
	records   *memory.RecordStore
	processor *processors.Registry
	cursors   *memory.CursorStore
	runs      *memory.RunStore
	retry     domain.RetrySettings
}

func newPipeline(t *testing.T, server *billServer, pageSize int) *pipeline {
	t.Helper()
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	clock := newTestClock()
	reqs, err := requests.NewRegistry(requests.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, srv.Client(), clock)
	require.NoError(t, err)
	require.NoError(t, reqs.Register(billResource(pageSize)))

	records := memory.NewRecordStore()
	return &pipeline{
		server:    server,
		clock:     clock,
		requests:  reqs,
		responses: responses.NewOpenlegRegistry(),
		records:   records,
		processor: processors.NewOpenlegRegistry(records),
		cursors:   memory.NewCursorStore(),
		runs:      memory.NewRunStore(),
		retry: domain.RetrySettings{
			MaxRetries:      5,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}
}

func (p *pipeline) importer(b domain.ImporterBinding) *Importer {
	return NewImporter(b, p.requests, p.responses, p.processor, p.clock, p.retry)
}

func (p *pipeline) count(t *testing.T) int {
	t.Helper()
	n, err := p.records.Count(context.Background(), processors.BundleLegislation)
	require.NoError(t, err)
	return n
}

// --- Importer ---

func TestImporter_InitialImport(t *testing.T) {
	p := newPipeline(t, newBillServer(5), 2)
	im := p.importer(billBinding("bills", "2023"))

	var states []domain.RunState
	result, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{},
		func(s domain.RunState, _ domain.RunCounts) { states = append(states, s) })
	require.NoError(t, err)

	s := result.Summary
	assert.Equal(t, domain.RunStateCompleted, s.State)
	assert.Equal(t, 3, s.PagesFetched)
	assert.Equal(t, 5, s.RecordsSeen)
	assert.Equal(t, 5, s.Created)
	assert.Zero(t, s.Failed)
	assert.Equal(t, 3, p.server.Requests())
	assert.Equal(t, 5, p.count(t))

	assert.Equal(t, "bills", result.NextCursor.ImporterID)
	assert.Equal(t, s.Started, result.NextCursor.Watermark)
	assert.Equal(t, domain.RunStateFetching, states[0])
	assert.Equal(t, domain.RunStateCompleted, states[len(states)-1])
}

func TestImporter_SecondRunIsUnchanged(t *testing.T) {
	p := newPipeline(t, newBillServer(5), 2)
	im := p.importer(billBinding("bills", "2023"))

	_, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.NoError(t, err)

	result, err := im.Run(context.Background(), "run-2", domain.RunModeIncremental, domain.SyncCursor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Summary.Unchanged)
	assert.Zero(t, result.Summary.Created)
	assert.Zero(t, result.Summary.Updated)
	assert.Equal(t, 5, p.count(t))
}

func TestImporter_UpstreamChangeUpdates(t *testing.T) {
	server := newBillServer(3)
	p := newPipeline(t, server, 10)
	im := p.importer(billBinding("bills", "2023"))

	_, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.NoError(t, err)

	server.mu.Lock()
	server.bills[1] = billItem(2, "Bill 2, amended title")
	server.mu.Unlock()

	result, err := im.Run(context.Background(), "run-2", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Updated)
	assert.Equal(t, 2, result.Summary.Unchanged)

	rec, err := p.records.FindByIdentity(context.Background(), processors.BundleLegislation, "/legislation/2023-s2")
	require.NoError(t, err)
	assert.Equal(t, "Bill 2, amended title", rec.Fields["field_bill_title"])
}

func TestImporter_TransientErrorsAreRetried(t *testing.T) {
	server := newBillServer(5)
	server.failures = 3
	p := newPipeline(t, server, 2)
	im := p.importer(billBinding("bills", "2023"))

	result, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Summary.Retries)
	assert.LessOrEqual(t, result.Summary.Retries, p.retry.MaxRetries)
	assert.Equal(t, 5, result.Summary.Created)
	assert.Equal(t, 6, server.Requests())
}

func TestImporter_RetriesExhausted(t *testing.T) {
	server := newBillServer(5)
	server.failures = 100
	p := newPipeline(t, server, 2)
	p.retry.MaxRetries = 2
	im := p.importer(billBinding("bills", "2023"))

	result, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.Error(t, err)

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.Status)
	assert.Equal(t, domain.RunStateFailed, result.Summary.State)
	assert.Equal(t, domain.ErrorClassTransportTransient, result.Summary.ErrorClass)
	assert.Equal(t, 2, result.Summary.Retries)
	assert.Equal(t, 3, server.Requests())
}

func TestImporter_FatalStatusIsNotRetried(t *testing.T) {
	server := newBillServer(5)
	server.failures = 1
	server.status = http.StatusForbidden
	p := newPipeline(t, server, 2)
	im := p.importer(billBinding("bills", "2023"))

	result, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorClassTransportFatal, result.Summary.ErrorClass)
	assert.Zero(t, result.Summary.Retries)
	assert.Equal(t, 1, server.Requests())
}

func TestImporter_MalformedItemIsIsolated(t *testing.T) {
	server := newBillServer(10)
	server.bills[4] = `{"basePrintNo":"S5","session":2023}`
	p := newPipeline(t, server, 20)
	im := p.importer(billBinding("bills", "2023"))

	result, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Summary.RecordsSeen)
	assert.Equal(t, 9, result.Summary.Created)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 9, p.count(t))
}

func TestImporter_UnacceptedItemTypeFails(t *testing.T) {
	server := newBillServer(2)
	server.bills = append(server.bills, `{"responseType":"calendar","year":2024,"calendarNumber":1}`)
	p := newPipeline(t, server, 10)
	im := p.importer(billBinding("bills", "2023"))

	result, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Summary.RecordsSeen)
	assert.Equal(t, 2, result.Summary.Created)
	assert.Equal(t, 1, result.Summary.Failed)
}

func TestImporter_UnknownPageTypeIsSkipped(t *testing.T) {
	p := newPipeline(t, newBillServer(0), 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"success":true,"responseType":"vote list","result":{"items":[{},{}]}}`)
	}))
	t.Cleanup(srv.Close)
	reqs, err := requests.NewRegistry(requests.Config{BaseURL: srv.URL}, srv.Client(), p.clock)
	require.NoError(t, err)
	require.NoError(t, reqs.Register(billResource(5)))
	p.requests = reqs

	result, err := p.importer(billBinding("bills", "2023")).
		Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.PagesFetched)
	assert.Equal(t, 2, result.Summary.RecordsSeen)
	assert.Equal(t, 2, result.Summary.Failed)
}

func TestImporter_ParentMissingIsRejected(t *testing.T) {
	server := newBillServer(1)
	server.bills = append(server.bills,
		`{"basePrintNo":"S9","session":2023,"title":"Sponsored","sponsor":{"member":{"memberId":371,"sessionYear":2023}}}`)
	p := newPipeline(t, server, 10)
	im := p.importer(billBinding("bills", "2023"))

	result, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Created)
	assert.Equal(t, 1, result.Summary.Rejected)
}

func TestImporter_AssemblyBillIsImported(t *testing.T) {
	server := newBillServer(0)
	server.bills = append(server.bills,
		`{"basePrintNo":"A100","session":2023,"title":"Assembly bill","billType":{"chamber":"ASSEMBLY"},"sponsor":{"member":{"memberId":900,"sessionYear":2023}}}`)
	p := newPipeline(t, server, 10)
	im := p.importer(billBinding("bills", "2023"))

	for _, want := range []int{1, 0} {
		result, err := im.Run(context.Background(), "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
		require.NoError(t, err)
		assert.Equal(t, want, result.Summary.Created)
		assert.Zero(t, result.Summary.Rejected)
	}
	assert.Equal(t, 1, p.count(t))
}

func TestImporter_CancelledBetweenPages(t *testing.T) {
	server := newBillServer(5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	server.onRequest = func(*http.Request) { once.Do(cancel) }
	p := newPipeline(t, server, 2)

	result, err := p.importer(billBinding("bills", "2023")).
		Run(ctx, "run-1", domain.RunModeFull, domain.SyncCursor{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunStateFailed, result.Summary.State)
	assert.Equal(t, domain.ErrorClassCancelled, result.Summary.ErrorClass)
	assert.LessOrEqual(t, result.Summary.PagesFetched, 1)
	assert.LessOrEqual(t, server.Requests(), 1)
}

func TestValidateBinding(t *testing.T) {
	p := newPipeline(t, newBillServer(0), 2)

	tests := []struct {
		name   string
		mutate func(b *domain.ImporterBinding)
	}{
		{"missing id", func(b *domain.ImporterBinding) { b.ID = "" }},
		{"unknown resource", func(b *domain.ImporterBinding) { b.ResourceID = "votes" }},
		{"missing param", func(b *domain.ImporterBinding) { b.Params = nil }},
		{"no response types", func(b *domain.ImporterBinding) { b.ResponseTypes = nil }},
		{"unparsed response type", func(b *domain.ImporterBinding) { b.ResponseTypes = []string{"vote"} }},
		{"type not yielded", func(b *domain.ImporterBinding) { b.ResponseTypes = []string{domain.ResponseTypeMember} }},
		{"unknown bundle", func(b *domain.ImporterBinding) { b.Bundle = "votes" }},
	}

	require.NoError(t, ValidateBinding(billBinding("bills", "2023"), p.requests, p.responses, p.processor))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := billBinding("bills", "2023")
			tt.mutate(&b)
			err := ValidateBinding(b, p.requests, p.responses, p.processor)
			require.Error(t, err)
			assert.Equal(t, domain.ErrorClassConfiguration, domain.ClassifyError(err))
		})
	}
}
