package requests

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultKeyParam is the query parameter carrying the API key.
	DefaultKeyParam = "key"

	// MaxBodySize caps how much of a response body is read.
	MaxBodySize = 32 << 20

	// HeaderRetryAfter is the retry-after header (seconds or HTTP date).
	HeaderRetryAfter = "Retry-After"
)

// Config configures the outbound side of the registry.
type Config struct {
	// BaseURL is the scheme and host (and optional path prefix) of the API.
	BaseURL string

	// APIKey is added to every request when set.
	APIKey string

	// KeyParam names the API key query parameter.
	KeyParam string

	// Timeout bounds each request.
	Timeout time.Duration
}

// Ensure Registry implements the interface.
var _ driven.RequestRegistry = (*Registry)(nil)

// Registry maps resource ids to descriptors and builds, throttles and
// executes their requests. It never retries.
type Registry struct {
	cfg   Config
	doer  driven.HTTPDoer
	clock driven.Clock

	mu        sync.RWMutex
	resources map[string]*resource
}

type resource struct {
	desc     domain.ResourceDescriptor
	throttle *Throttle
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, doer driven.HTTPDoer, clock driven.Clock) (*Registry, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, domain.NewConfigurationError("base url", "invalid URL %q", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.KeyParam == "" {
		cfg.KeyParam = DefaultKeyParam
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	if clock == nil {
		clock = driven.SystemClock{}
	}
	return &Registry{
		cfg:       cfg,
		doer:      doer,
		clock:     clock,
		resources: make(map[string]*resource),
	}, nil
}

// Register validates and adds a resource descriptor.
// Every failure is a ConfigurationError.
func (r *Registry) Register(desc domain.ResourceDescriptor) error {
	desc, err := normalise(desc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[desc.ID]; ok {
		return domain.NewConfigurationError(desc.ID, "resource already registered")
	}
	r.resources[desc.ID] = &resource{desc: desc, throttle: NewThrottle(desc.Throttle)}
	return nil
}

// normalise fills paging defaults and checks the descriptor is usable.
func normalise(d domain.ResourceDescriptor) (domain.ResourceDescriptor, error) {
	if d.ID == "" {
		return d, domain.NewConfigurationError("resource", "id is required")
	}
	if !strings.HasPrefix(d.EndpointTemplate, "/") {
		return d, domain.NewConfigurationError(d.ID, "endpoint template must start with /")
	}
	if len(d.ResponseTypes) == 0 {
		return d, domain.NewConfigurationError(d.ID, "at least one response type is required")
	}

	p := &d.Pagination
	if p.Mode == "" {
		p.Mode = domain.PaginationNone
	}
	if !p.Mode.IsValid() {
		return d, domain.NewConfigurationError(d.ID, "unknown pagination mode %q", p.Mode)
	}
	switch p.Mode {
	case domain.PaginationOffsetLimit:
		if p.PageSize <= 0 {
			return d, domain.NewConfigurationError(d.ID, "offset-limit paging needs a page size")
		}
		if p.LimitParam == "" {
			p.LimitParam = "limit"
		}
		if p.OffsetParam == "" {
			p.OffsetParam = "offset"
		}
	case domain.PaginationCursorToken:
		if p.TokenParam == "" {
			p.TokenParam = "token"
		}
	}

	if d.Throttle.Limit < 0 || (d.Throttle.Limit > 0 && d.Throttle.Period <= 0) {
		return d, domain.NewConfigurationError(d.ID, "throttle needs a positive period and limit")
	}

	inc := &d.Incremental
	if inc.Mode == "" {
		inc.Mode = domain.IncrementalNone
	}
	if inc.TimeLayout == "" {
		inc.TimeLayout = domain.DefaultTimeLayout
	}
	switch inc.Mode {
	case domain.IncrementalNone:
	case domain.IncrementalSince:
		if inc.Param == "" && !hasPlaceholder(d, domain.PlaceholderFrom) {
			return d, domain.NewConfigurationError(d.ID, "since filter needs a query parameter or a {from} placeholder")
		}
	case domain.IncrementalToken:
		if p.Mode != domain.PaginationCursorToken {
			return d, domain.NewConfigurationError(d.ID, "token filter needs cursor-token paging")
		}
	default:
		return d, domain.NewConfigurationError(d.ID, "unknown incremental mode %q", inc.Mode)
	}

	for _, name := range d.Placeholders() {
		if !resolvable(d, name) {
			return d, domain.NewConfigurationError(d.ID, "unresolvable placeholder {%s}", name)
		}
	}
	return d, nil
}

func hasPlaceholder(d domain.ResourceDescriptor, name string) bool {
	for _, p := range d.Placeholders() {
		if p == name {
			return true
		}
	}
	return false
}

func isWindowPlaceholder(d domain.ResourceDescriptor, name string) bool {
	return d.Incremental.Mode == domain.IncrementalSince &&
		(name == domain.PlaceholderFrom || name == domain.PlaceholderTo)
}

func resolvable(d domain.ResourceDescriptor, name string) bool {
	if isWindowPlaceholder(d, name) {
		return true
	}
	if _, ok := d.DefaultParams[name]; ok {
		return true
	}
	for _, p := range d.RequiredParams {
		if p == name {
			return true
		}
	}
	return false
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(desc domain.ResourceDescriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(resourceID string) (*resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[resourceID]
	if !ok {
		return nil, domain.NewConfigurationError(resourceID, "unregistered resource")
	}
	return res, nil
}

// Descriptor returns the registered descriptor for a resource.
func (r *Registry) Descriptor(resourceID string) (domain.ResourceDescriptor, error) {
	res, err := r.lookup(resourceID)
	if err != nil {
		return domain.ResourceDescriptor{}, err
	}
	return res.desc, nil
}

// IDs returns the registered resource ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.resources))
	for id := range r.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that params, over the resource defaults, resolve every
// required parameter and endpoint placeholder.
func (r *Registry) Validate(resourceID string, params map[string]string) error {
	res, err := r.lookup(resourceID)
	if err != nil {
		return err
	}
	values := mergeParams(res.desc, params)
	for _, name := range res.desc.RequiredParams {
		if values[name] == "" {
			return domain.NewConfigurationError(resourceID, "missing required parameter %q", name)
		}
	}
	for _, name := range res.desc.Placeholders() {
		if isWindowPlaceholder(res.desc, name) {
			continue
		}
		if values[name] == "" {
			return domain.NewConfigurationError(resourceID, "unresolved placeholder {%s}", name)
		}
	}
	return nil
}

func mergeParams(d domain.ResourceDescriptor, params map[string]string) map[string]string {
	values := make(map[string]string, len(d.DefaultParams)+len(params)+2)
	for k, v := range d.DefaultParams {
		values[k] = v
	}
	for k, v := range params {
		if v != "" {
			values[k] = v
		}
	}
	return values
}

// BuildRequest builds the first page request of a run. In incremental mode
// the cursor filters the resource; in full mode the resource origin does.
func (r *Registry) BuildRequest(
	ctx context.Context,
	resourceID string,
	params map[string]string,
	cursor domain.SyncCursor,
	mode domain.RunMode,
) (*http.Request, error) {
	res, err := r.lookup(resourceID)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(resourceID, params); err != nil {
		return nil, err
	}

	d := res.desc
	values := mergeParams(d, params)
	query := url.Values{}
	for k, v := range d.QueryParams {
		query.Set(k, v)
	}

	incremental := mode == domain.RunModeIncremental
	switch d.Incremental.Mode {
	case domain.IncrementalSince:
		from := d.Origin
		if incremental && cursor.Watermark.After(from) {
			from = cursor.Watermark
		}
		values[domain.PlaceholderFrom] = from.UTC().Format(d.Incremental.TimeLayout)
		values[domain.PlaceholderTo] = r.clock.Now().UTC().Format(d.Incremental.TimeLayout)
		if d.Incremental.Param != "" {
			query.Set(d.Incremental.Param, values[domain.PlaceholderFrom])
		}
	case domain.IncrementalToken:
		if incremental && cursor.LastToken != "" {
			query.Set(d.Pagination.TokenParam, cursor.LastToken)
		}
	}

	p := d.Pagination
	switch p.Mode {
	case domain.PaginationOffsetLimit:
		query.Set(p.LimitParam, strconv.Itoa(p.PageSize))
		query.Set(p.OffsetParam, strconv.Itoa(p.FirstOffset))
	case domain.PaginationCursorToken:
		if p.LimitParam != "" && p.PageSize > 0 {
			query.Set(p.LimitParam, strconv.Itoa(p.PageSize))
		}
	}

	path := expandTemplate(d.EndpointTemplate, values)
	u, err := url.Parse(r.cfg.BaseURL + path)
	if err != nil {
		return nil, domain.NewConfigurationError(resourceID, "build url: %v", err)
	}
	u.RawQuery = query.Encode()
	return r.newRequest(ctx, u)
}

// expandTemplate substitutes {name} segments with path-escaped values.
func expandTemplate(template string, values map[string]string) string {
	var b strings.Builder
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		name := rest[start+1 : start+end]
		b.WriteString(rest[:start])
		b.WriteString(url.PathEscape(values[name]))
		rest = rest[start+end+1:]
	}
}

// NextPage builds the request that follows page, or returns nil when the
// page is short, empty, at the total, or explicitly the last one.
func (r *Registry) NextPage(ctx context.Context, page *domain.RawPage) (*http.Request, error) {
	res, err := r.lookup(page.ResourceID)
	if err != nil {
		return nil, err
	}
	if page.Done || page.ItemCount == 0 {
		return nil, nil
	}

	u, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	query := u.Query()

	p := res.desc.Pagination
	switch p.Mode {
	case domain.PaginationOffsetLimit:
		if page.ItemCount < page.Limit {
			return nil, nil
		}
		if page.Total >= 0 && page.OffsetEnd > 0 && page.OffsetEnd >= page.Total {
			return nil, nil
		}
		query.Set(p.OffsetParam, strconv.Itoa(page.Offset+page.ItemCount))
	case domain.PaginationCursorToken:
		if page.NextToken == "" {
			return nil, nil
		}
		query.Set(p.TokenParam, page.NextToken)
	default:
		return nil, nil
	}

	u.RawQuery = query.Encode()
	return r.newRequest(ctx, u)
}

func (r *Registry) newRequest(ctx context.Context, u *url.URL) (*http.Request, error) {
	if r.cfg.APIKey != "" {
		q := u.Query()
		q.Set(r.cfg.KeyParam, r.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// redact removes the API key from a URL.
func (r *Registry) redact(u *url.URL) string {
	c := *u
	q := c.Query()
	if q.Has(r.cfg.KeyParam) {
		q.Del(r.cfg.KeyParam)
		c.RawQuery = q.Encode()
	}
	return c.String()
}

// Fetch waits for the resource's throttle, executes req under the
// per-request timeout and reads the page envelope.
//
// Non-2xx responses and network failures are returned as
// *domain.TransportError. Cancellation of ctx is returned as-is.
func (r *Registry) Fetch(ctx context.Context, resourceID string, req *http.Request) (*domain.RawPage, error) {
	res, err := r.lookup(resourceID)
	if err != nil {
		return nil, err
	}
	if err := res.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	target := r.redact(req.URL)
	resp, err := r.doer.Do(req.WithContext(reqCtx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.TransportError{URL: target, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.TransportError{Status: resp.StatusCode, URL: target, Retryable: true, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		te := &domain.TransportError{
			Status:     resp.StatusCode,
			URL:        target,
			Retryable:  domain.IsRetryableStatus(resp.StatusCode),
			RetryAfter: parseRetryAfter(resp.Header.Get(HeaderRetryAfter), r.clock.Now()),
			Err:        errors.New(upstreamMessage(body, resp.Status)),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			te.Err = fmt.Errorf("%w: %v", domain.ErrRateLimited, te.Err)
		}
		res.throttle.Defer(te.RetryAfter)
		return nil, te
	}

	page := &domain.RawPage{
		ResourceID: resourceID,
		URL:        target,
		StatusCode: resp.StatusCode,
		Body:       body,
		Total:      -1,
		FetchedAt:  r.clock.Now(),
	}
	readWindow(page, req.URL.Query(), res.desc.Pagination)
	if err := readEnvelope(page); err != nil {
		return nil, err
	}
	return page, nil
}

func readWindow(page *domain.RawPage, query url.Values, p domain.PaginationPolicy) {
	if p.Mode != domain.PaginationOffsetLimit {
		return
	}
	page.Offset, _ = strconv.Atoi(query.Get(p.OffsetParam))
	page.Limit, _ = strconv.Atoi(query.Get(p.LimitParam))
}

// readEnvelope copies paging metadata from the Openleg envelope.
// Bodies that are not JSON objects are left for the response registry to reject.
func readEnvelope(page *domain.RawPage) error {
	if !gjson.ValidBytes(page.Body) {
		return nil
	}
	env := gjson.ParseBytes(page.Body)
	if ok := env.Get("success"); ok.Exists() && !ok.Bool() {
		return &domain.TransportError{
			Status: page.StatusCode,
			URL:    page.URL,
			Err:    errors.New(upstreamMessage(page.Body, "request unsuccessful")),
		}
	}

	page.ResponseType = env.Get("responseType").String()
	if total := env.Get("total"); total.Exists() {
		page.Total = int(total.Int())
	}
	page.OffsetEnd = int(env.Get("offsetEnd").Int())
	page.NextToken = env.Get("nextToken").String()
	page.Done = env.Get("done").Bool()

	result := env.Get("result")
	switch items := result.Get("items"); {
	case items.IsArray():
		page.ItemCount = len(items.Array())
	case result.IsObject():
		page.ItemCount = 1
	}
	return nil
}

func upstreamMessage(body []byte, fallback string) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "message").String(); msg != "" {
			return msg
		}
	}
	return fallback
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
