package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/arenadata/report-poster/internal/config"
	"github.com/arenadata/report-poster/internal/report"
)

const (
	PostName = "post"

	KeyPostURL         = "reporter.post.url"
	KeyPostTimeout     = "reporter.post.timeout"
	KeyPostMaxResponse = "reporter.post.max_response_bytes"
	KeyPostEncodeForm  = "reporter.post.encode_form"
	KeyPostLogBodies   = "reporter.post.log_bodies"

	defaultPostTimeout = 5 * time.Second
	defaultMaxResponse = 64 << 10

	formField       = "report"
	formContentType = "application/x-www-form-urlencoded"
)

var errNotConfigured = errors.New("reporter is not configured")

// PostReporter posts reports as a plain HTTP form body to one endpoint.
type PostReporter struct {
	log     *slog.Logger
	builder report.Builder

	mu          sync.RWMutex
	endpoint    *url.URL
	client      *http.Client
	maxResponse int64
	encodeForm  bool
	logBodies   bool
}

var _ Reporter = (*PostReporter)(nil)

// NewPostReporter returns an unconfigured reporter. A nil builder selects
// report.JSONBuilder.
func NewPostReporter(logger *slog.Logger, builder report.Builder) *PostReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = report.JSONBuilder{}
	}
	return &PostReporter{
		log:     logger.With("reporter", PostName),
		builder: builder,
	}
}

func (p *PostReporter) Name() string { return PostName }

// Endpoint returns the configured target, or nil while unconfigured.
func (p *PostReporter) Endpoint() *url.URL {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.endpoint == nil {
		return nil
	}
	u := *p.endpoint
	return &u
}

// Configure reads reporter.post.url and the optional tuning keys. A missing
// or malformed URL leaves the reporter inert; a malformed tuning key only
// falls back to its default.
func (p *PostReporter) Configure(settings config.Settings) error {
	raw, ok := settings.Lookup(KeyPostURL)
	if !ok {
		p.reset()
		cfgErr := &ConfigError{Kind: ConfigMissing, Key: KeyPostURL}
		p.log.Error(cfgErr.Error())
		return cfgErr
	}
	endpoint, parseErr := parseEndpoint(raw)
	if parseErr != nil {
		p.reset()
		cfgErr := &ConfigError{Kind: ConfigInvalid, Key: KeyPostURL, Err: parseErr}
		p.log.Error(cfgErr.Error(), "value", raw, "err", parseErr)
		return cfgErr
	}

	timeout, tErr := settings.Duration(KeyPostTimeout, defaultPostTimeout)
	p.warnSetting(tErr)
	maxResponse, mErr := settings.Int64(KeyPostMaxResponse, defaultMaxResponse)
	p.warnSetting(mErr)
	encodeForm, eErr := settings.Bool(KeyPostEncodeForm, false)
	p.warnSetting(eErr)
	logBodies, lErr := settings.Bool(KeyPostLogBodies, false)
	p.warnSetting(lErr)
	tlsOpts, tlsErr := readTLSSettings(settings)
	p.warnSetting(tlsErr)

	client := makeHTTPClient(endpoint, timeout, tlsOpts, p.log)

	p.mu.Lock()
	old := p.client
	p.endpoint = endpoint
	p.client = client
	p.maxResponse = maxResponse
	p.encodeForm = encodeForm
	p.logBodies = logBodies
	p.mu.Unlock()
	closeIdle(old)

	p.log.Info("reporter configured", "url", endpoint.String(), "timeout", timeout)
	return nil
}

func (p *PostReporter) reset() {
	p.mu.Lock()
	old := p.client
	p.endpoint = nil
	p.client = nil
	p.mu.Unlock()
	closeIdle(old)
}

// closeIdle drops the pooled connections of a replaced client. Requests
// still in flight on it finish normally.
func closeIdle(c *http.Client) {
	if c != nil {
		c.CloseIdleConnections()
	}
}

func (p *PostReporter) warnSetting(err error) {
	if err != nil {
		p.log.Warn("ignoring invalid setting, using default", "err", err)
	}
}

func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u, nil
}

// Send builds the report and posts it. It returns KindNotConfigured without
// touching the network while no endpoint is set.
func (p *PostReporter) Send(ctx context.Context, env report.Env, message string, err error) Result {
	p.mu.RLock()
	endpoint, client := p.endpoint, p.client
	limit, encode, logBodies := p.maxResponse, p.encodeForm, p.logBodies
	p.mu.RUnlock()

	if endpoint == nil {
		return Result{Kind: KindNotConfigured, Err: errNotConfigured}
	}
	target := endpoint.String()

	payload, bErr := buildPayload(p.builder, env, message, err)
	if bErr != nil {
		p.log.WarnContext(ctx, "report build failed", "err", bErr)
		return Result{Kind: KindBuild, Target: target, Err: bErr}
	}
	body, contentType := formBody(payload, encode)

	p.log.InfoContext(ctx, "posting report", "url", target)
	status, text, pErr := post(ctx, client, target, body, contentType, limit)

	res := Result{Target: target, Status: status, Body: text, Err: pErr}
	switch {
	case errors.Is(pErr, ErrResponseTooLarge):
		res.Kind = KindTooLarge
	case pErr != nil:
		res.Kind = KindTransport
	case status >= http.StatusBadRequest:
		res.Kind = KindStatus
		res.Err = fmt.Errorf("server answered %d %s", status, http.StatusText(status))
	default:
		res.Kind = KindOK
	}

	if logBodies || status >= http.StatusMultipleChoices {
		p.log.InfoContext(ctx, "report post", "url", target, "code", status, "body", strings.TrimSpace(text))
	} else {
		p.log.DebugContext(ctx, "report post", "url", target, "code", status, "body", strings.TrimSpace(text))
	}
	if !res.OK() {
		p.log.WarnContext(ctx, "report not delivered", "url", target, "kind", res.Kind.String(), "err", res.Err)
	}
	return res
}

// buildPayload shields the caller from a panicking Builder.
func buildPayload(b report.Builder, env report.Env, message string, err error) (payload string, buildErr error) {
	defer func() {
		if r := recover(); r != nil {
			buildErr = fmt.Errorf("builder panic: %v", r)
		}
	}()
	return b.BuildPayload(env, message, err)
}

// formBody keeps the raw report=<payload> shape unless encode is set.
func formBody(payload string, encode bool) (body, contentType string) {
	if encode {
		return url.Values{formField: {payload}}.Encode(), formContentType
	}
	return formField + "=" + payload, ""
}

// post sends body to target and returns the status and the response text.
// Transport and read errors are returned as is.
func post(
	ctx context.Context,
	c *http.Client,
	target, body, contentType string,
	limit int64,
) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	text, readErr := read(resp.Body, limit)
	if readErr != nil {
		return resp.StatusCode, text, fmt.Errorf("read response: %w", readErr)
	}
	return resp.StatusCode, text, nil
}

// read drains r as UTF-8 text, at most limit bytes. Bytes are accumulated
// before decoding, so a rune split across reads survives intact. Invalid
// sequences become U+FFFD.
func read(r io.Reader, limit int64) (string, error) {
	// one extra byte tells a body of exactly limit bytes from a longer one
	window := limit
	if window < math.MaxInt64 {
		window++
	}
	var buf strings.Builder
	n, err := io.Copy(&buf, io.LimitReader(r, window))
	s := buf.String()
	if err != nil {
		return strings.ToValidUTF8(s, "\uFFFD"), err
	}
	if n > limit {
		return strings.ToValidUTF8(s[:limit], "\uFFFD"), ErrResponseTooLarge
	}
	return strings.ToValidUTF8(s, "\uFFFD"), nil
}
