// Package httpapi implements the record API over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/constants"
	"github.com/ubuntu/recordfeed/internal/model"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Operation names reported to the Observer.
const (
	OpRecord  = "record"
	OpRecords = "records"
)

// Observer is told about every completed call.
type Observer interface {
	ObserveFetch(operation string, kind api.Kind, d time.Duration)
}

// Client fetches records from a remote over HTTP.
//
// A single record is read from <base>/<id>, a collection from <base>?<query>.
type Client struct {
	baseURL      string
	client       *http.Client
	keys         model.KeyMap
	decoder      model.Decoder
	recordsPath  string
	maxBodyBytes int64
	observer     Observer

	log *slog.Logger
}

type options struct {
	httpClient      *http.Client
	responseTimeout time.Duration
	keys            model.KeyMap
	recordsPath     string
	maxBodyBytes    int64
	observer        Observer
	logger          *slog.Logger
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithHTTPClient sets the HTTP client used for requests. WithResponseTimeout is ignored then.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithResponseTimeout sets how long to wait for the remote, body included.
func WithResponseTimeout(d time.Duration) Options {
	return func(o *options) {
		o.responseTimeout = d
	}
}

// WithKeyMap sets the translation between canonical and wire keys.
func WithKeyMap(km model.KeyMap) Options {
	return func(o *options) {
		o.keys = km
	}
}

// WithRecordsPath sets the gjson path of the payload inside the response body, like "data.items".
// The whole body is the payload when empty.
func WithRecordsPath(path string) Options {
	return func(o *options) {
		o.recordsPath = path
	}
}

// WithMaxBodyBytes sets the largest response body accepted.
func WithMaxBodyBytes(n int64) Options {
	return func(o *options) {
		o.maxBodyBytes = n
	}
}

// WithObserver sets the observer notified of every call outcome.
func WithObserver(obs Observer) Options {
	return func(o *options) {
		o.observer = obs
	}
}

// WithLogger sets the logger of the client.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New returns a Client for the remote rooted at baseURL.
// baseURL is validated on each call, so that a bad one fails the call without any I/O.
func New(baseURL string, args ...Options) *Client {
	opts := options{
		responseTimeout: constants.DefaultResponseTimeout,
		maxBodyBytes:    constants.DefaultMaxBodyBytes,
		logger:          slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	c := opts.httpClient
	if c == nil {
		c = &http.Client{Timeout: opts.responseTimeout}
	}

	return &Client{
		baseURL:      baseURL,
		client:       c,
		keys:         opts.keys,
		decoder:      model.NewDecoder(opts.keys),
		recordsPath:  opts.recordsPath,
		maxBodyBytes: opts.maxBodyBytes,
		observer:     opts.observer,
		log:          opts.logger,
	}
}

// Record fetches the record identified by id.
func (c *Client) Record(ctx context.Context, id string) (r model.Record, err error) {
	defer c.observe(OpRecord, time.Now(), &err)

	target, err := c.recordTarget(id)
	if err != nil {
		return model.Record{}, err
	}

	payload, err := c.fetch(ctx, target)
	if err != nil {
		return model.Record{}, err
	}
	return c.decoder.DecodeOne(payload)
}

// Records fetches every record matching q.
func (c *Client) Records(ctx context.Context, q api.Query) (rs []model.Record, err error) {
	defer c.observe(OpRecords, time.Now(), &err)

	target, err := c.recordsTarget(q)
	if err != nil {
		return nil, err
	}

	payload, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return c.decoder.DecodeMany(payload)
}

// baseTarget parses the base URL. It must be an absolute http(s) URL without query nor fragment.
func (c *Client) baseTarget() (*url.URL, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrMalformedTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q in base URL %s", api.ErrMalformedTarget, u.Scheme, c.baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: no host in base URL %s", api.ErrMalformedTarget, c.baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("%w: base URL %s must not have a query or fragment", api.ErrMalformedTarget, c.baseURL)
	}
	return u, nil
}

// recordTarget appends the escaped id as the last path segment of the base URL.
// Escaping keeps distinct ids on distinct targets, "/" included.
func (c *Client) recordTarget(id string) (string, error) {
	if id == "" || id == "." || id == ".." {
		return "", fmt.Errorf("%w: invalid record id %q", api.ErrMalformedTarget, id)
	}

	u, err := c.baseTarget()
	if err != nil {
		return "", err
	}

	rawPath := strings.TrimSuffix(u.EscapedPath(), "/") + "/" + url.PathEscape(id)
	p, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", api.ErrMalformedTarget, err)
	}
	u.Path, u.RawPath = p, rawPath

	return u.String(), nil
}

// recordsTarget sets the query, translated to wire keys, on the base URL.
func (c *Client) recordsTarget(q api.Query) (string, error) {
	u, err := c.baseTarget()
	if err != nil {
		return "", err
	}

	wire := make(api.Query, len(q))
	for k, v := range q {
		if !model.IsKey(k) {
			return "", fmt.Errorf("%w: unknown filter key %q", api.ErrMalformedTarget, k)
		}
		wire[c.keys.WireKey(k)] = v
	}
	u.RawQuery = wire.Encode()

	return u.String(), nil
}

// fetch gets target and returns the record payload of the response.
func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	reqID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrMalformedTarget, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(constants.RequestIDHeader, reqID)

	c.log.Debug("Fetching", "url", target, "req_id", reqID)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &api.TransportError{Target: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodyBytes))
		return nil, &api.RemoteError{Target: target, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, &api.TransportError{Target: target, Err: err}
	}
	if int64(len(raw)) > c.maxBodyBytes {
		return nil, model.NewDecodeError(fmt.Errorf("response body exceeds %d bytes", c.maxBodyBytes))
	}
	c.log.Debug("Fetched", "url", target, "req_id", reqID, "status", resp.StatusCode, "bytes", len(raw))

	return c.payload(raw)
}

// payload converts body to UTF-8 according to its BOM, if any, and extracts the configured records path.
func (c *Client) payload(body []byte) ([]byte, error) {
	body, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), body)
	if err != nil {
		return nil, model.NewDecodeError(fmt.Errorf("invalid body encoding: %v", err))
	}

	if c.recordsPath == "" {
		return body, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, model.NewDecodeError(errors.New("invalid JSON"))
	}
	res := gjson.GetBytes(body, c.recordsPath)
	if !res.Exists() {
		return nil, model.NewDecodeError(fmt.Errorf("no payload at path %q", c.recordsPath))
	}
	return []byte(res.Raw), nil
}

func (c *Client) observe(op string, start time.Time, err *error) {
	kind := api.KindOf(*err)
	if c.observer != nil {
		c.observer.ObserveFetch(op, kind, time.Since(start))
	}
	if *err != nil {
		c.log.Debug("Fetch failed", "operation", op, "kind", kind, "error", *err)
	}
}
