// Package remote talks to the hosted relational backend: row CRUD over its
// REST interface and named stored-procedure calls. It owns no state and never
// retries.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rizztempo/rizztempo/internal/version"
)

// HTTPClient abstracts the Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies the bearer token of the signed-in user. An empty token
// means "anonymous", in which case the public key is sent instead.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Filter is an equality match: every field must equal its value (ANDed).
type Filter map[string]any

// CallInfo describes one finished request, for observers such as metrics.
type CallInfo struct {
	Op       string
	Target   string
	Duration time.Duration
	Err      error
}

// Client issues requests against the backend REST endpoint.
type Client struct {
	baseURL    *url.URL
	anonKey    string
	httpClient HTTPClient
	tokens     TokenSource
	logger     *log.Logger
	debug      bool
	observer   func(CallInfo)
}

// NewClient constructs a client for the project at baseURL.
func NewClient(baseURL, anonKey string, httpClient HTTPClient) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, errors.New("anon key required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    parsed,
		anonKey:    anonKey,
		httpClient: httpClient,
		logger:     log.New(log.Writer(), "[rizztempo/remote] ", log.LstdFlags|log.Lmicroseconds),
	}, nil
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (c *Client) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetDebug toggles per-request logging.
func (c *Client) SetDebug(enabled bool) { c.debug = enabled }

// SetTokenSource attaches the signed-in user's credentials.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// SetObserver registers a callback invoked after every request.
func (c *Client) SetObserver(fn func(CallInfo)) { c.observer = fn }

// BaseURL returns the project URL the client talks to.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// AnonKey returns the public API key.
func (c *Client) AnonKey() string { return c.anonKey }

// HTTP exposes the underlying transport to sibling packages (auth).
func (c *Client) HTTP() HTTPClient { return c.httpClient }

func (c *Client) debugf(format string, args ...any) {
	if c.debug && c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Select reads rows of table matching filter into out (a pointer to a slice).
// An empty columns string selects every column.
func (c *Client) Select(ctx context.Context, table, columns string, filter Filter, out any) error {
	if strings.TrimSpace(columns) == "" {
		columns = "*"
	}
	q := filterQuery(filter)
	q.Set("select", columns)
	return c.do(ctx, "select", table, http.MethodGet, "rest/v1/"+table, q, nil, out)
}

// Insert writes row (a struct, map or slice of them) and decodes the stored
// rows into out.
func (c *Client) Insert(ctx context.Context, table string, row any, out any) error {
	return c.do(ctx, "insert", table, http.MethodPost, "rest/v1/"+table, url.Values{"select": {"*"}}, row, out)
}

// Update applies patch to every row matching filter.
func (c *Client) Update(ctx context.Context, table string, patch any, filter Filter, out any) error {
	if len(filter) == 0 {
		return &Error{Message: "update requires a filter", cause: ErrNoFilter}
	}
	q := filterQuery(filter)
	q.Set("select", "*")
	return c.do(ctx, "update", table, http.MethodPatch, "rest/v1/"+table, q, patch, out)
}

// Delete removes every row matching filter.
func (c *Client) Delete(ctx context.Context, table string, filter Filter, out any) error {
	if len(filter) == 0 {
		return &Error{Message: "delete requires a filter", cause: ErrNoFilter}
	}
	q := filterQuery(filter)
	q.Set("select", "*")
	return c.do(ctx, "delete", table, http.MethodDelete, "rest/v1/"+table, q, nil, out)
}

// Call invokes the named stored procedure with named args.
func (c *Client) Call(ctx context.Context, procedure string, args any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	return c.do(ctx, "call", procedure, http.MethodPost, "rest/v1/rpc/"+procedure, nil, args, out)
}

func (c *Client) do(ctx context.Context, op, target, method, path string, query url.Values, payload any, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer(CallInfo{Op: op, Target: target, Duration: time.Since(start), Err: err})
		}
		if err != nil && c.logger != nil {
			c.logger.Printf("%s %s failed: %v", op, target, err)
		}
	}()

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return &Error{Message: fmt.Sprintf("encode %s payload: %v", target, err), cause: err}
		}
		body = bytes.NewReader(buf)
	}
	rel := &url.URL{Path: path}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	endpoint := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return &Error{Message: fmt.Sprintf("build request: %v", err), cause: err}
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && op != "call" {
		req.Header.Set("Prefer", "return=representation")
	}
	c.debugf("%s %s", method, endpoint.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Message: fmt.Sprintf("read response: %v", err), Status: resp.StatusCode, cause: err}
	}
	if resp.StatusCode >= 400 {
		return DecodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Message: fmt.Sprintf("decode %s response: %v", target, err), Status: resp.StatusCode, cause: err}
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	req.Header.Set("apikey", c.anonKey)
	bearer := c.anonKey
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return &Error{Message: fmt.Sprintf("access token: %v", err), cause: err}
		}
		if token != "" {
			bearer = token
		}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	return nil
}

func filterQuery(filter Filter) url.Values {
	q := url.Values{}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, encodeMatch(filter[k]))
	}
	return q
}

func encodeMatch(v any) string {
	switch val := v.(type) {
	case nil:
		return "is.null"
	case string:
		return "eq." + val
	case bool:
		return "is." + strconv.FormatBool(val)
	case float64:
		return "eq." + strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return "eq." + val.String()
	default:
		return fmt.Sprintf("eq.%v", val)
	}
}
