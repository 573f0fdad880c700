// Package datasource is the REST client for observations on the backend.
// Every response is an envelope {"ok": bool, "data": ...} or
// {"ok": false, "error": "...", "detail": {...}}.
package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/httpclient"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
)

// ErrRejected is wrapped by every error for a not-ok backend response.
var ErrRejected = errors.NewStd("backend rejected request")

// maxBodySize caps how much of a response is read.
const maxBodySize = 1 << 20

// Config configures the client.
type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
	// Transport overrides the HTTP transport, for tests.
	Transport http.RoundTripper
}

// Client talks to the observations endpoints.
type Client struct {
	http    *httpclient.Client
	baseURL string
	timeout time.Duration
	log     logger.Logger
}

// New creates a client. BaseURL must be absolute.
func New(cfg Config, log logger.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid backend base URL %q", cfg.BaseURL).
			Component("datasource").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("datasource")
	}

	headers := map[string]string{}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}

	return &Client{
		http: httpclient.New(&httpclient.Config{
			DefaultTimeout: cfg.Timeout,
			UserAgent:      cfg.UserAgent,
			Headers:        headers,
			Transport:      cfg.Transport,
		}),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		log:     log,
	}, nil
}

// HTTP exposes the underlying client so callers can attach hooks.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// List returns the observations attached to fileID.
func (c *Client) List(ctx context.Context, fileID int64) ([]observation.Observation, error) {
	endpoint := c.baseURL + "/observations/?data_file=" + strconv.FormatInt(fileID, 10)
	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, c.networkError(err, endpoint, "list")
	}

	var rows []observation.Observation
	if err := c.decode(resp, endpoint, "list", &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []observation.Observation{}
	}
	c.log.Debug("observations listed", logger.Int64("file_id", fileID), logger.Int("count", len(rows)))
	return rows, nil
}

// Create persists a new observation and returns the backend's copy.
func (c *Client) Create(ctx context.Context, payload observation.Payload) (observation.Observation, error) {
	endpoint := c.baseURL + "/observations/"
	resp, err := c.http.Post(ctx, endpoint, "", payload)
	if err != nil {
		return observation.Observation{}, c.networkError(err, endpoint, "create")
	}

	var created observation.Observation
	if err := c.decode(resp, endpoint, "create", &created); err != nil {
		return observation.Observation{}, err
	}
	if created.ID == "" {
		return observation.Observation{}, c.incomplete(resp.StatusCode, endpoint, "create")
	}
	return created, nil
}

// Update patches the observation id and returns the backend's copy.
func (c *Client) Update(ctx context.Context, id string, payload observation.Payload) (observation.Observation, error) {
	endpoint := c.observationURL(id)
	resp, err := c.http.Patch(ctx, endpoint, "", payload)
	if err != nil {
		return observation.Observation{}, c.networkError(err, endpoint, "update")
	}

	var updated observation.Observation
	if err := c.decode(resp, endpoint, "update", &updated); err != nil {
		return observation.Observation{}, err
	}
	if updated.ID == "" {
		return observation.Observation{}, c.incomplete(resp.StatusCode, endpoint, "update")
	}
	return updated, nil
}

// Delete removes the observation id.
func (c *Client) Delete(ctx context.Context, id string) error {
	endpoint := c.observationURL(id)
	resp, err := c.http.Delete(ctx, endpoint)
	if err != nil {
		return c.networkError(err, endpoint, "delete")
	}
	return c.decode(resp, endpoint, "delete", nil)
}

func (c *Client) observationURL(id string) string {
	return c.baseURL + "/observations/" + url.PathEscape(id) + "/"
}

// envelope is the success shape; errors are parsed loosely with jason.
type envelope struct {
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data"`
}

// decode checks the envelope and unmarshals data into out. A nil out ignores data.
func (c *Client) decode(resp *http.Response, endpoint, operation string, out any) error {
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return c.networkError(err, endpoint, operation)
	}

	if resp.StatusCode == http.StatusNoContent && out == nil {
		return nil
	}

	var env envelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil || resp.StatusCode >= http.StatusBadRequest || !env.OK {
		return c.rejection(resp.StatusCode, body, endpoint, operation)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.New(fmt.Errorf("decode %s response: %w", operation, err)).
			Component("datasource").
			Category(errors.CategoryFileParsing).
			Context("operation", operation).
			Build()
	}
	return nil
}

// incomplete reports an ok response that carried no observation. The write may
// have happened, but without the backend's copy the row cannot be reconciled.
func (c *Client) incomplete(status int, endpoint, operation string) error {
	c.log.Warn("backend response missing observation",
		logger.String("operation", operation),
		logger.Int("status", status))

	return errors.New(fmt.Errorf("%w: response carried no observation", ErrRejected)).
		Component("datasource").
		Category(errors.CategoryRemoteRejection).
		Context("operation", operation).
		Context("status_code", status).
		Context("endpoint", endpoint).
		Build()
}

// rejection builds a RemoteRejection error from a not-ok response.
func (c *Client) rejection(status int, body []byte, endpoint, operation string) error {
	message := rejectionMessage(status, body)

	c.log.Warn("backend rejected request",
		logger.String("operation", operation),
		logger.Int("status", status),
		logger.String("message", message))

	category := errors.CategoryRemoteRejection
	switch {
	case status == http.StatusNotFound:
		category = errors.CategoryNotFound
	case status >= http.StatusInternalServerError:
		category = errors.CategoryHTTP
	}

	return errors.New(fmt.Errorf("%w: %s", ErrRejected, message)).
		Component("datasource").
		Category(category).
		Context("operation", operation).
		Context("status_code", status).
		Context("endpoint", endpoint).
		Build()
}

// rejectionMessage extracts the most specific message the backend gave.
// Backends disagree on shape, so error, detail and message are tried as
// strings, then detail as a field map.
func rejectionMessage(status int, body []byte) string {
	fallback := http.StatusText(status)
	if fallback == "" {
		fallback = fmt.Sprintf("status %d", status)
	}

	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
			return text
		}
		return fallback
	}

	for _, key := range []string{"error", "detail", "message"} {
		if s, err := obj.GetString(key); err == nil && s != "" {
			if detail := fieldErrors(obj); detail != "" && key != "detail" {
				return s + " (" + detail + ")"
			}
			return s
		}
	}
	if detail := fieldErrors(obj); detail != "" {
		return detail
	}
	return fallback
}

// fieldErrors flattens {"detail": {"field": ["msg", ...]}} into "field: msg; ...".
func fieldErrors(obj *jason.Object) string {
	detail, err := obj.GetObject("detail")
	if err != nil {
		return ""
	}

	var parts []string
	for field, value := range detail.Map() {
		if items, err := value.Array(); err == nil {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if msg, err := item.String(); err == nil {
					msgs = append(msgs, msg)
				}
			}
			parts = append(parts, field+": "+strings.Join(msgs, ", "))
			continue
		}
		if msg, err := value.String(); err == nil {
			parts = append(parts, field+": "+msg)
		}
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}

func (c *Client) networkError(err error, endpoint, operation string) error {
	return errors.New(err).
		Component("datasource").
		Category(errors.CategoryNetwork).
		NetworkContext(endpoint, c.timeout).
		Context("operation", operation).
		Build()
}
