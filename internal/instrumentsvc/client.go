// Package instrumentsvc talks to the remote instrument service, the system
// of record that attaches probes to running processes.
package instrumentsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

const (
	defaultAPIVersion = 1
	defaultTimeout    = 10 * time.Second
	maxErrorBody      = 4 << 10
)

// ClientConfig configures a REST client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string // sent as a bearer token when set
	APIVersion int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client implements model.InstrumentService over the service's REST API.
type Client struct {
	base   *url.URL
	key    string
	prefix string
	http   *http.Client
	log    logrus.FieldLogger
}

var _ model.InstrumentService = (*Client)(nil)

// NewClient validates conf and returns a client.
func NewClient(conf ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(conf.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("instrumentsvc: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("instrumentsvc: base url %q must be http or https", conf.BaseURL)
	}
	if conf.APIVersion <= 0 {
		conf.APIVersion = defaultAPIVersion
	}
	hc := conf.HTTPClient
	if hc == nil {
		timeout := conf.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := conf.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		base:   base,
		key:    conf.APIKey,
		prefix: fmt.Sprintf("/v%d/instruments", conf.APIVersion),
		http:   hc,
		log:    logger.WithField("component", "instrumentsvc"),
	}, nil
}

// AddLiveInstrument creates inst remotely and returns the service's copy,
// which carries the assigned id.
func (c *Client) AddLiveInstrument(ctx context.Context, inst model.LiveInstrument) (model.LiveInstrument, error) {
	body, err := json.Marshal(inst)
	if err != nil {
		return model.LiveInstrument{}, fmt.Errorf("instrumentsvc: marshal instrument: %w", err)
	}

	var created model.LiveInstrument
	if err := c.do(ctx, http.MethodPost, c.prefix, body, &created); err != nil {
		return model.LiveInstrument{}, err
	}
	if created.ID == "" {
		return model.LiveInstrument{}, fmt.Errorf("instrumentsvc: response carried no instrument id")
	}
	c.log.WithFields(logrus.Fields{
		"instrument_id": created.ID,
		"type":          created.Kind,
	}).Debug("instrument created")
	return created, nil
}

// RemoveLiveInstrument deletes the instrument with the given id.
// An unknown id yields an error wrapping model.ErrNotFound.
func (c *Client) RemoveLiveInstrument(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("instrumentsvc: remove: empty id")
	}
	return c.do(ctx, http.MethodDelete, c.prefix+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dest any) error {
	u := *c.base
	u.Path = c.base.Path + path

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return fmt.Errorf("instrumentsvc: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("instrumentsvc: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("instrumentsvc: %s %s: %w", method, path, model.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("instrumentsvc: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("instrumentsvc: decode response: %w", err)
	}
	return nil
}
