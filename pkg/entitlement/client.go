// Package entitlement is a minimal client for the two entitlement server
// (UEP) endpoints the agent uses: consumer lookup and enabled-repository
// reporting. The full entitlement REST protocol lives in subscription-manager
// and is not reproduced here.
package entitlement

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/katello/katello-agent/pkg/repos"
)

// ErrNotFound indicates the entitlement server has no record of the
// consumer. Callers treat this as "not registered", not as a failure.
var ErrNotFound = errors.New("consumer not found")

const defaultPrefix = "/rhsm"

// Consumer is the subset of the entitlement server's consumer record the
// agent inspects.
type Consumer struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Client talks to the entitlement server, authenticating with the consumer
// identity certificate.
type Client struct {
	logger  log.Logger
	baseURL *url.URL
	client  *retryablehttp.Client
}

type Option func(*Client)

// WithPrefix overrides the API path prefix on the entitlement server.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.baseURL.Path = prefix
	}
}

// NewClient returns a client for the entitlement server at hostname,
// using the consumer key/cert pair for mutual TLS. caPath may be empty, in
// which case the system roots are used.
func NewClient(logger log.Logger, hostname, keyPath, certPath, caPath string, opts ...Option) (*Client, error) {
	baseURL, err := url.Parse(fmt.Sprintf("https://%s", hostname))
	if err != nil {
		return nil, errors.Wrap(err, "parsing entitlement server URL")
	}
	baseURL.Path = defaultPrefix

	clientCert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading consumer identity pair")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
	}

	if caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, errors.Wrap(err, "reading CA certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.Errorf("no certificates parsed from %s", caPath)
		}
		tlsConfig.RootCAs = pool
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig:   tlsConfig,
			DisableKeepAlives: true,
		},
	}

	c := &Client{
		logger:  logger,
		baseURL: baseURL,
		client:  retryClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewInsecureClient returns a client without TLS client authentication.
// Only used by tests talking to a local httptest server.
func NewInsecureClient(logger log.Logger, serverURL string) (*Client, error) {
	baseURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing entitlement server URL")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	return &Client{
		logger:  logger,
		baseURL: baseURL,
		client:  retryClient,
	}, nil
}

// GetConsumer looks up the consumer record for consumerID. A 404 from the
// server is returned as ErrNotFound.
func (c *Client) GetConsumer(ctx context.Context, consumerID string) (*Consumer, error) {
	response, err := c.do(ctx, "GET", fmt.Sprintf("/consumers/%s", url.PathEscape(consumerID)), nil)
	if err != nil {
		return nil, errors.Wrap(err, "requesting consumer")
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case response.StatusCode != http.StatusOK:
		return nil, errors.Errorf("consumer lookup returned status %d", response.StatusCode)
	}

	var consumer Consumer
	if err := json.NewDecoder(response.Body).Decode(&consumer); err != nil {
		return nil, errors.Wrap(err, "decoding consumer")
	}

	return &consumer, nil
}

// ReportEnabled uploads the enabled-repository report for consumerID.
func (c *Client) ReportEnabled(ctx context.Context, consumerID string, report *repos.EnabledReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "marshalling enabled report")
	}

	level.Info(c.logger).Log(
		"msg", "reporting enabled repositories",
		"consumer_id", consumerID,
		"repo_count", len(report.Enabled.Repos),
	)

	response, err := c.do(ctx, "PUT", fmt.Sprintf("/systems/%s/enabled_repos", url.PathEscape(consumerID)), body)
	if err != nil {
		return errors.Wrap(err, "sending enabled report")
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		// read a little of the body for the log line, best effort
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 256))
		level.Debug(c.logger).Log(
			"msg", "enabled report rejected",
			"response_code", response.StatusCode,
			"response_body", string(snippet),
		)
		return errors.Errorf("enabled report returned status %d", response.StatusCode)
	}

	return nil
}

func (c *Client) do(ctx context.Context, verb, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	request, err := retryablehttp.NewRequestWithContext(ctx, verb, c.url(path).String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "creating request object")
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	return c.client.Do(request)
}

func (c *Client) url(path string) *url.URL {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	return &u
}
