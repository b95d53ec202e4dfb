package kettle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/models"
)

const defaultCLIPath = "/cli"

// HTTPConfig configures the CLI-over-HTTP transport.
type HTTPConfig struct {
	// BaseURL is the kettle's address, e.g. "192.168.1.40" or
	// "http://kettle.local/cli". Scheme and CLI path are filled in when
	// missing.
	BaseURL string

	// CLIPath overrides the CLI endpoint path. Default "/cli".
	CLIPath string

	// Timeout bounds every request. Zero means 10 seconds.
	Timeout time.Duration
}

// HTTPClient talks to the kettle's embedded HTTP CLI endpoint. The endpoint
// takes one command per GET request in a "cmd" query parameter and answers
// with free-form text that ParseCLIResponse understands.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	log        *logger.Logger
}

var _ Transport = (*HTTPClient)(nil)

// NewHTTPClient normalizes the configured address and builds the client.
// An empty base URL is rejected immediately rather than failing on first use.
func NewHTTPClient(cfg HTTPConfig, log *logger.Logger) (*HTTPClient, error) {
	endpoint, err := normalizeCLIURL(cfg.BaseURL, cfg.CLIPath)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}, nil
}

// normalizeCLIURL turns whatever the user configured into a full CLI
// endpoint URL: query string stripped, trailing slashes trimmed, "http://"
// prepended when no scheme is present, CLI path appended unless the URL
// already ends with it.
func normalizeCLIURL(base, cliPath string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", invalidParam("base url is required")
	}
	if cliPath == "" {
		cliPath = defaultCLIPath
	}
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if !strings.HasSuffix(base, cliPath) {
		base += cliPath
	}
	return base, nil
}

// Poll reads the "state" body and overlays the "prtsettings" body on top of
// it for settings-type fields. The settings body is authoritative for the
// schedule and the hold duration because the state body can lag a write.
func (c *HTTPClient) Poll(ctx context.Context) (models.StateDelta, error) {
	stateBody, err := c.command(ctx, cliPollState)
	if err != nil {
		return models.StateDelta{}, err
	}
	delta := ParseCLIResponse(stateBody)

	settingsBody, err := c.command(ctx, cliPollSettings)
	if err != nil {
		// The state body alone is a usable poll result.
		c.log.Debugw("prtsettings poll failed, using state body only", "error", err)
		return delta, nil
	}
	settings := ParseCLIResponse(settingsBody)
	if settings.Schedule != nil {
		delta.Schedule = settings.Schedule
	}
	if settings.HoldMinutes != nil {
		delta.HoldMinutes = settings.HoldMinutes
	}
	if settingsBody != "" {
		delta.Raw = stateBody + "\n" + settingsBody
	}
	return delta, nil
}

// Send encodes and issues one command.
func (c *HTTPClient) Send(ctx context.Context, cmd Command) error {
	text, err := CLICommandFor(cmd)
	if err != nil {
		return err
	}
	if _, err := c.command(ctx, text); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Kind, err)
	}
	return nil
}

// Close is a no-op for the stateless HTTP transport.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// command issues one CLI command and returns the raw response body.
func (c *HTTPClient) command(ctx context.Context, text string) (string, error) {
	reqURL := c.endpoint + "?cmd=" + EncodeCLICommand(text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, text)
		}
		return "", fmt.Errorf("cli %q: %w", text, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read cli %q: %w", text, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode}
	}
	return string(body), nil
}

func isTimeout(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
