package apitransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/obsidianstack/alertrelay/pkg/types"
)

// maxDrain bounds how much of a response body is read before closing, so the
// connection can be reused without buffering a large error page.
const maxDrain = 64 << 10

// Config is one API transport as entered by the operator.
type Config struct {
	URL          string
	Method       string // GET | PUT | POST; anything else behaves as POST
	Options      string // key=value lines, rendered into the query string
	Headers      string // key=value lines, rendered into request headers
	Body         string
	AuthUsername string
	AuthPassword string
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Success returns a successful Outcome.
func Success() Outcome { return Outcome{OK: true, StatusCode: http.StatusOK} }

// Failure returns a failed Outcome with the given reason.
func Failure(reason string) Outcome { return Outcome{Reason: reason} }

// Err returns nil for a successful outcome and the failure reason otherwise.
func (o Outcome) Err() error {
	if o.OK {
		return nil
	}
	return errors.New(o.Reason)
}

// Doer executes an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport renders and sends alerts to API endpoints.
// It holds no per-delivery state and is safe for concurrent use.
type Transport struct {
	client   Doer
	renderer Renderer
}

// Option customises a Transport.
type Option func(*Transport)

// WithRenderer replaces the default SimpleTemplate renderer.
func WithRenderer(r Renderer) Option {
	return func(t *Transport) { t.renderer = r }
}

// New returns a Transport sending through client. The client owns the proxy
// policy and request timeout.
func New(client Doer, opts ...Option) *Transport {
	t := &Transport{client: client, renderer: SimpleTemplate{}}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Deliver sends alert to the endpoint described by cfg and reports the outcome.
// It makes exactly one request. Cancelling ctx aborts the request and yields a
// failed Outcome.
func (t *Transport) Deliver(ctx context.Context, cfg Config, alert types.Alert) Outcome {
	host := Host(cfg.URL)

	headers := ParseOptions(t.renderer.Render(cfg.Headers, alert))
	query := ParseOptions(t.renderer.Render(cfg.Options, alert))

	method, body, hasBody := t.methodAndBody(cfg, alert)

	req, err := newRequest(ctx, method, host, query, body, hasBody)
	if err != nil {
		return Failure(err.Error())
	}
	if cfg.AuthUsername != "" {
		req.SetBasicAuth(cfg.AuthUsername, cfg.AuthPassword)
	}
	for k, v := range headers {
		// net/http ignores a Host entry in req.Header.
		if strings.EqualFold(k, "Host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Failure(err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain)) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		slog.Error("apitransport: API returned error",
			"host", Redact(host),
			"method", method,
			"params", query,
			"response_headers", resp.Header,
			"return", reasonPhrase(resp),
		)
		out := Failure("HTTP Status code " + strconv.Itoa(resp.StatusCode))
		out.StatusCode = resp.StatusCode
		return out
	}
	return Success()
}

// methodAndBody picks the HTTP method and payload. Only POST renders the body
// template; PUT sends it verbatim and GET sends none.
func (t *Transport) methodAndBody(cfg Config, alert types.Alert) (method, body string, hasBody bool) {
	switch method = EffectiveMethod(cfg.Method); method {
	case http.MethodGet:
		return method, "", false
	case http.MethodPut:
		return method, cfg.Body, true
	default:
		return method, t.renderer.Render(cfg.Body, alert), true
	}
}

// EffectiveMethod maps a configured method to the one Deliver sends:
// GET and PUT match case-insensitively, everything else is POST.
func EffectiveMethod(m string) string {
	switch strings.ToLower(m) {
	case "get":
		return http.MethodGet
	case "put":
		return http.MethodPut
	default:
		return http.MethodPost
	}
}

// Host returns the URL without its query string. The query sent is always
// rebuilt from the options template.
func Host(rawURL string) string {
	host, _, _ := strings.Cut(rawURL, "?")
	return host
}

// Redact returns rawURL without userinfo, query or fragment, for display in
// logs, history and API responses. It returns "" when rawURL does not parse.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func newRequest(ctx context.Context, method, host string, query map[string]string, body string, hasBody bool) (*http.Request, error) {
	target := host
	if len(query) > 0 {
		q := make(url.Values, len(query))
		for k, v := range query {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	var rd io.Reader
	if hasBody {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return req, nil
}

// reasonPhrase returns the text after the status code in resp.Status, falling
// back to the standard phrase for the code.
func reasonPhrase(resp *http.Response) string {
	if _, phrase, ok := strings.Cut(resp.Status, " "); ok && phrase != "" {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}
