package apitransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/alertrelay/pkg/types"
)

// captured is what the test endpoint saw for one request.
type captured struct {
	method   string
	path     string
	rawQuery string
	query    map[string][]string
	header   http.Header
	body     string
	user     string
	pass     string
	hasAuth  bool
}

// endpoint starts a server that records the last request and answers with status.
func endpoint(t *testing.T, status int) (*httptest.Server, func() captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		last captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		u, p, ok := r.BasicAuth()
		mu.Lock()
		last = captured{
			method:   r.Method,
			path:     r.URL.Path,
			rawQuery: r.URL.RawQuery,
			query:    r.URL.Query(),
			header:   r.Header.Clone(),
			body:     string(b),
			user:     u,
			pass:     p,
			hasAuth:  ok,
		}
		mu.Unlock()
		w.Header().Set("X-Upstream", "test")
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() captured {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

var critical = types.Alert{"severity": "critical", "hostname": "core-sw1"}

func TestDeliver_GetScenario(t *testing.T) {
	srv, last := endpoint(t, http.StatusOK)
	tr := New(srv.Client())

	out := tr.Deliver(context.Background(), Config{
		Method:  "GET",
		URL:     srv.URL + "/x?ignored=1",
		Options: "sev={{severity}}",
		Body:    "never sent",
	}, critical)

	if !out.OK {
		t.Fatalf("Deliver: got failure %q, want success", out.Reason)
	}
	got := last()
	if got.method != http.MethodGet {
		t.Errorf("method: got %s, want GET", got.method)
	}
	if got.path != "/x" {
		t.Errorf("path: got %q, want /x", got.path)
	}
	if got.rawQuery != "sev=critical" {
		t.Errorf("query: got %q, want sev=critical", got.rawQuery)
	}
	if got.body != "" {
		t.Errorf("GET body: got %q, want empty", got.body)
	}
	if got.hasAuth {
		t.Error("GET without username should not send basic auth")
	}
}

func TestDeliver_PutSendsBodyUnrendered(t *testing.T) {
	srv, last := endpoint(t, http.StatusInternalServerError)
	tr := New(srv.Client())

	out := tr.Deliver(context.Background(), Config{
		Method:  "PUT",
		URL:     srv.URL + "/x?ignored=1",
		Options: "sev={{severity}}",
		Body:    "raw-{{severity}}",
	}, critical)

	if out.OK {
		t.Fatal("Deliver: got success, want failure for 500")
	}
	if out.Reason != "HTTP Status code 500" {
		t.Errorf("reason: got %q, want %q", out.Reason, "HTTP Status code 500")
	}
	if out.StatusCode != http.StatusInternalServerError {
		t.Errorf("status code: got %d", out.StatusCode)
	}
	got := last()
	if got.method != http.MethodPut {
		t.Errorf("method: got %s, want PUT", got.method)
	}
	if got.body != "raw-{{severity}}" {
		t.Errorf("PUT body: got %q, want raw template", got.body)
	}
}

func TestDeliver_PostRendersBody(t *testing.T) {
	srv, last := endpoint(t, http.StatusOK)
	tr := New(srv.Client())

	out := tr.Deliver(context.Background(), Config{
		Method: "POST",
		URL:    srv.URL,
		Body:   "raw-{{severity}}",
	}, critical)

	if !out.OK {
		t.Fatalf("Deliver: %q", out.Reason)
	}
	if got := last().body; got != "raw-critical" {
		t.Errorf("POST body: got %q, want raw-critical", got)
	}
}

func TestDeliver_UnknownMethodBehavesAsPost(t *testing.T) {
	for _, m := range []string{"", "patch", "DELETE", "Post"} {
		t.Run("method="+m, func(t *testing.T) {
			srv, last := endpoint(t, http.StatusOK)
			out := New(srv.Client()).Deliver(context.Background(), Config{
				Method: m,
				URL:    srv.URL,
				Body:   "b={{hostname}}",
			}, critical)
			if !out.OK {
				t.Fatalf("Deliver: %q", out.Reason)
			}
			got := last()
			if got.method != http.MethodPost {
				t.Errorf("method: got %s, want POST", got.method)
			}
			if got.body != "b=core-sw1" {
				t.Errorf("body: got %q", got.body)
			}
		})
	}
}

func TestDeliver_MethodIsCaseInsensitive(t *testing.T) {
	srv, last := endpoint(t, http.StatusOK)
	tr := New(srv.Client())

	tr.Deliver(context.Background(), Config{Method: "gEt", URL: srv.URL}, critical)
	if got := last().method; got != http.MethodGet {
		t.Errorf("gEt: got %s", got)
	}
	tr.Deliver(context.Background(), Config{Method: "put", URL: srv.URL, Body: "{{x}}"}, critical)
	if got := last(); got.method != http.MethodPut || got.body != "{{x}}" {
		t.Errorf("put: got %s %q", got.method, got.body)
	}
}

func TestDeliver_HeadersAndAuth(t *testing.T) {
	srv, last := endpoint(t, http.StatusOK)
	tr := New(srv.Client())

	out := tr.Deliver(context.Background(), Config{
		Method:       "POST",
		URL:          srv.URL,
		Headers:      "X-Host={{ $hostname }}\nContent-Type=application/json\nnot a header",
		AuthUsername: "bot",
		AuthPassword: "s3cret",
	}, critical)
	if !out.OK {
		t.Fatalf("Deliver: %q", out.Reason)
	}

	got := last()
	if h := got.header.Get("X-Host"); h != "core-sw1" {
		t.Errorf("X-Host: got %q", h)
	}
	if h := got.header.Get("Content-Type"); h != "application/json" {
		t.Errorf("Content-Type: got %q", h)
	}
	if !got.hasAuth || got.user != "bot" || got.pass != "s3cret" {
		t.Errorf("basic auth: got (%q, %q, %v)", got.user, got.pass, got.hasAuth)
	}
}

func TestDeliver_PasswordWithoutUsernameSendsNoAuth(t *testing.T) {
	srv, last := endpoint(t, http.StatusOK)
	New(srv.Client()).Deliver(context.Background(), Config{
		Method:       "GET",
		URL:          srv.URL,
		AuthPassword: "orphan",
	}, critical)
	if got := last(); got.hasAuth || got.header.Get("Authorization") != "" {
		t.Error("no username: expected no Authorization header")
	}
}

func TestDeliver_QueryOnlyFromOptions(t *testing.T) {
	srv, last := endpoint(t, http.StatusOK)
	New(srv.Client()).Deliver(context.Background(), Config{
		Method:  "POST",
		URL:     srv.URL + "/hook?token=fromurl&sev=url",
		Options: "sev={{severity}}\nmsg=a b&c",
	}, critical)

	got := last()
	if _, ok := got.query["token"]; ok {
		t.Error("query from URL leaked into request")
	}
	if v := got.query["sev"]; len(v) != 1 || v[0] != "critical" {
		t.Errorf("sev: got %v", v)
	}
	if v := got.query["msg"]; len(v) != 1 || v[0] != "a b&c" {
		t.Errorf("msg should round-trip encoded: got %v", v)
	}
}

func TestDeliver_NoOptionsNoQuery(t *testing.T) {
	srv, last := endpoint(t, http.StatusOK)
	New(srv.Client()).Deliver(context.Background(), Config{Method: "GET", URL: srv.URL + "/x?drop=me"}, critical)
	if q := last().rawQuery; q != "" {
		t.Errorf("raw query: got %q, want empty", q)
	}
}

func TestDeliver_Non200IsFailure(t *testing.T) {
	for _, code := range []int{http.StatusCreated, http.StatusNoContent, http.StatusBadRequest, http.StatusBadGateway} {
		srv, _ := endpoint(t, code)
		out := New(srv.Client()).Deliver(context.Background(), Config{Method: "POST", URL: srv.URL}, critical)
		if out.OK {
			t.Errorf("status %d: got success, want failure", code)
			continue
		}
		if !strings.Contains(out.Reason, strconv.Itoa(code)) {
			t.Errorf("status %d: reason %q does not include code", code, out.Reason)
		}
		if out.Err() == nil {
			t.Errorf("status %d: Err() = nil", code)
		}
	}
}

func TestDeliver_TransportError(t *testing.T) {
	tr := New(&http.Client{Timeout: time.Second})
	out := tr.Deliver(context.Background(), Config{Method: "POST", URL: "http://127.0.0.1:1/x"}, critical)
	if out.OK {
		t.Fatal("expected failure for unreachable endpoint")
	}
	if out.Reason == "" {
		t.Error("transport failure should carry the error text")
	}
	if out.StatusCode != 0 {
		t.Errorf("status code: got %d, want 0", out.StatusCode)
	}
}

func TestDeliver_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() {
		done <- New(srv.Client()).Deliver(ctx, Config{Method: "GET", URL: srv.URL}, critical)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		if out.OK {
			t.Fatal("cancelled delivery reported success")
		}
		if !strings.Contains(out.Reason, context.Canceled.Error()) {
			t.Errorf("reason: got %q, want it to mention cancellation", out.Reason)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Deliver did not return after cancellation")
	}
}

// stubDoer records the request instead of sending it.
type stubDoer struct {
	req  *http.Request
	resp *http.Response
	err  error
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.req = req
	return s.resp, s.err
}

func TestDeliver_CustomRendererAndDoer(t *testing.T) {
	d := &stubDoer{resp: &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader("")),
	}}
	upper := rendererFunc(func(tmpl string, _ types.Alert) string { return strings.ToUpper(tmpl) })

	out := New(d, WithRenderer(upper)).Deliver(context.Background(), Config{
		Method: "post", URL: "https://hooks.example/x", Body: "hello",
	}, nil)
	if !out.OK {
		t.Fatalf("Deliver: %q", out.Reason)
	}
	b, _ := io.ReadAll(d.req.Body)
	if string(b) != "HELLO" {
		t.Errorf("body: got %q", b)
	}
	if d.req.URL.String() != "https://hooks.example/x" {
		t.Errorf("url: got %q", d.req.URL.String())
	}
}

func TestDeliver_DoerError(t *testing.T) {
	d := &stubDoer{err: errors.New("dial tcp: lookup hooks.example: no such host")}
	out := New(d).Deliver(context.Background(), Config{Method: "GET", URL: "https://hooks.example"}, nil)
	if out.OK || out.Reason != d.err.Error() {
		t.Errorf("got %+v", out)
	}
}

func TestReasonPhrase(t *testing.T) {
	tests := []struct {
		status string
		code   int
		want   string
	}{
		{"503 Service Unavailable", 503, "Service Unavailable"},
		{"418 Totally Custom", 418, "Totally Custom"},
		{"", 404, "Not Found"},
	}
	for _, tc := range tests {
		got := reasonPhrase(&http.Response{Status: tc.status, StatusCode: tc.code})
		if got != tc.want {
			t.Errorf("reasonPhrase(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

type rendererFunc func(string, types.Alert) string

func (f rendererFunc) Render(tmpl string, a types.Alert) string { return f(tmpl, a) }

func TestEffectiveMethodAndHost(t *testing.T) {
	methods := map[string]string{"get": "GET", "GET": "GET", "Put": "PUT", "post": "POST", "": "POST", "patch": "POST"}
	for in, want := range methods {
		if got := EffectiveMethod(in); got != want {
			t.Errorf("EffectiveMethod(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Host("https://hooks.example/x?a=1?b=2"); got != "https://hooks.example/x" {
		t.Errorf("Host: got %q", got)
	}
	if got := Host("https://hooks.example/x"); got != "https://hooks.example/x" {
		t.Errorf("Host without query: got %q", got)
	}
}

func TestDeliver_Non200LogsDiagnostic(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv, _ := endpoint(t, http.StatusInternalServerError)
	out := New(srv.Client()).Deliver(context.Background(), Config{
		Method:       "PUT",
		URL:          srv.URL + "/hook?token=fromurl",
		Options:      "sev={{ $severity }}",
		AuthUsername: "bot",
		AuthPassword: "s3cret",
	}, critical)
	if out.OK {
		t.Fatal("expected failure")
	}

	var rec struct {
		Msg             string              `json:"msg"`
		Host            string              `json:"host"`
		Method          string              `json:"method"`
		Params          map[string]string   `json:"params"`
		ResponseHeaders map[string][]string `json:"response_headers"`
		Return          string              `json:"return"`
	}
	line := bytes.TrimSpace(buf.Bytes())
	if err := json.Unmarshal(line, &rec); err != nil {
		t.Fatalf("decode log line %q: %v", line, err)
	}
	if rec.Host != srv.URL+"/hook" {
		t.Errorf("host: got %q", rec.Host)
	}
	if rec.Method != "PUT" {
		t.Errorf("method: got %q", rec.Method)
	}
	if rec.Params["sev"] != "critical" {
		t.Errorf("params: got %v", rec.Params)
	}
	if v := rec.ResponseHeaders["X-Upstream"]; len(v) != 1 || v[0] != "test" {
		t.Errorf("response_headers: got %v", rec.ResponseHeaders)
	}
	if rec.Return != "Internal Server Error" {
		t.Errorf("return: got %q", rec.Return)
	}
	for _, secret := range []string{"s3cret", "Authorization", "Basic ", "fromurl"} {
		if strings.Contains(buf.String(), secret) {
			t.Errorf("log output contains %q: %s", secret, buf.String())
		}
	}
}

func TestDeliver_HostHeaderSetsRequestHost(t *testing.T) {
	d := &stubDoer{resp: &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader("")),
	}}
	out := New(d).Deliver(context.Background(), Config{
		Method:  "GET",
		URL:     "https://10.0.0.5/hook",
		Headers: "Host=virtual.example\nX-Env=prod",
	}, critical)
	if !out.OK {
		t.Fatalf("Deliver: %q", out.Reason)
	}
	if d.req.Host != "virtual.example" {
		t.Errorf("req.Host: got %q", d.req.Host)
	}
	if d.req.URL.Host != "10.0.0.5" {
		t.Errorf("URL host changed: got %q", d.req.URL.Host)
	}
	if _, ok := d.req.Header["Host"]; ok {
		t.Error("Host left in req.Header")
	}
	if d.req.Header.Get("X-Env") != "prod" {
		t.Errorf("X-Env: got %q", d.req.Header.Get("X-Env"))
	}
}

func TestDeliver_HostHeaderReachesServer(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Host
	}))
	t.Cleanup(srv.Close)

	New(srv.Client()).Deliver(context.Background(), Config{
		Method: "GET", URL: srv.URL, Headers: "host={{ $hostname }}.example",
	}, critical)
	if h := <-got; h != "core-sw1.example" {
		t.Errorf("server saw Host %q", h)
	}
}

func TestRedact(t *testing.T) {
	tests := map[string]string{
		"https://user:pw@hooks.example/x?token=abc#frag": "https://hooks.example/x",
		"https://hooks.example/x?":                       "https://hooks.example/x",
		"http://hooks.example:8080/a/b":                  "http://hooks.example:8080/a/b",
		"://bad":                                         "",
	}
	for in, want := range tests {
		if got := Redact(in); got != want {
			t.Errorf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
}
