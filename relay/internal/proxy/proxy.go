// Package proxy builds the outbound HTTP client used for every transport
// delivery. The proxy policy is a plain value handed to NewClient; nothing
// here reads or writes process globals beyond the optional environment lookup.
package proxy

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// DefaultTimeout bounds a single delivery request when none is configured.
const DefaultTimeout = 10 * time.Second

// Policy is the outbound proxy policy.
type Policy struct {
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string

	// FromEnvironment fills empty fields from HTTP_PROXY, HTTPS_PROXY and
	// NO_PROXY (and their lowercase forms).
	FromEnvironment bool
}

// Enabled reports whether any proxy would ever be used.
func (p Policy) Enabled() bool {
	c := p.resolve()
	return c.HTTPProxy != "" || c.HTTPSProxy != ""
}

func (p Policy) resolve() httpproxy.Config {
	c := httpproxy.Config{
		HTTPProxy:  p.HTTPProxy,
		HTTPSProxy: p.HTTPSProxy,
		NoProxy:    p.NoProxy,
	}
	if p.FromEnvironment {
		env := httpproxy.FromEnvironment()
		if c.HTTPProxy == "" {
			c.HTTPProxy = env.HTTPProxy
		}
		if c.HTTPSProxy == "" {
			c.HTTPSProxy = env.HTTPSProxy
		}
		if c.NoProxy == "" {
			c.NoProxy = env.NoProxy
		}
	}
	return c
}

// ProxyFunc returns a function suitable for http.Transport.Proxy.
func (p Policy) ProxyFunc() func(*http.Request) (*url.URL, error) {
	c := p.resolve()
	fn := c.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return fn(req.URL)
	}
}

// NewClient returns an http.Client that routes through the policy and gives
// up on any request after timeout. A non-positive timeout uses DefaultTimeout.
func NewClient(p Policy, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = p.ProxyFunc()
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}
