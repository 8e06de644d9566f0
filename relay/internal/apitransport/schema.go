package apitransport

import (
	"fmt"
	"net/url"
	"strings"
)

// Field describes one operator-facing configuration input.
type Field struct {
	Title   string            `json:"title"`
	Name    string            `json:"name"`
	Descr   string            `json:"descr"`
	Type    string            `json:"type"` // text | textarea | select | password
	Options map[string]string `json:"options,omitempty"`
}

// Methods lists the methods an operator may choose.
var Methods = []string{"GET", "POST", "PUT"}

// Schema returns the configuration fields of the API transport, in display order.
func Schema() []Field {
	methods := make(map[string]string, len(Methods))
	for _, m := range Methods {
		methods[m] = m
	}
	return []Field{
		{Title: "API Method", Name: "api-method", Descr: "API Method: GET, POST or PUT", Type: "select", Options: methods},
		{Title: "API URL", Name: "api-url", Descr: "API URL", Type: "text"},
		{Title: "Options", Name: "api-options", Descr: "Enter the options (format: option=value separated by new lines)", Type: "textarea"},
		{Title: "headers", Name: "api-headers", Descr: "Enter the headers (format: option=value separated by new lines)", Type: "textarea"},
		{Title: "body", Name: "api-body", Descr: "Enter the body (only used by PUT/POST method, discarded GET)", Type: "textarea"},
		{Title: "Auth Username", Name: "api-auth-username", Descr: "Auth Username", Type: "text"},
		{Title: "Auth Password", Name: "api-auth-password", Descr: "Auth Password", Type: "password"},
	}
}

// Validate applies the save-time rules: the method must be GET, POST or PUT
// and the URL must be an absolute http or https URL. Deliver never calls it.
func Validate(cfg Config) error {
	if !validMethod(cfg.Method) {
		return fmt.Errorf("api-method %q: want one of %s", cfg.Method, strings.Join(Methods, ", "))
	}
	if cfg.URL == "" {
		return fmt.Errorf("api-url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("api-url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api-url %q: scheme must be http or https", cfg.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("api-url %q: host is required", cfg.URL)
	}
	return nil
}

func validMethod(m string) bool {
	for _, want := range Methods {
		if strings.EqualFold(m, want) {
			return true
		}
	}
	return false
}
