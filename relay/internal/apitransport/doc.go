// Package apitransport delivers an alert to an operator-configured HTTP API.
//
// A Config carries the URL, method, and the header/option/body templates an
// operator entered. Deliver renders those templates against the alert,
// assembles one HTTP request and classifies the response:
//
//   - header and option templates are rendered, then parsed as key=value lines
//   - the query string is rebuilt from the options; any ?query in the URL is dropped
//   - GET sends no body, PUT sends the body template as-is, POST (and any
//     unrecognised method) sends the rendered body
//   - status 200 is a success; anything else is a failure with the code
//
// There are no retries. The HTTP client, and with it the proxy policy and
// request timeout, is injected by the caller.
package apitransport
