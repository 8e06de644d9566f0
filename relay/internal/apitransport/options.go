package apitransport

import "strings"

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ParseOptions parses newline separated key=value pairs. Lines without '=' or
// with an empty key are skipped. Keys and values are trimmed; the first '='
// splits, so values may contain '='. Later keys overwrite earlier ones.
func ParseOptions(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(lineBreaks.Replace(text), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
