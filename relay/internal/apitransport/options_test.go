package apitransport

import (
	"reflect"
	"testing"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single", "sev=critical", map[string]string{"sev": "critical"}},
		{"value keeps later equals", "q=a=b=c", map[string]string{"q": "a=b=c"}},
		{"last write wins", "k=1\nk=2\nk=3", map[string]string{"k": "3"}},
		{"lines without equals skipped", "garbage\nk=v\nmore garbage", map[string]string{"k": "v"}},
		{"blank lines skipped", "\n\na=1\n\n\nb=2\n", map[string]string{"a": "1", "b": "2"}},
		{"crlf and cr", "a=1\r\nb=2\rc=3", map[string]string{"a": "1", "b": "2", "c": "3"}},
		{"trims key and value", "  X-Token =  abc  ", map[string]string{"X-Token": "abc"}},
		{"empty key skipped", "=orphan\n k = v", map[string]string{"k": "v"}},
		{"empty value kept", "flag=", map[string]string{"flag": ""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseOptions(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseOptions(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
