package probe

import (
	"fmt"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// Condition is a parsed "<metric> <op> <number>" rule expression.
type Condition struct {
	Metric    string
	Op        string
	Threshold float64
}

// ParseCondition parses s, e.g. "prometheus_tsdb_wal_storage_errors_total > 0".
func ParseCondition(s string) (Condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want \"<metric> <op> <number>\"", s)
	}
	c := Condition{Metric: parts[0], Op: parts[1]}
	switch c.Op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return Condition{}, fmt.Errorf("condition %q: unknown operator %q", s, c.Op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: threshold: %w", s, err)
	}
	c.Threshold = v
	return c, nil
}

// Eval reports whether the condition holds for the scraped families, and the
// metric value it was tested against. ok is false when the metric is absent.
func (c Condition) Eval(mfs map[string]*dto.MetricFamily) (fires bool, value float64, ok bool) {
	mf, present := mfs[c.Metric]
	if !present {
		return false, 0, false
	}
	value = sumFamily(mf)
	return compareFloat(value, c.Op, c.Threshold), value, true
}

func (c Condition) String() string {
	return c.Metric + " " + c.Op + " " + strconv.FormatFloat(c.Threshold, 'f', -1, 64)
}

func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
