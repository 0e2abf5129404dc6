package mcp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// formatNumber renders whole numbers with thousands separators. Fractions
// keep one decimal and no separators.
func formatNumber(n any) string {
	var s string
	switch v := n.(type) {
	case float64:
		if v != float64(int64(v)) {
			return strconv.FormatFloat(v, 'f', 1, 64)
		}
		s = strconv.FormatInt(int64(v), 10)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case uint64:
		s = strconv.FormatUint(v, 10)
	default:
		return fmt.Sprint(n)
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	head := len(s) % 3
	if head == 0 {
		head = 3
	}
	b.WriteString(s[:head])
	for i := head; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

// optional renders a kv line only when the value is present.
func optional(key, value string) string {
	if value == "" {
		return ""
	}
	return kv(key, value)
}

func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	kept := lines[:0:0]
	for _, l := range lines {
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func formatMs(v float64) string {
	return fmt.Sprintf("%.1fms", v)
}

// formatTime shortens an RFC 3339 timestamp; unparseable input is returned as is.
func formatTime(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02 15:04:05")
}

func successRate(submitted, attempts float64) float64 {
	if attempts == 0 {
		return 0
	}
	return submitted / attempts * 100
}

// getStr and getNum read loosely typed JSON fields, returning zero values
// when absent or of another type.
func getStr(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getNum(m map[string]any, key string) float64 {
	n, _ := m[key].(float64)
	return n
}
