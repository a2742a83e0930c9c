package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Int is an integer request field that also accepts a numeric string, as
// sent by HTML forms and the POS frontend. An empty string decodes as 0.
type Int int64

func (n *Int) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	if raw == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", raw)
	}
	*n = Int(v)
	return nil
}
