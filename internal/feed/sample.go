package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

var sampleKeys = []string{"requests", "value", "current"}

// ParseSample reads a request-rate value from a feed message. The message is
// either a bare number or a JSON object carrying the number under one of
// "requests", "value" or "current". Negative values are rejected.
func ParseSample(msg string) (float64, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return 0, errors.New("empty message")
	}

	v, err := cast.ToFloat64E(msg)
	if err != nil {
		v, err = parseObject(msg)
		if err != nil {
			return 0, err
		}
	}

	if v < 0 {
		return 0, fmt.Errorf("negative sample %v", v)
	}
	return v, nil
}

func parseObject(msg string) (float64, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(msg), &obj); err != nil {
		return 0, fmt.Errorf("unrecognised message %q", msg)
	}

	for _, key := range sampleKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		return cast.ToFloat64E(raw)
	}

	return 0, fmt.Errorf("message has none of %v", sampleKeys)
}
