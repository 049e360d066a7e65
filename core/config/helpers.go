package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// parser collects the first conversion error so fromViper can stay flat.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) bytes(key string) int64 {
	n, err := ParseBytes(p.v.GetString(key))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", strings.ToUpper(key), err)
	}
	return n
}

func (p *parser) duration(key string) time.Duration {
	d, err := ParseDuration(p.v.GetString(key))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", strings.ToUpper(key), err)
	}
	return d
}

// ParseBytes accepts plain byte counts and human sizes like "512MB" or "50MiB".
func ParseBytes(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// ParseDuration accepts Go durations plus a "d" suffix for days. A bare
// number is read as seconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
