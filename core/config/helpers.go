package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// env wraps a viper instance with typed getters that fall back to defaults.
type env struct {
	v *viper.Viper
}

func (e env) raw(key string) string {
	if e.v == nil {
		return ""
	}
	return strings.TrimSpace(e.v.GetString(key))
}

func (e env) str(key, fallback string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if e.raw(key) == "" {
		return fallback
	}
	return e.v.GetInt(key)
}

func (e env) boolean(key string, fallback bool) bool {
	v := strings.ToLower(e.raw(key))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	if e.raw(key) == "" {
		return fallback
	}
	if d := e.v.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}

func (e env) list(key string) []string {
	v := e.raw(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pairs parses "a=x,b=y" into a map with lowercased keys.
func (e env) pairs(key string) map[string]string {
	out := map[string]string{}
	for _, item := range e.list(key) {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
