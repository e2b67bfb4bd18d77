package plug

import (
	"fmt"
	"time"
)

// Config is the immutable option set handed to every plug operation.
//
// Besides plain options it carries the plug that is authoritative for the
// current request. That slot is only written by the dispatcher (see WithPlug)
// so code further down the pipeline can route identity management back to the
// same implementation without knowing which one it is.
type Config struct {
	opts map[string]any
	plug Plug
}

// NewConfig creates a configuration from the given options. The map is copied.
func NewConfig(opts map[string]any) Config {
	cp := make(map[string]any, len(opts))
	for k, v := range opts {
		cp[k] = v
	}
	return Config{opts: cp}
}

// Plug returns the plug recorded by the dispatcher, or nil
func (c Config) Plug() Plug {
	return c.plug
}

// WithPlug returns a copy of the configuration with the active plug set.
func (c Config) WithPlug(p Plug) Config {
	c.plug = p
	return c
}

// With returns a copy of the configuration with key set to value.
func (c Config) With(key string, value any) Config {
	cp := make(map[string]any, len(c.opts)+1)
	for k, v := range c.opts {
		cp[k] = v
	}
	cp[key] = value
	c.opts = cp
	return c
}

// Get returns the raw option value
func (c Config) Get(key string) (any, bool) {
	v, ok := c.opts[key]
	return v, ok
}

// Len returns the number of options
func (c Config) Len() int {
	return len(c.opts)
}

// String returns a string option or def when unset or empty.
func (c Config) String(key, def string) string {
	if v, ok := c.opts[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns a boolean option or def when unset.
func (c Config) Bool(key string, def bool) bool {
	if v, ok := c.opts[key].(bool); ok {
		return v
	}
	return def
}

// Duration returns a duration option. Strings are parsed with time.ParseDuration.
func (c Config) Duration(key string, def time.Duration) (time.Duration, error) {
	switch v := c.opts[key].(type) {
	case nil:
		return def, nil
	case time.Duration:
		return v, nil
	case string:
		if v == "" {
			return def, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %q: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("option %q has unsupported type %T", key, v)
	}
}

// StringSlice returns a string slice option or nil.
func (c Config) StringSlice(key string) []string {
	switch v := c.opts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
