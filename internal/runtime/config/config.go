package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
)

// Source is the access contract the dependency container builds from. A
// missing or malformed required key is reported as a ConfigurationError.
type Source interface {
	Lookup(key string) (Value, bool)
	Require(key string) (Value, error)
}

// Value is a raw configuration entry with typed accessors.
type Value struct {
	key string
	raw any
}

// NewValue wraps raw as the value of key.
func NewValue(key string, raw any) Value {
	return Value{key: key, raw: raw}
}

// Key returns the configuration key this value was read from.
func (v Value) Key() string { return v.key }

// Raw returns the untyped value.
func (v Value) Raw() any { return v.raw }

func (v Value) malformed(want string) error {
	return errspkg.NewConfigurationError(v.key,
		fmt.Errorf("%w: expected %s, got %T", errspkg.ErrConfigKeyMalformed, want, v.raw))
}

// AsString returns the value as a string. Numbers and booleans are not
// converted.
func (v Value) AsString() (string, error) {
	s, ok := v.raw.(string)
	if !ok {
		return "", v.malformed("string")
	}
	return s, nil
}

// AsInt returns the value as an int. Strings holding a decimal number are
// accepted because environment variables only carry strings.
func (v Value) AsInt() (int, error) {
	switch raw := v.raw.(type) {
	case int:
		return raw, nil
	case int64:
		return int(raw), nil
	case uint16:
		return int(raw), nil
	case float64:
		if raw != float64(int(raw)) {
			return 0, v.malformed("integer")
		}
		return int(raw), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, v.malformed("integer")
		}
		return n, nil
	default:
		return 0, v.malformed("integer")
	}
}

// AsBool returns the value as a bool.
func (v Value) AsBool() (bool, error) {
	switch raw := v.raw.(type) {
	case bool:
		return raw, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return false, v.malformed("boolean")
		}
		return b, nil
	default:
		return false, v.malformed("boolean")
	}
}

// AsDuration returns the value as a time.Duration. Strings use
// time.ParseDuration syntax; integers are read as seconds.
func (v Value) AsDuration() (time.Duration, error) {
	switch raw := v.raw.(type) {
	case time.Duration:
		return raw, nil
	case int:
		return time.Duration(raw) * time.Second, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return 0, v.malformed("duration")
		}
		return d, nil
	default:
		return 0, v.malformed("duration")
	}
}

// Pool is a flat key/value configuration layer.
type Pool map[string]any

// NewPool returns an empty pool.
func NewPool() Pool { return Pool{} }

// Add sets key and returns the pool so calls can be chained.
func (p Pool) Add(key string, value any) Pool {
	p[key] = value
	return p
}

func (p Pool) Lookup(key string) (Value, bool) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return Value{}, false
	}
	return NewValue(key, raw), true
}

func (p Pool) Require(key string) (Value, error) {
	return lookupRequired(p, key)
}

// Layered resolves a key against each layer in order; the first layer
// holding the key wins.
type Layered []Source

func (l Layered) Lookup(key string) (Value, bool) {
	for _, layer := range l {
		if layer == nil {
			continue
		}
		if v, ok := layer.Lookup(key); ok {
			return v, true
		}
	}
	return Value{}, false
}

func (l Layered) Require(key string) (Value, error) {
	return lookupRequired(l, key)
}

func lookupRequired(src Source, key string) (Value, error) {
	v, ok := src.Lookup(key)
	if !ok {
		return Value{}, errspkg.NewConfigurationError(key, errspkg.ErrConfigKeyMissing)
	}
	return v, nil
}

// FromEnv builds a pool from the environment. Each key is looked up as
// prefix + upper-cased key, so "http_port" with prefix "OMSTASHER_" reads
// OMSTASHER_HTTP_PORT.
func FromEnv(prefix string, keys ...string) Pool {
	pool := NewPool()
	for _, key := range keys {
		if value, ok := os.LookupEnv(prefix + strings.ToUpper(key)); ok {
			pool.Add(key, value)
		}
	}
	return pool
}

// Optional resolves key and applies read when present, falling back to def
// when the key is absent. A present but malformed value is an error.
func Optional[T any](src Source, key string, def T, read func(Value) (T, error)) (T, error) {
	v, ok := src.Lookup(key)
	if !ok {
		return def, nil
	}
	return read(v)
}

// Validate checks every builder against src and joins the failures, so the
// command line can report all configuration problems at once.
func Validate(src Source) error {
	var errs []error
	if _, err := BuildHTTPConfig(src); err != nil {
		errs = append(errs, err)
	}
	if _, err := BuildDatabaseConfig(src); err != nil {
		errs = append(errs, err)
	}
	if _, err := BuildEventsConfig(src); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EnvPrefix prefixes every key when read from the environment.
const EnvPrefix = "OMSTASHER_"

// Keys lists every key the builders read.
func Keys() []string {
	return []string{
		KeyHTTPAddress,
		KeyHTTPPort,
		KeyDatabaseDSN,
		KeyDatabaseKeepAlive,
		KeyDatabaseMaxOpenConns,
		KeyEventsCapacity,
		KeyJournalEnabled,
		KeyJournalTopic,
	}
}

// Defaults is the lowest configuration layer.
func Defaults() Pool {
	return NewPool().
		Add(KeyHTTPAddress, "127.0.0.1").
		Add(KeyHTTPPort, 80)
}
