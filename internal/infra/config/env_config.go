// Package config fills tagged structs from environment variables.
//
// A field tagged `env:"TOKEN_TTL" default:"30m"` under namespace
// "TOKENGATE_AUTHGW" is looked up as TOKENGATE_AUTHGW_TOKEN_TTL, then
// TOKENGATE_TOKEN_TTL, before the default applies. Nested structs extend
// the name with their `envPrefix` tag.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidConfig is returned when the provided config is not a pointer to a struct
	// that embeds EnvConfig.
	ErrInvalidConfig = errors.New("config must be a pointer to a struct embedding EnvConfig")

	// ErrVarNotSet is returned when a required environment variable is not set and has no default.
	ErrVarNotSet = errors.New("env var not set")

	// ErrUnsupportedVarType is returned when trying to parse an environment variable
	// into an unsupported Go type.
	ErrUnsupportedVarType = errors.New("unsupported env var type")
)

// EnvConfig marks a struct as parseable and remembers the namespace it was parsed with.
type EnvConfig struct {
	namespace string
}

// Namespace returns the namespace passed to Parse.
func (c *EnvConfig) Namespace() string {
	return c.namespace
}

//nolint:gochecknoglobals
var (
	envConfigType = reflect.TypeOf(EnvConfig{})
	durationType  = reflect.TypeOf(time.Duration(0))
)

// Parse loads configuration values from environment variables into cfg,
// which must be a pointer to a struct embedding EnvConfig.
// Supported field types are string, signed and unsigned integers, bool,
// time.Duration and comma-separated []string.
// All fields are visited; the returned error joins every failure.
func Parse(_ context.Context, cfg any, namespace string) error {
	root := reflect.ValueOf(cfg)
	if root.Kind() != reflect.Pointer || root.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("parse %T: %w", cfg, ErrInvalidConfig)
	}

	root = root.Elem()

	base, ok := embeddedEnvConfig(root)
	if !ok {
		return fmt.Errorf("parse %T: %w", cfg, ErrInvalidConfig)
	}

	base.namespace = namespace

	return parseStruct(lookupChain(namespace), "", root)
}

func embeddedEnvConfig(v reflect.Value) (*EnvConfig, bool) {
	for i := range v.NumField() {
		field := v.Type().Field(i)
		if field.Anonymous && field.Type == envConfigType {
			//nolint:forcetypeassert
			return v.Field(i).Addr().Interface().(*EnvConfig), true
		}
	}

	return nil, false
}

// lookupChain lists the variable name prefixes to try, most specific first:
// "A_B_C" yields "A_B_C_", "A_B_", "A_".
func lookupChain(namespace string) []string {
	if namespace == "" {
		return []string{""}
	}

	parts := strings.Split(namespace, "_")
	chain := make([]string, 0, len(parts))

	for i := len(parts); i > 0; i-- {
		chain = append(chain, strings.Join(parts[:i], "_")+"_")
	}

	return chain
}

func parseStruct(chain []string, prefix string, v reflect.Value) error {
	var errs []error

	for i := range v.NumField() {
		field := v.Type().Field(i)

		switch {
		case field.Type == envConfigType, !field.IsExported():
			continue
		case field.Type.Kind() == reflect.Struct:
			if err := parseStruct(chain, prefix+field.Tag.Get("envPrefix"), v.Field(i)); err != nil {
				errs = append(errs, err)
			}

			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		raw, found := lookup(chain, prefix+name)
		if !found {
			fallback, hasDefault := field.Tag.Lookup("default")
			if !hasDefault {
				errs = append(errs, fmt.Errorf("%w: %s%s", ErrVarNotSet, chain[0], prefix+name))

				continue
			}

			raw = fallback
		}

		if err := decode(v.Field(i), raw); err != nil {
			errs = append(errs, fmt.Errorf("field %s (%s): %w", field.Name, prefix+name, err))
		}
	}

	return errors.Join(errs...)
}

func lookup(chain []string, name string) (string, bool) {
	for _, ns := range chain {
		if value, ok := os.LookupEnv(ns + name); ok {
			return value, true
		}
	}

	return "", false
}

//nolint:cyclop
func decode(dst reflect.Value, raw string) error {
	typ := dst.Type()

	// time.Duration has int64 kind, so it is matched by type first.
	if typ == durationType {
		duration, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration: %w", err)
		}

		dst.SetInt(int64(duration))

		return nil
	}

	//nolint:exhaustive
	switch typ.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Bool:
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse bool: %w", err)
		}

		dst.SetBool(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		value, err := strconv.ParseInt(raw, 10, typ.Bits())
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}

		dst.SetInt(value)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		value, err := strconv.ParseUint(raw, 10, typ.Bits())
		if err != nil {
			return fmt.Errorf("parse uint: %w", err)
		}

		dst.SetUint(value)
	case reflect.Slice:
		if typ.Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %v", ErrUnsupportedVarType, typ)
		}

		dst.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedVarType, typ)
	}

	return nil
}

// splitList splits a comma-separated value, trimming blanks and dropping empty items.
func splitList(value string) []string {
	items := make([]string, 0)

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
