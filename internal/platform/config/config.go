// Package config loads the environment variables recognized by the core
// (§6 of the specification) into typed structs using the struct-tag idiom
// (env:"…", default:"…") used throughout the surrounding module ecosystem,
// with an optional YAML overlay file feeding defaults beneath it.
//
// The upstream ecosystem resolves this with a Feeder abstraction
// (env/yaml/toml feeders chained by precedence); the concrete EnvFeeder
// implementation was not present in the retrieved reference set, only its
// callers and tests were, so this package hand-rolls the same struct-tag
// contract directly over os.LookupEnv rather than importing it. The YAML
// feeder stage, by contrast, is a real third-party dependency
// (gopkg.in/yaml.v3): LoadFromFile applies it first so a deployment can
// check in a base config, then LoadFromEnv overlays environment variables
// on top with the highest precedence.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile populates target from a YAML file at path. A missing file
// is not an error: callers typically follow this with LoadFromEnv, so an
// absent overlay just means every field keeps its struct-tag default.
func LoadFromFile(path string, target interface{}) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv populates target (a pointer to a struct) from environment
// variables named by each field's `env` tag, applying `default` when the
// variable is unset and the field still holds its zero value. Supported field kinds: string, bool, int, int64 and
// time.Duration.
func LoadFromEnv(target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: LoadFromEnv requires a pointer to struct, got %T", target)
	}
	return feedStruct(v.Elem())
}

func feedStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := feedStruct(fv); err != nil {
				return err
			}
			continue
		}

		envKey, ok := field.Tag.Lookup("env")
		if !ok || envKey == "" {
			continue
		}

		raw, present := os.LookupEnv(envKey)
		if !present {
			// No environment override: leave a value already loaded from a
			// YAML overlay in place rather than clobbering it with the
			// struct-tag default, which only applies when nothing set the
			// field yet.
			if !fv.IsZero() {
				continue
			}
			raw, present = field.Tag.Lookup("default")
			if !present {
				continue
			}
		}
		if err := setField(fv, raw); err != nil {
			return fmt.Errorf("config: field %s (env %s): %w", field.Name, envKey, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, raw string) error {
	switch {
	case fv.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	case fv.Kind() == reflect.String:
		fv.SetString(raw)
		return nil
	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
		return nil
	case fv.Kind() == reflect.Int || fv.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
		return nil
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
}
