package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

// loadFromEnv overlays environment variables onto cfg. Fields opt in with
// an `env` tag naming the variable; nested sections are walked so adapter
// configs can add tagged fields without touching this file.
func loadFromEnv(cfg *Config) error {
	return overlayEnv(reflect.ValueOf(cfg).Elem())
}

func overlayEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Struct {
			if err := overlayEnv(f); err != nil {
				return err
			}
			continue
		}
		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		if err := assignEnv(f, raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// assignEnv parses raw into a tagged field. Only the kinds the Config
// tree actually tags are handled; tagging a new kind without extending
// this switch surfaces as a load error, not a silent skip.
func assignEnv(f reflect.Value, raw string) error {
	if !f.CanSet() {
		return fmt.Errorf("unexported field cannot take an env value")
	}
	if f.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", raw, err)
		}
		f.SetInt(int64(d))
		return nil
	}
	switch f.Kind() {
	case reflect.String:
		f.SetString(raw)
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("bad integer %q: %w", raw, err)
		}
		f.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("bad boolean %q: %w", raw, err)
		}
		f.SetBool(b)
	default:
		return fmt.Errorf("env tag on unsupported kind %s", f.Kind())
	}
	return nil
}
