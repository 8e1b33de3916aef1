// Package config defines the process-wide Config used by every other
// component, and the environment-variable binding used to populate it.
package config

import (
	"errors"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// GetenvOrDefault returns os.Getenv(key), or defaultValue if unset/blank.
func GetenvOrDefault(key, defaultValue string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return defaultValue
	}

	return v
}

// GetenvBoolOrDefault parses os.Getenv(key) as a bool, or returns
// defaultValue if unset or unparseable.
func GetenvBoolOrDefault(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}

	return v
}

// GetenvIntOrDefault parses os.Getenv(key) as an int64, or returns
// defaultValue if unset or unparseable.
func GetenvIntOrDefault(key string, defaultValue int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}

	return v
}

// SetFromEnvVars populates the fields of s (a pointer to struct) tagged
// `env:"NAME"` from the process environment. Supported field kinds: string,
// bool, and the signed integer family.
func SetFromEnvVars(s any) error {
	v := reflect.ValueOf(s)

	t := v.Type()
	if t.Kind() != reflect.Ptr {
		return errors.New("s must be a pointer")
	}

	e := t.Elem()
	for i := 0; i < e.NumField(); i++ {
		f := e.Field(i)

		tag, ok := f.Tag.Lookup("env")
		if !ok {
			continue
		}

		values := strings.Split(tag, ",")
		if len(values) == 0 {
			continue
		}

		fv := v.Elem().FieldByName(f.Name)
		if !fv.CanSet() {
			continue
		}

		switch fv.Kind() {
		case reflect.Bool:
			fv.SetBool(GetenvBoolOrDefault(values[0], fv.Bool()))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(GetenvIntOrDefault(values[0], fv.Int()))
		default:
			fv.SetString(GetenvOrDefault(values[0], fv.String()))
		}
	}

	return nil
}
