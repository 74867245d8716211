package api

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	envTag = "env"
)

var (
	ErrNotPtr    = errors.New("input must be a pointer")
	ErrNotStruct = errors.New("input must be a struct")
)

// OverrideFromEnv sets struct fields from environment variables named prefix + '_' + the field's env tag (or its upper-cased name)
func OverrideFromEnv(config interface{}, prefix string, environmentVariables []string) error {
	return OverrideFromEnvMap(config, prefix, transformEnvironmentVariablesToMap(environmentVariables))
}

func OverrideFromEnvMap(config interface{}, prefix string, environmentVariables map[string]string) error {
	if !strings.HasSuffix(prefix, "_") {
		prefix = strings.ToUpper(prefix) + "_"
	}

	environmentVariables = filterEnvironmentVariablesByPrefix(environmentVariables, prefix)
	if len(environmentVariables) == 0 {
		return nil
	}

	v := reflect.ValueOf(config)
	if v.Kind() != reflect.Ptr {
		return ErrNotPtr
	}

	e := v.Elem()
	if e.Kind() != reflect.Struct {
		return ErrNotStruct
	}

	t := e.Type()
	for i := 0; i < t.NumField(); i++ {
		ef := e.Field(i)
		tf := t.Field(i)

		if !ef.CanSet() {
			continue
		}

		name := prefix + strings.ToUpper(tf.Name)
		if tag := tf.Tag.Get(envTag); tag != "" {
			name = prefix + strings.ToUpper(tag)
		}

		if val, ok := environmentVariables[name]; ok {
			log.Debug().Msgf("Envvar %v exists, overriding config value", name)
			if err := setField(val, ef); err != nil {
				return fmt.Errorf("%s(%q): %w", tf.Name, val, err)
			}
			continue
		}

		// descend into nested structs
		target := ef
		if target.Kind() == reflect.Ptr {
			if target.Type().Elem().Kind() != reflect.Struct {
				continue
			}
			if len(filterEnvironmentVariablesByPrefix(environmentVariables, name+"_")) == 0 {
				continue
			}
			if target.IsNil() {
				target.Set(reflect.New(target.Type().Elem()))
			}
			target = target.Elem()
		}
		if target.Kind() != reflect.Struct || target.Type() == reflect.TypeOf(time.Time{}) {
			continue
		}
		if err := OverrideFromEnvMap(target.Addr().Interface(), name+"_", environmentVariables); err != nil {
			return err
		}
	}

	return nil
}

func transformEnvironmentVariablesToMap(environmentVariables []string) map[string]string {
	environmentVariablesMap := make(map[string]string, len(environmentVariables))
	for _, ev := range environmentVariables {
		key, value, _ := strings.Cut(ev, "=")
		if key == "" {
			continue
		}
		environmentVariablesMap[key] = value
	}

	return environmentVariablesMap
}

func filterEnvironmentVariablesByPrefix(environmentVariables map[string]string, prefix string) map[string]string {
	filtered := make(map[string]string)
	for key, value := range environmentVariables {
		if strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}

	return filtered
}

func setField(v string, ef reflect.Value) error {
	for ef.Kind() == reflect.Ptr {
		if ef.IsNil() {
			ef.Set(reflect.New(ef.Type().Elem()))
		}
		ef = ef.Elem()
	}

	if v == "" {
		return nil
	}

	switch ef.Kind() {
	case reflect.String:
		ef.SetString(v)
	case reflect.Bool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		ef.SetBool(b)
	case reflect.Int64:
		if ef.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			ef.SetInt(int64(d))
			return nil
		}
		fallthrough
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		i, err := strconv.ParseInt(v, 0, ef.Type().Bits())
		if err != nil {
			return err
		}
		ef.SetInt(i)
	case reflect.Slice:
		if ef.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %v", ef.Type())
		}
		vals := strings.Split(v, ",")
		for i := range vals {
			vals[i] = strings.TrimSpace(vals[i])
		}
		ef.Set(reflect.ValueOf(vals).Convert(ef.Type()))
	default:
		return fmt.Errorf("unsupported field type %v", ef.Type())
	}

	return nil
}
