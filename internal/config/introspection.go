package config

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
)

// GetKnownKeys returns all valid configuration keys based on the schema.
// Map entries appear as "*".
func GetKnownKeys() map[string]bool {
	known := make(map[string]bool)
	addKnownKeys("", reflect.TypeOf(ConfigSchema{}), known)
	return known
}

func addKnownKeys(prefix string, t reflect.Type, known map[string]bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			tag := field.Tag.Get("mapstructure")
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if prefix != "" {
				key = prefix + "." + key
			}
			known[key] = true
			addKnownKeys(key, field.Type, known)
		}
	case reflect.Map:
		wildcard := prefix + ".*"
		known[wildcard] = true
		addKnownKeys(wildcard, t.Elem(), known)
	}
}

// matchesWildcard checks if a key matches a wildcard pattern
func matchesWildcard(pattern, key string) bool {
	patternParts := strings.Split(strings.ToLower(pattern), ".")
	keyParts := strings.Split(strings.ToLower(key), ".")

	if len(patternParts) != len(keyParts) {
		return false
	}
	for i := range patternParts {
		if patternParts[i] != "*" && patternParts[i] != keyParts[i] {
			return false
		}
	}
	return true
}

// IsKnownKey checks if a key is known, including wildcard matches
func IsKnownKey(known map[string]bool, key string) bool {
	if known[strings.ToLower(key)] {
		return true
	}
	for pattern := range known {
		if strings.Contains(pattern, "*") && matchesWildcard(pattern, key) {
			return true
		}
	}
	return false
}

// PrintConfig writes the configuration as YAML. Secrets are redacted. When
// prefix is set only the subtree under that dotted path is printed.
func (s *ConfigSchema) PrintConfig(w io.Writer, includeSources bool, prefix string) error {
	v := reflect.ValueOf(*s)
	path := ""
	key := ""
	if prefix != "" {
		var ok bool
		v, ok = lookupPath(v, strings.Split(prefix, "."))
		if !ok {
			return fmt.Errorf("no configuration under %q", prefix)
		}
		path = strings.ToLower(prefix)
		key = prefix[strings.LastIndex(prefix, ".")+1:]
	}
	s.printValue(w, v, path, key, includeSources, 0)
	return nil
}

func lookupPath(v reflect.Value, parts []string) (reflect.Value, bool) {
	for _, part := range parts {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		switch v.Kind() {
		case reflect.Struct:
			found := false
			for i := 0; i < v.NumField(); i++ {
				if strings.EqualFold(v.Type().Field(i).Tag.Get("mapstructure"), part) {
					v = v.Field(i)
					found = true
					break
				}
			}
			if !found {
				return reflect.Value{}, false
			}
		case reflect.Map:
			next := v.MapIndex(reflect.ValueOf(strings.ToLower(part)))
			if !next.IsValid() {
				return reflect.Value{}, false
			}
			v = next
		default:
			return reflect.Value{}, false
		}
	}
	return v, true
}

func (s *ConfigSchema) printValue(w io.Writer, v reflect.Value, path, key string, includeSources bool, indent int) {
	pad := strings.Repeat("  ", indent)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		if key != "" {
			fmt.Fprintf(w, "%s%s:\n", pad, key)
			indent++
		}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			tag := field.Tag.Get("mapstructure")
			if !field.IsExported() || tag == "" || v.Field(i).IsZero() {
				continue
			}
			s.printValue(w, v.Field(i), joinPath(path, tag), tag, includeSources, indent)
		}

	case reflect.Map:
		if key != "" {
			fmt.Fprintf(w, "%s%s:\n", pad, key)
			indent++
		}
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			s.printValue(w, v.MapIndex(k), joinPath(path, k.String()), k.String(), includeSources, indent)
		}

	default:
		if isSecretKey(key) {
			fmt.Fprintf(w, "%s%s: [REDACTED]", pad, key)
		} else if v.Kind() == reflect.String && strings.Contains(v.String(), "\n") {
			fmt.Fprintf(w, "%s%s: |\n%s  %s", pad, key, pad, strings.ReplaceAll(strings.TrimRight(v.String(), "\n"), "\n", "\n"+pad+"  "))
		} else {
			fmt.Fprintf(w, "%s%s: %v", pad, key, v.Interface())
		}
		s.printSourceInfo(w, path, includeSources)
		fmt.Fprintln(w)
	}
}

func (s *ConfigSchema) printSourceInfo(w io.Writer, path string, includeSources bool) {
	if !includeSources {
		return
	}
	if sources, ok := s.sources[strings.ToLower(path)]; ok && len(sources) > 0 {
		fmt.Fprintf(w, " # (%s)", sources[len(sources)-1].source)
		return
	}
	fmt.Fprint(w, " # (default)")
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "key") ||
		strings.Contains(k, "token") ||
		strings.Contains(k, "secret") ||
		strings.Contains(k, "password")
}
