package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const DefaultEnvPrefix = "MARKETSYNC_"

// EnvConfigLoader reads MARKETSYNC_<SECTION>__<KEY> variables into the raw
// config map. Values are converted to the type of the matching default so the
// decoder never sees numeric strings.
type EnvConfigLoader struct {
	Prefix  string
	Environ func() []string
}

func NewEnvConfigLoader() *EnvConfigLoader {
	return &EnvConfigLoader{Prefix: DefaultEnvPrefix, Environ: os.Environ}
}

func (l *EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := DefaultEnvPrefix
	environ := os.Environ
	if l != nil {
		if strings.TrimSpace(l.Prefix) != "" {
			prefix = l.Prefix
		}
		if l.Environ != nil {
			environ = l.Environ
		}
	}

	template := configToLayerMap(DefaultConfig(), true)
	out := map[string]any{}
	for _, pair := range environ() {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, prefix)), "__")
		switch len(path) {
		case 1:
			sample, known := template[path[0]]
			if !known {
				continue
			}
			coerced, err := coerceEnvValue(value, sample)
			if err != nil {
				return nil, fmt.Errorf("core: env %s: %w", name, err)
			}
			out[path[0]] = coerced
		case 2:
			section, _ := template[path[0]].(map[string]any)
			sample, known := section[path[1]]
			if !known {
				continue
			}
			coerced, err := coerceEnvValue(value, sample)
			if err != nil {
				return nil, fmt.Errorf("core: env %s: %w", name, err)
			}
			nested, _ := out[path[0]].(map[string]any)
			if nested == nil {
				nested = map[string]any{}
				out[path[0]] = nested
			}
			nested[path[1]] = coerced
		}
	}
	return out, nil
}

func coerceEnvValue(raw string, sample any) (any, error) {
	raw = strings.TrimSpace(raw)
	switch sample.(type) {
	case int64:
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return parsed, nil
	case bool:
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", raw)
		}
		return parsed, nil
	default:
		return raw, nil
	}
}
