package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MESHGEN_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MESHGEN_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "cache.similarity_threshold", typ: kFloat, env: "MESHGEN_SIMILARITY_THRESHOLD",
		apply: func(cfg *Config, v any) { cfg.Cache.SimilarityThreshold = v.(float64) },
	},
	{
		key: "cache.quality_floor", typ: kFloat, env: "MESHGEN_QUALITY_FLOOR",
		apply: func(cfg *Config, v any) { cfg.Cache.QualityFloor = v.(float64) },
	},
	{
		key: "cache.optimistic_score", typ: kFloat, env: "MESHGEN_OPTIMISTIC_SCORE",
		apply: func(cfg *Config, v any) { cfg.Cache.OptimisticScore = v.(float64) },
	},
	{
		key: "provider.default", typ: kString, env: "MESHGEN_DEFAULT_PROVIDER",
		apply: func(cfg *Config, v any) { cfg.Provider.Default = v.(string) },
	},
	{
		key: "log.level", typ: kString, env: "MESHGEN_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, spec := range specs {
		switch spec.typ {
		case kString:
			v, ok, err := b.GetString(spec.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", spec.key, err)
			}
			if ok {
				spec.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(spec.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", spec.key, err)
			}
			if ok {
				spec.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetFloat(spec.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", spec.key, err)
			}
			if ok {
				spec.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, spec := range specs {
		raw, ok := os.LookupEnv(spec.env)
		if !ok || raw == "" {
			continue
		}
		switch spec.typ {
		case kString:
			spec.apply(cfg, raw)
		case kInt:
			if v, err := strconv.Atoi(raw); err == nil {
				spec.apply(cfg, v)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] invalid integer in %s: %q\n", spec.env, raw)
			}
		case kFloat:
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				spec.apply(cfg, v)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] invalid float in %s: %q\n", spec.env, raw)
			}
		}
	}
}
