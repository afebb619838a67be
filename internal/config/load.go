package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables read by Load, e.g.
// DBHARNESS_REUSE_DB or DBHARNESS_ENGINE_ADMIN_URL.
const envPrefix = "DBHARNESS"

// Load reads configuration from the given file (optional) and from
// DBHARNESS_* environment variables, with environment variables taking
// precedence. Returns a validated Config or an error describing what failed.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("engine.name", "postgres")
	v.SetDefault("reuse_db", false)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A declared-but-empty alias set means the default alias.
	if len(cfg.Databases) == 0 {
		cfg.Databases = map[string]DatabaseConfig{DefaultAlias: {}}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural validity (validator tags) plus the cross-field
// rules that tags cannot express: every mirror must point at a known,
// non-mirror alias.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for alias, db := range cfg.Databases {
		if db.Mirror == "" {
			continue
		}
		source, ok := cfg.Databases[db.Mirror]
		if !ok {
			return fmt.Errorf("invalid configuration: alias %q mirrors unknown alias %q", alias, db.Mirror)
		}
		if source.Mirror != "" {
			return fmt.Errorf("invalid configuration: alias %q mirrors %q, which is itself a mirror", alias, db.Mirror)
		}
	}
	return nil
}
