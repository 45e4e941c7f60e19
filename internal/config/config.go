package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type options struct {
	aliases  map[string][]string
	envFiles []string
}

type Option func(o *options)

// WithEnvAlias binds extra environment variables to a config key, e.g. OPENAI_API_KEY to grader.apikey.
func WithEnvAlias(key string, envs ...string) Option {
	return func(o *options) {
		o.aliases[key] = append(o.aliases[key], envs...)
	}
}

// WithEnvFiles loads .env files before reading the environment. Missing files are ignored.
func WithEnvFiles(files ...string) Option {
	return func(o *options) {
		o.envFiles = append(o.envFiles, files...)
	}
}

// Load config from file into the config struct, config must be a pointer to the config struct.
// Values already set in config act as defaults; the environment overrides the file.
func Load(file string, config any, opts ...Option) error {
	o := options{aliases: make(map[string][]string)}
	for _, opt := range opts {
		opt(&o)
	}

	for _, f := range o.envFiles {
		// Variables already present in the environment win over the file.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, envs := range o.aliases {
		if err := v.BindEnv(append([]string{key, envName(key)}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %v", key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
