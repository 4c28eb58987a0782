package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port int
	}
	Auth struct {
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenTTL      time.Duration `mapstructure:"token_ttl"`
		AdminUsername string        `mapstructure:"admin_username"`
		AdminPassword string        `mapstructure:"admin_password"`
		AdminEmail    string        `mapstructure:"admin_email"`
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
		Debug  bool
	}
	Log struct {
		Level  string
		Format string
	}
	Alert struct {
		Slack struct {
			Token   string
			Channel string
		}
		Email struct {
			SMTPHost string `mapstructure:"smtp_host"`
			SMTPPort int    `mapstructure:"smtp_port"`
			Username string
			Password string
			From     string
		}
	}
	Scheduler struct {
		SweepCron      string `mapstructure:"sweep_cron"`
		GenerationCron string `mapstructure:"generation_cron"`
		DigestCron     string `mapstructure:"digest_cron"`
		Timezone       string
	}
	Generation struct {
		HorizonMonths int `mapstructure:"horizon_months"`
	}
	Storage struct {
		Root    string
		BaseURL string `mapstructure:"base_url"`
	}
	Digest struct {
		Recipients []string
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("auth.admin_email", "admin@localhost")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/reporttrack.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("alert.email.smtp_port", 587)
	v.SetDefault("scheduler.sweep_cron", "0 0 8 * * *")
	v.SetDefault("scheduler.generation_cron", "0 30 0 * * *")
	v.SetDefault("scheduler.digest_cron", "0 0 7 * * MON")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("generation.horizon_months", 12)
	v.SetDefault("storage.root", "data/files")
	v.SetDefault("storage.base_url", "/files")
}

// Load reads config.yaml from path (or the working directory when empty),
// applies REPORTTRACK_* environment overrides and fills in defaults.
// A missing file is created from the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REPORTTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) || (path != "" && errors.Is(err, os.ErrNotExist)):
			if err := writeDefaults(v, path); err != nil {
				fmt.Printf("Warning: Failed to write default config: %v\n", err)
			}
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func writeDefaults(v *viper.Viper, path string) error {
	if path == "" {
		path = "config.yaml"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return v.SafeWriteConfigAs(path)
}

// Location resolves the scheduler timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil || c.Scheduler.Timezone == "" {
		return time.UTC
	}
	return loc
}
