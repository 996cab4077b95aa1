package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CatalogConfig points at the entity catalog seed file.
type CatalogConfig struct {
	SeedPath string `yaml:"seed_path" mapstructure:"seed_path"`
}

// IngestConfig configures workbook ingestion, including the optional FTP
// inbox entities upload to.
type IngestConfig struct {
	FTPURL             string  `yaml:"ftp_url" mapstructure:"ftp_url"`
	FTPUser            string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword        string  `yaml:"ftp_password" mapstructure:"ftp_password"`
	FTPTimeoutSecs     int     `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	DownloadsPerSecond float64 `yaml:"downloads_per_second" mapstructure:"downloads_per_second"`
	DownloadDir        string  `yaml:"download_dir" mapstructure:"download_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequireUser    bool     `yaml:"require_user" mapstructure:"require_user"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "scil.db")
	v.SetDefault("catalog.seed_path", "catalogo.yaml")
	// AutomaticEnv only binds keys viper knows about; the FTP credentials
	// need explicit defaults so SCIL_INGEST_FTP_* env vars take effect.
	v.SetDefault("ingest.ftp_url", "")
	v.SetDefault("ingest.ftp_user", "")
	v.SetDefault("ingest.ftp_password", "")
	v.SetDefault("ingest.ftp_timeout_secs", 30)
	v.SetDefault("ingest.downloads_per_second", 1)
	v.SetDefault("ingest.download_dir", "/tmp/scil-inbox")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given mode needs. Modes map to commands:
// "serve" needs a listen port, "ingest-ftp" needs inbox credentials, plain
// "store" modes only need a database target.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "store":
		requireStore()
	case "serve":
		requireStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	case "ingest-ftp":
		requireStore()
		if c.Ingest.FTPURL == "" {
			problems = append(problems, "ingest.ftp_url is required")
		}
		if c.Ingest.DownloadsPerSecond < 0 {
			problems = append(problems, "ingest.downloads_per_second must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
