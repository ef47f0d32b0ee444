package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/pipeline"
	"github.com/tubescribe/tubescribe/internal/platform"
	"github.com/tubescribe/tubescribe/internal/whisper"
)

// envPrefix namespaces tubescribe environment variables, so the model is
// picked via TUBESCRIBE_MODEL and the server address via
// TUBESCRIBE_SERVER_ADDR.
const envPrefix = "TUBESCRIBE"

// Settings is the resolved configuration. Precedence from low to high:
// built-in defaults, the config file, TUBESCRIBE_* environment variables.
// Command line flags are applied on top by the CLI layer.
type Settings struct {
	DestDir              string        `mapstructure:"dest_dir"`
	Model                string        `mapstructure:"model"`
	ModelDir             string        `mapstructure:"model_dir"`
	Language             string        `mapstructure:"language"`
	Format               string        `mapstructure:"format"`
	Quality              string        `mapstructure:"quality"`
	Transcribe           bool          `mapstructure:"transcribe"`
	WriteTxt             bool          `mapstructure:"write_txt"`
	AutoDownload         bool          `mapstructure:"auto_download"`
	SilenceGate          bool          `mapstructure:"silence_gate"`
	SilenceThresholdDBFS float64       `mapstructure:"silence_threshold_dbfs"`
	Delay                time.Duration `mapstructure:"delay"`

	Server ServerSettings `mapstructure:"server"`
}

// ServerSettings configures the serve command.
type ServerSettings struct {
	Addr    string `mapstructure:"addr"`
	MaxJobs int    `mapstructure:"max_jobs"`
}

// Load reads settings from the given config file, or from config.yaml in
// the platform config directory when configFile is empty. A missing default
// config file is fine; a missing explicit one is an error.
func Load(configFile string) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else if dir, err := platform.ResolveConfigDir(); err == nil {
		v.SetConfigFile(filepath.Join(dir, "config.yaml"))
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("read config %s: %w", filepath.Join(dir, "config.yaml"), err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}

	if settings.DestDir == "" {
		dir, err := platform.DefaultDownloadDir()
		if err != nil {
			return Settings{}, fmt.Errorf("resolve download directory: %w", err)
		}
		settings.DestDir = dir
	}
	if settings.ModelDir == "" {
		dir, err := platform.ResolveModelDir("")
		if err != nil {
			return Settings{}, fmt.Errorf("resolve model directory: %w", err)
		}
		settings.ModelDir = dir
	}

	return settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dest_dir", "")
	v.SetDefault("model", whisper.DefaultModel)
	v.SetDefault("model_dir", "")
	v.SetDefault("language", "")
	v.SetDefault("format", fetch.DefaultFormat)
	v.SetDefault("quality", fetch.DefaultQuality)
	v.SetDefault("transcribe", true)
	v.SetDefault("write_txt", true)
	v.SetDefault("auto_download", true)
	v.SetDefault("silence_gate", true)
	v.SetDefault("silence_threshold_dbfs", float64(pipeline.DefaultSilenceThresholdDBFS))
	v.SetDefault("delay", time.Duration(0))
	v.SetDefault("server.addr", "127.0.0.1:8977")
	v.SetDefault("server.max_jobs", 2)
}
