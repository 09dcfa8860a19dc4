package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config настройки процесса. Порты протокола фиксированы и сюда не входят.
type Config struct {
	Env  string `yaml:"env" env:"ENV" env-default:"local"`
	Name string `yaml:"name" env:"NAME" env-required:"true"`
	// Avatar путь к файлу картинки, которая прикладывается к сообщениям
	Avatar string `yaml:"avatar" env:"AVATAR"`
	// Relay включает роль ретранслятора файлов
	Relay bool `yaml:"relay" env:"RELAY" env-default:"false"`

	Discovery Discovery `yaml:"discovery" env-prefix:"DISCOVERY_"`
	Transport Transport `yaml:"transport" env-prefix:"TRANSPORT_"`
	Inbox     Inbox     `yaml:"inbox" env-prefix:"INBOX_"`
	Storage   Storage   `yaml:"storage" env-prefix:"STORAGE_"`
	Outbox    Outbox    `yaml:"outbox" env-prefix:"OUTBOX_"`
	Metrics   Metrics   `yaml:"metrics" env-prefix:"METRICS_"`
}

type Discovery struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL" env-default:"5s"`
	MDNS     bool          `yaml:"mdns" env:"MDNS" env-default:"false"`
}

type Transport struct {
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT" env-default:"5s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"30s"`
}

type Inbox struct {
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS" env-default:"100"`
	ReadBuffer     int `yaml:"read_buffer" env:"READ_BUFFER" env-default:"65536"`
}

type Storage struct {
	// HistoryPath bbolt-файл журнала, пусто - журнал выключен
	HistoryPath string `yaml:"history_path" env:"HISTORY_PATH"`
	DownloadDir string `yaml:"download_dir" env:"DOWNLOAD_DIR"`
}

type Outbox struct {
	Path     string        `yaml:"path" env:"PATH"`
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE" env-default:"500ms"`
}

type Metrics struct {
	// Address for the /metrics endpoint, e.g. ":9100". Empty disables it.
	Address string `yaml:"address" env:"ADDRESS"`
}

// Load читает конфигурацию. Priority: path argument > CONFIG_PATH > env only.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from env: %w", err)
		}
		return &cfg, nil
	}

	// check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
