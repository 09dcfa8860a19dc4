package cliplugins

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/pflag"

	"lanchat/internal/config"
	"lanchat/internal/util/logger"
)

const flagConfig = "config"

// Runtime лениво загружает конфигурацию и логгер для всех команд.
// Логи идут в stderr, stdout остается для вывода команд.
type Runtime struct {
	configPath string
	logOut     io.Writer

	once sync.Once
	cfg  *config.Config
	log  *slog.Logger
	err  error
}

func NewRuntime() *Runtime {
	return &Runtime{logOut: os.Stderr}
}

// BindFlags adds --config to fs, normally the root persistent flags.
func (r *Runtime) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&r.configPath, flagConfig, "c", "",
		"path to the YAML config (CONFIG_PATH or env vars when empty)")
}

func (r *Runtime) Load() (*config.Config, *slog.Logger, error) {
	r.once.Do(func() {
		cfg, err := config.Load(r.configPath)
		if err != nil {
			r.err = fmt.Errorf("load config: %w", err)
			return
		}
		r.cfg = cfg
		r.log = logger.Setup(cfg.Env, r.logOut)
	})
	return r.cfg, r.log, r.err
}
