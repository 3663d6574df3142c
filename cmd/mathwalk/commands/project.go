package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/livetemplate/mathwalk/internal/config"
	"github.com/livetemplate/mathwalk/internal/logging"
	"github.com/livetemplate/mathwalk/internal/source"
)

// project is the configuration and lesson location a command works on.
type project struct {
	cfg     *config.Config
	lessons string // Absolute lesson file or directory
	logger  *logging.Logger
}

// loadProject resolves the lessons from the optional positional argument,
// falling back to the config's lessons entry and then the current directory.
// Without --config, mathwalk.yaml is looked up next to the lessons.
func loadProject(cmd *cobra.Command, flags *globalFlags, args []string) (*project, error) {
	path := ""
	if len(args) > 0 {
		path = args[0]
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("path does not exist: %s", path)
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
	} else {
		cfg, err = config.LoadFromDir(configDir(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if path == "" {
		path = cfg.Lessons
	}
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Writer: cmd.ErrOrStderr(),
		Debug:  flags.debug || cfg.Server.Debug,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}

	return &project{cfg: cfg, lessons: abs, logger: logger}, nil
}

// configDir is the directory searched for mathwalk.yaml.
func configDir(path string) string {
	if path == "" {
		return "."
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return filepath.Dir(path)
	}
	return path
}

// resolver returns a script resolver for lessons rooted at root.
func (p *project) resolver(root string) *source.Resolver {
	return source.NewResolver(root, source.Options{
		Timeout:  p.cfg.Source.GetTimeout(),
		CacheTTL: p.cfg.Source.GetCacheTTL(),
		Retry:    source.DefaultRetryConfig(),
		Logger:   p.logger.Logger,
	})
}

func (p *project) Close() error {
	return p.logger.Close()
}
