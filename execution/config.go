package execution

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/exascience/aprt"
)

// Executor kinds accepted in Config.Executor.
const (
	GoroutineExecutor = "goroutine"
	PoolExecutor      = "pool"
)

/*
Config is the serializable form of a Context.

A zero field selects the default: runtime.GOMAXPROCS(0) processors and the
goroutine executor. QueueSize is only used by the pool executor.

Example YAML:

	numberOfProcessors: 8
	executor: pool
	queueSize: 64
	attributes:
	  filePath: /tmp/aprt
*/
type Config struct {
	NumberOfProcessors int                    `yaml:"numberOfProcessors"`
	Executor           string                 `yaml:"executor"`
	QueueSize          int                    `yaml:"queueSize"`
	Attributes         map[string]interface{} `yaml:"attributes"`
}

// ParseConfig decodes a YAML configuration and validates it.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse execution config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads and parses the YAML configuration at path.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read execution config: %w", err)
	}
	return ParseConfig(data)
}

// Validate reports invalid settings with an error wrapping
// aprt.ErrIllegalArgument.
func (cfg Config) Validate() error {
	if cfg.NumberOfProcessors < 0 {
		return fmt.Errorf("%w: numberOfProcessors: %v", aprt.ErrIllegalArgument, cfg.NumberOfProcessors)
	}
	if cfg.QueueSize < 0 {
		return fmt.Errorf("%w: queueSize: %v", aprt.ErrIllegalArgument, cfg.QueueSize)
	}
	switch cfg.Executor {
	case "", GoroutineExecutor, PoolExecutor:
	default:
		return fmt.Errorf("%w: executor: %q", aprt.ErrIllegalArgument, cfg.Executor)
	}
	return nil
}

/*
NewContext creates a Context from cfg. If the configuration selects the
pool executor, the returned release function stops the pool; otherwise it
does nothing. The release function is not nil when err is nil.
*/
func (cfg Config) NewContext() (c *Context, release func(), err error) {
	if err = cfg.Validate(); err != nil {
		return nil, nil, err
	}
	n := cfg.NumberOfProcessors
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	c = New(WithNumberOfProcessors(n))
	release = func() {}
	if cfg.Executor == PoolExecutor {
		pool := NewPool(n, cfg.QueueSize)
		c.SetExecutor(pool)
		release = pool.Close
	}
	for name, value := range cfg.Attributes {
		c.SetAttribute(name, value)
	}
	return c, release, nil
}
