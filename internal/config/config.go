package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures the target site, browser capture behavior, and table locations.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Capture CaptureConfig `yaml:"capture"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type SiteConfig struct {
	Root string `yaml:"root"`
	// Lookup path under Root; "{id}" is replaced by the post id.
	StatusPath string `yaml:"statusPath"`
}

type CaptureConfig struct {
	// Substring of the background request that carries the post detail
	Endpoint string `yaml:"endpoint"`
	// Path of the post result inside that response body
	ResultPath string `yaml:"resultPath"`
	// Marker of rendered post content
	Selector        string        `yaml:"selector"`
	ContentWait     time.Duration `yaml:"contentWait"`
	NavigateTimeout time.Duration `yaml:"navigateTimeout"`
	Linger          time.Duration `yaml:"linger"`
	Headless        bool          `yaml:"headless"`
	// Needed when Chrome runs as root inside a container
	NoSandbox bool `yaml:"noSandbox"`
	ViewportW int  `yaml:"viewportWidth"`
	ViewportH int  `yaml:"viewportHeight"`
	// If empty, read from env XHARVEST_CHROME_PATH; then chromedp's lookup
	ChromePath string `yaml:"chromePath"`
	UserAgent  string `yaml:"userAgent"`
	// Minimum spacing between browser sessions; 0 disables pacing
	MinInterval time.Duration `yaml:"minInterval"`
}

type InputConfig struct {
	Path     string `yaml:"path"`
	IDColumn string `yaml:"idColumn"`
}

type OutputConfig struct {
	Records      string `yaml:"records"`
	Failures     string `yaml:"failures"`
	RetryRecords string `yaml:"retryRecords"`
}

type StorageConfig struct {
	LedgerPath string `yaml:"ledgerPath"` // empty disables the ledger
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Site: SiteConfig{Root: "https://x.com", StatusPath: "users/status/{id}"},
		Capture: CaptureConfig{
			Endpoint:        "TweetResultByRestId",
			ResultPath:      "data.tweetResult.result",
			Selector:        "[data-testid='tweet']",
			ContentWait:     1500 * time.Millisecond,
			NavigateTimeout: 30 * time.Second,
			Linger:          1500 * time.Millisecond,
			Headless:        true,
			ViewportW:       1920,
			ViewportH:       1080,
		},
		Input:   InputConfig{Path: "input.csv", IDColumn: "status_id"},
		Output:  OutputConfig{Records: "tweet_data.csv", Failures: "retry.csv", RetryRecords: "tweet_data1.csv"},
		Storage: StorageConfig{LedgerPath: "./xharvest.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ResolveEnv fills in config fields from environment variables.
func (c *Config) ResolveEnv() {
	if c.Capture.ChromePath == "" {
		c.Capture.ChromePath = os.Getenv("XHARVEST_CHROME_PATH")
	}
	if v := os.Getenv("XHARVEST_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Capture.Headless = b
		}
	}
	if v := os.Getenv("XHARVEST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("XHARVEST_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Validate reports settings the pipeline cannot run without.
func (c Config) Validate() error {
	switch {
	case c.Site.Root == "":
		return errors.New("site.root is empty")
	case c.Capture.Endpoint == "":
		return errors.New("capture.endpoint is empty")
	case c.Capture.ResultPath == "":
		return errors.New("capture.resultPath is empty")
	case c.Capture.ContentWait <= 0:
		return errors.New("capture.contentWait must be positive")
	case c.Input.IDColumn == "":
		return errors.New("input.idColumn is empty")
	case c.Output.Records == "" || c.Output.Failures == "" || c.Output.RetryRecords == "":
		return errors.New("output tables must all be set")
	}
	return nil
}

// Load reads YAML config from path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
