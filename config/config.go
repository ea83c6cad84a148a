package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres  PostgresConfig
	Scheduler SchedulerConfig
	Enrich    EnrichConfig
	DBPath    string
	LogPath   string
	LogLevel  string
	Sites     map[string]*SiteConfig
}

type PostgresConfig struct {
	URL string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type EnrichConfig struct {
	URL       string
	Model     string
	BatchSize int
}

// SiteConfig describes one target site's seed URLs and crawl-etiquette
// policy. The TTL, concurrency and delay values are policy, not protocol:
// they live here so operators can tune them without a rebuild.
type SiteConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	BaseURL  string   `yaml:"base_url"`
	SeedURLs []string `yaml:"seed_urls"`

	TTLDays             int `yaml:"ttl_days"`
	Concurrency         int `yaml:"concurrency"`
	DelayMS             int `yaml:"delay_ms"`
	RetryAttempts       int `yaml:"retry_attempts"`
	NavTimeoutMS        int `yaml:"nav_timeout_ms"`
	ExpectedPages       int `yaml:"expected_pages"`
	MaxConsecutiveSkips int `yaml:"max_consecutive_skips"`

	AllowedStatuses []int  `yaml:"allowed_statuses"`
	UserAgent       string `yaml:"user_agent"`
	AcceptLanguage  string `yaml:"accept_language"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Postgres: PostgresConfig{
			URL: postgresURL(),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("CRAWL_CRON"),
		},
		Enrich: EnrichConfig{
			URL:       getEnv("ENRICH_URL", "http://localhost:11434/v1/chat/completions"),
			Model:     getEnv("ENRICH_MODEL", "llama3.2"),
			BatchSize: getEnvInt("ENRICH_BATCH", 50),
		},
		DBPath:   getEnv("DB_PATH", "crawler.db"),
		LogPath:  getEnv("LOG_PATH", "daemon.log"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Sites:    make(map[string]*SiteConfig),
	}

	if interval := os.Getenv("CRAWL_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// postgresURL prefers DATABASE_URL but assembles one from the PG* variables
// the original deployment used.
func postgresURL() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	host := getEnv("PGHOST", "localhost")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := getEnv("PGDATABASE", "imoveis")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, db)
}

func (c *Config) loadSiteConfigs() error {
	configDir := "config/sites"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		site.applyDefaults()

		c.Sites[site.ID] = &site
	}

	return nil
}

func (s *SiteConfig) applyDefaults() {
	if s.TTLDays == 0 {
		s.TTLDays = 7
	}
	if s.Concurrency == 0 {
		s.Concurrency = 3
	}
	if s.DelayMS == 0 {
		s.DelayMS = 2500
	}
	if s.RetryAttempts == 0 {
		s.RetryAttempts = 3
	}
	if s.NavTimeoutMS == 0 {
		s.NavTimeoutMS = 60000
	}
	if s.ExpectedPages == 0 {
		s.ExpectedPages = 450
	}
	if s.MaxConsecutiveSkips == 0 {
		s.MaxConsecutiveSkips = 3
	}
	if len(s.AllowedStatuses) == 0 {
		s.AllowedStatuses = []int{403, 404}
	}
	if s.UserAgent == "" {
		s.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if s.AcceptLanguage == "" {
		s.AcceptLanguage = "pt-PT,pt;q=0.8,en-US;q=0.5,en;q=0.3"
	}
}

// TTL returns the staleness window as a duration.
func (s *SiteConfig) TTL() time.Duration {
	return time.Duration(s.TTLDays) * 24 * time.Hour
}

func (s *SiteConfig) Delay() time.Duration {
	return time.Duration(s.DelayMS) * time.Millisecond
}

func (s *SiteConfig) NavTimeout() time.Duration {
	return time.Duration(s.NavTimeoutMS) * time.Millisecond
}

func (s *SiteConfig) StatusAllowed(code int) bool {
	for _, allowed := range s.AllowedStatuses {
		if code == allowed {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
