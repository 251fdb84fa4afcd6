package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

type Config struct {
	ISSSharesURL          string        `envconfig:"ISS_SHARES_URL" default:"https://iss.moex.com/iss/history/engines/stock/markets/shares/boards/TQBR/securities"`
	ISSCorporateBondsURL  string        `envconfig:"ISS_CORPORATE_BONDS_URL" default:"https://iss.moex.com/iss/history/engines/stock/markets/bonds/boards/TQCB/securities"`
	ISSGovernmentBondsURL string        `envconfig:"ISS_GOVERNMENT_BONDS_URL" default:"https://iss.moex.com/iss/history/engines/stock/markets/bonds/boards/TQOB/securities"`
	ISSBoardsFile         string        `envconfig:"ISS_BOARDS_FILE"`
	ISSHTTPTimeout        time.Duration `envconfig:"ISS_HTTP_TIMEOUT" default:"30s"`
	ISSMaxPages           int           `envconfig:"ISS_MAX_PAGES" default:"500"`

	OutputFile string `envconfig:"OUTPUT_FILE" default:"data_securities.csv"`

	DatabaseURL         string        `envconfig:"DATABASE_URL"`
	DatabaseMaxConns    int32         `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMinConns    int32         `envconfig:"DATABASE_MIN_CONNS" default:"1"`
	DatabaseMaxConnLife time.Duration `envconfig:"DATABASE_MAX_CONN_LIFE" default:"1h"`
	SQLitePath          string        `envconfig:"SQLITE_PATH"`

	RedisURL   string        `envconfig:"REDIS_URL"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	// Used by the in-memory session store when Redis is not configured.
	SessionMaxEntries int `envconfig:"SESSION_MAX_ENTRIES" default:"1000"`

	Workers int `envconfig:"WORKERS" default:"4"`

	APIHost         string        `envconfig:"API_HOST" default:"0.0.0.0"`
	APIPort         string        `envconfig:"API_PORT" default:"8000"`
	APIReadTimeout  time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	APIWriteTimeout time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"5m"`
	APIRateLimit    int           `envconfig:"API_RATE_LIMIT" default:"100"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() *Config {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Boards is the optional YAML override of the market endpoints:
//
//	shares: https://.../boards/TQBR/securities
//	corporate_bonds: https://.../boards/TQCB/securities
//	government_bonds: https://.../boards/TQOB/securities
type Boards struct {
	Shares          string `yaml:"shares"`
	CorporateBonds  string `yaml:"corporate_bonds"`
	GovernmentBonds string `yaml:"government_bonds"`
}

func LoadBoards(path string) (*Boards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler arquivo de boards: %w", err)
	}

	var boards Boards
	if err := yaml.Unmarshal(data, &boards); err != nil {
		return nil, fmt.Errorf("erro ao parsear arquivo de boards: %w", err)
	}
	return &boards, nil
}

// Endpoints returns the base URL of each category, with the boards file
// (when configured) taking precedence over the environment.
func (c *Config) Endpoints() (map[domain.Category]string, error) {
	endpoints := map[domain.Category]string{
		domain.CategoryShare:          c.ISSSharesURL,
		domain.CategoryCorporateBond:  c.ISSCorporateBondsURL,
		domain.CategoryGovernmentBond: c.ISSGovernmentBondsURL,
	}

	if c.ISSBoardsFile == "" {
		return endpoints, nil
	}

	boards, err := LoadBoards(c.ISSBoardsFile)
	if err != nil {
		return nil, err
	}

	overrides := map[domain.Category]string{
		domain.CategoryShare:          boards.Shares,
		domain.CategoryCorporateBond:  boards.CorporateBonds,
		domain.CategoryGovernmentBond: boards.GovernmentBonds,
	}
	for category, url := range overrides {
		if url != "" {
			endpoints[category] = url
		}
	}

	return endpoints, nil
}

func (c *Config) Development() bool {
	return c.Environment == "development"
}
