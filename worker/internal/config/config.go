package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/challengeboard/challengeboard/pkg/store"
	"github.com/challengeboard/challengeboard/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval         = 20 * time.Second
	DefaultKeyword          = "swiftoberfest"
	DefaultPassingScore     = 75
	DefaultFetchConcurrency = 5
	DefaultHTTPTimeout      = 10 * time.Second
	DefaultMetricsPort      = 9100
	DefaultLogLevel         = "info"
	DefaultLockKey          = "challengeboard:cycle"
	DefaultLockTTL          = 5 * time.Minute
	DefaultNotifyCooldown   = 30 * time.Minute

	DefaultChallengeURL     = "https://api.topcoder.com/v2/challenges/active"
	DefaultDevelopResultURL = "https://api.topcoder.com/v2/develop/challenges/result/"
	DefaultDesignResultURL  = "https://api.topcoder.com/v2/design/challenges/result/"
	DefaultNoResultsMessage = "You cannot view the results because the challenge is not yet finished or was cancelled."
)

// Config is the worker's configuration file. Fields map 1:1 to config.example.yaml.
type Config struct {
	Worker WorkerConfig `yaml:"worker"`
	Store  store.Config `yaml:"store"`
}

// WorkerConfig holds all sync-worker settings.
type WorkerConfig struct {
	// Interval is the delay between cycles when Schedule is empty.
	Interval time.Duration `yaml:"interval"`

	// Schedule is an optional cron spec ("*/5 * * * *", "@hourly").
	// It takes precedence over Interval.
	Schedule string `yaml:"schedule"`

	// Keyword selects candidate challenges by case-insensitive name match.
	Keyword string `yaml:"keyword"`

	// PassingScore is the minimum final score a result entry needs to count.
	PassingScore float64 `yaml:"passing_score"`

	// FetchConcurrency bounds simultaneous result requests.
	FetchConcurrency int `yaml:"fetch_concurrency"`

	// HTTPTimeout applies to every upstream request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// MetricsPort serves /metrics and /healthz. 0 disables the listener.
	MetricsPort int `yaml:"metrics_port"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Topcoder TopcoderConfig `yaml:"topcoder"`

	// Months are the leaderboard periods, in publication order.
	Months []MonthConfig `yaml:"months"`

	// Seeds are historical challenges inserted once at startup.
	Seeds []types.Challenge `yaml:"seeds"`

	Lock   LockConfig   `yaml:"lock"`
	Notify NotifyConfig `yaml:"notify"`
}

// TopcoderConfig locates the remote challenge and result endpoints.
type TopcoderConfig struct {
	ChallengeURL string `yaml:"challenge_url"`

	// Filter is sent as the query string of the challenge listing.
	Filter ChallengeFilter `yaml:"filter"`

	// ResultURLs maps a community to the base URL its results are served
	// from. The challenge id is appended to the base. Challenges with an
	// unknown or empty community use the design base.
	ResultURLs map[string]string `yaml:"result_urls"`

	// NoResultsMessage is the error detail the API returns for a challenge
	// that has not finished yet.
	NoResultsMessage string `yaml:"no_results_message"`
}

// ChallengeFilter is the listing query. Empty fields are omitted.
type ChallengeFilter struct {
	PageIndex    int    `yaml:"page_index"`
	PageSize     int    `yaml:"page_size"`
	Review       string `yaml:"review"`
	SortColumn   string `yaml:"sort_column"`
	SortOrder    string `yaml:"sort_order"`
	Technologies string `yaml:"technologies"`
}

// MonthConfig is one leaderboard period. Start and End are dates
// (2006-01-02) or RFC 3339 timestamps; End is exclusive.
type MonthConfig struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// LockConfig configures the cross-process cycle lock.
type LockConfig struct {
	// RedisURL enables the Redis lock when set (redis://host:6379/0).
	RedisURL string        `yaml:"redis_url"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// NotifyConfig holds webhook targets for cycle failures.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// Cooldown suppresses repeat failure notifications within a streak.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads the YAML config file at path, applies defaults and environment
// overrides, then validates. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Store = cfg.Store.WithDefaults()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ParsedMonths converts the configured months to half-open UTC intervals.
func (w WorkerConfig) ParsedMonths() ([]types.Month, error) {
	out := make([]types.Month, 0, len(w.Months))
	for i, m := range w.Months {
		start, err := parseBoundary(m.Start)
		if err != nil {
			return nil, fmt.Errorf("months[%d] %q: start: %w", i, m.Name, err)
		}
		end, err := parseBoundary(m.End)
		if err != nil {
			return nil, fmt.Errorf("months[%d] %q: end: %w", i, m.Name, err)
		}
		out = append(out, types.Month{Name: m.Name, Start: start, End: end})
	}
	return out, nil
}

func parseBoundary(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither 2006-01-02 nor RFC 3339", s)
	}
	return t.UTC(), nil
}

// defaults returns a Config pre-populated with default values. The store
// section is left empty so DATABASE_URL can still pick the backend.
func defaults() *Config {
	return &Config{
		Worker: WorkerConfig{
			Interval:         DefaultInterval,
			Keyword:          DefaultKeyword,
			PassingScore:     DefaultPassingScore,
			FetchConcurrency: DefaultFetchConcurrency,
			HTTPTimeout:      DefaultHTTPTimeout,
			MetricsPort:      DefaultMetricsPort,
			LogLevel:         DefaultLogLevel,
			Topcoder: TopcoderConfig{
				ChallengeURL: DefaultChallengeURL,
				Filter: ChallengeFilter{
					PageIndex:    1,
					PageSize:     10,
					Review:       "COMMUNITY,INTERNAL",
					SortColumn:   "submissionEndDate",
					SortOrder:    "desc",
					Technologies: "iOS,SWIFT,tvOS",
				},
				ResultURLs: map[string]string{
					types.CommunityDevelop: DefaultDevelopResultURL,
					types.CommunityDesign:  DefaultDesignResultURL,
				},
				NoResultsMessage: DefaultNoResultsMessage,
			},
			Months: []MonthConfig{
				{Name: "october", Start: "2015-10-01", End: "2015-11-01"},
				{Name: "november", Start: "2015-11-01", End: "2015-12-01"},
				{Name: "december", Start: "2015-12-01", End: "2016-01-01"},
			},
			Seeds: []types.Challenge{
				{
					ID:                    30051611,
					Status:                "active",
					RegistrationStartDate: "2015-10-05T09:23+0000",
					Name:                  "Convert existing HTML5 prototype to Swift iOS + Integrate Salesforce Mobile SDK oAuth [Swiftoberfest]",
				},
				{
					ID:                    30051785,
					Status:                "active",
					RegistrationStartDate: "2015-10-16T09:00+0000",
					Name:                  "Design Arch - REST API Authentication Setup on Heroku for iOS [Swiftoberfest]",
				},
				{
					ID:                    30051788,
					Status:                "active",
					RegistrationStartDate: "2015-10-17T00:01+0000",
					Name:                  "Mood-ring Build mood-ring Swift app user and manager functionality [Swiftoberfest]",
				},
			},
			Lock: LockConfig{
				Key: DefaultLockKey,
				TTL: DefaultLockTTL,
			},
			Notify: NotifyConfig{
				Cooldown: DefaultNotifyCooldown,
			},
		},
	}
}

// applyEnv overlays the environment variables the deployment sets.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("INTERVAL"); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return fmt.Errorf("INTERVAL: %w", err)
		}
		cfg.Worker.Interval = d
	}
	if v := os.Getenv("KEYWORD"); v != "" {
		cfg.Worker.Keyword = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
		if cfg.Store.Backend == "" && store.IsPostgresDSN(v) {
			cfg.Store.Backend = store.BackendPostgres
		}
	}
	return nil
}

// ParseInterval accepts a Go duration ("20s") or a bare number of
// milliseconds ("20000").
func ParseInterval(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor milliseconds", s)
	}
	return d, nil
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	w := cfg.Worker
	if w.Schedule == "" && w.Interval <= 0 {
		return fmt.Errorf("worker.interval must be positive")
	}
	if strings.TrimSpace(w.Keyword) == "" {
		return fmt.Errorf("worker.keyword is required")
	}
	if w.PassingScore < 0 {
		return fmt.Errorf("worker.passing_score must not be negative")
	}
	if w.FetchConcurrency <= 0 {
		return fmt.Errorf("worker.fetch_concurrency must be positive")
	}
	if w.HTTPTimeout <= 0 {
		return fmt.Errorf("worker.http_timeout must be positive")
	}
	if w.MetricsPort < 0 || w.MetricsPort > 65535 {
		return fmt.Errorf("worker.metrics_port %d out of range", w.MetricsPort)
	}
	switch w.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("worker.log_level %q unknown: want debug|info|warn|error", w.LogLevel)
	}

	if w.Topcoder.ChallengeURL == "" {
		return fmt.Errorf("worker.topcoder.challenge_url is required")
	}
	for _, c := range []string{types.CommunityDevelop, types.CommunityDesign} {
		if w.Topcoder.ResultURLs[c] == "" {
			return fmt.Errorf("worker.topcoder.result_urls.%s is required", c)
		}
	}

	if len(w.Months) == 0 {
		return fmt.Errorf("worker.months: at least one month is required")
	}
	months, err := w.ParsedMonths()
	if err != nil {
		return fmt.Errorf("worker.%w", err)
	}
	seen := make(map[string]bool, len(months))
	for i, m := range months {
		if m.Name == "" {
			return fmt.Errorf("worker.months[%d]: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("worker.months[%d]: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = true
		if !m.Start.Before(m.End) {
			return fmt.Errorf("worker.months[%d] %q: start must be before end", i, m.Name)
		}
	}

	ids := make(map[int64]bool, len(w.Seeds))
	for i, s := range w.Seeds {
		if s.ID <= 0 {
			return fmt.Errorf("worker.seeds[%d]: challenge_id is required", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("worker.seeds[%d]: duplicate challenge_id %d", i, s.ID)
		}
		ids[s.ID] = true
	}

	if w.Lock.RedisURL != "" && w.Lock.TTL <= 0 {
		return fmt.Errorf("worker.lock.ttl must be positive")
	}
	for i, wh := range w.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("worker.notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("worker.notify.webhooks[%d]: url_env is required", i)
		}
	}

	return cfg.Store.Validate()
}
