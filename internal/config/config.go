package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Delays     DelayConfig      `mapstructure:"delays"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the status server configuration
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
}

// CrawlerConfig holds traversal settings
type CrawlerConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	AllowedDomain   string   `mapstructure:"allowed_domain"`
	StartURLs       []string `mapstructure:"start_urls"`
	MaxDepth        int      `mapstructure:"max_depth"`
	PageLoadTimeout int      `mapstructure:"page_load_timeout"`
	RetryFailed     bool     `mapstructure:"retry_failed"`

	// Branching limits
	MaxSubcategories   int `mapstructure:"max_subcategories"`
	MaxPaginationLinks int `mapstructure:"max_pagination_links"`
	ExtractionDepth    int `mapstructure:"extraction_depth"`
	RecursionDepth     int `mapstructure:"recursion_depth"`

	OperationalPaths []string `mapstructure:"operational_paths"`
}

// ClassifierConfig holds keyword tables used by the URL classifier
type ClassifierConfig struct {
	TaxonomyAutoIDTokens    []string `mapstructure:"taxonomy_auto_id_tokens"`
	TaxonomyExploreClasses  []string `mapstructure:"taxonomy_explore_classes"`
	ProduceTaxonomyClasses  []string `mapstructure:"produce_taxonomy_classes"`
	ProductMarkers          []string `mapstructure:"product_markers"`
	DepartmentMarkers       []string `mapstructure:"department_markers"`
	PaginationClassKeywords []string `mapstructure:"pagination_class_keywords"`
	PaginationTextKeywords  []string `mapstructure:"pagination_text_keywords"`
	NavigationKeywords      []string `mapstructure:"navigation_keywords"`
	CategoryTextKeywords    []string `mapstructure:"category_text_keywords"`
	CategoryClassKeywords   []string `mapstructure:"category_class_keywords"`
	DeniedExtensions        []string `mapstructure:"denied_extensions"`
	DeniedPaths             []string `mapstructure:"denied_paths"`
}

// DelayConfig holds pacing settings. All values are seconds.
type DelayConfig struct {
	Phases              map[string]float64 `mapstructure:"phases"`
	RandomMin           float64            `mapstructure:"random_min"`
	RandomMax           float64            `mapstructure:"random_max"`
	ProgressiveFactor   float64            `mapstructure:"progressive_factor"`
	MaxMultiplier       float64            `mapstructure:"max_multiplier"`
	MaxDelay            float64            `mapstructure:"max_delay"`
	RequestsPerSecond   int                `mapstructure:"requests_per_second"`
	RateLimitIndicators []string           `mapstructure:"rate_limit_indicators"`
}

// RecoveryConfig holds retry and circuit breaker settings
type RecoveryConfig struct {
	FailureThreshold int                          `mapstructure:"failure_threshold"`
	RecoveryTimeout  int                          `mapstructure:"recovery_timeout"`
	TrackerSize      int                          `mapstructure:"tracker_size"`
	Policies         map[string]RetryPolicyConfig `mapstructure:"policies"`
}

// RetryPolicyConfig is the retry policy for one error category
type RetryPolicyConfig struct {
	MaxAttempts     int     `mapstructure:"max_attempts"`
	InitialDelay    float64 `mapstructure:"initial_delay"`
	MaxDelay        float64 `mapstructure:"max_delay"`
	ExponentialBase float64 `mapstructure:"exponential_base"`
	Jitter          bool    `mapstructure:"jitter"`
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	Headless          bool     `mapstructure:"headless"`
	UserAgent         string   `mapstructure:"user_agent"`
	WindowWidth       int      `mapstructure:"window_width"`
	WindowHeight      int      `mapstructure:"window_height"`
	NavigationTimeout int      `mapstructure:"navigation_timeout"`
	PopupSelectors    []string `mapstructure:"popup_selectors"`
	Proxies           []string `mapstructure:"proxies"`
	ProxyCheckURL     string   `mapstructure:"proxy_check_url"`
}

// ExtractorConfig holds product extraction settings
type ExtractorConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN builds the pgx connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig holds logrus settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Seconds converts a fractional seconds value into a duration
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Load loads configuration from config.yaml with environment variable overrides
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return decode(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

// Default returns the configuration built from defaults only
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("invalid default configuration: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if config.Crawler.AllowedDomain == "" {
		return nil, fmt.Errorf("crawler.allowed_domain must be set")
	}
	if config.Crawler.MaxDepth <= 0 {
		return nil, fmt.Errorf("crawler.max_depth must be positive, got %d", config.Crawler.MaxDepth)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")

	v.SetDefault("crawler.base_url", "https://groceries.asda.com")
	v.SetDefault("crawler.allowed_domain", "groceries.asda.com")
	v.SetDefault("crawler.start_urls", []string{"https://groceries.asda.com/"})
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.page_load_timeout", 10)
	v.SetDefault("crawler.retry_failed", false)
	v.SetDefault("crawler.max_subcategories", 5)
	v.SetDefault("crawler.max_pagination_links", 3)
	v.SetDefault("crawler.extraction_depth", 3)
	v.SetDefault("crawler.recursion_depth", 2)
	v.SetDefault("crawler.operational_paths", []string{
		"/search", "/account", "/checkout", "/login", "/logout", "/help", "/customer-service",
	})

	v.SetDefault("classifier.taxonomy_auto_id_tokens", []string{"linktaxonomyexplore", "taxonomyexplore"})
	v.SetDefault("classifier.taxonomy_explore_classes", []string{"taxonomy-explore__item"})
	v.SetDefault("classifier.produce_taxonomy_classes", []string{"produce-taxo-btn"})
	v.SetDefault("classifier.product_markers", []string{"/product/"})
	v.SetDefault("classifier.department_markers", []string{"/dept/", "/department/"})
	v.SetDefault("classifier.pagination_class_keywords", []string{"page", "next", "prev", "pagination"})
	v.SetDefault("classifier.pagination_text_keywords", []string{"next", "previous", "page", "more"})
	v.SetDefault("classifier.navigation_keywords", []string{"nav", "menu", "breadcrumb"})
	v.SetDefault("classifier.category_text_keywords", []string{
		"fruit", "veg", "vegetable", "meat", "poultry", "fish", "seafood", "dairy", "eggs",
		"milk", "cheese", "yogurt", "bread", "bakery", "cakes", "frozen", "drinks", "juice",
		"snacks", "crisps", "chocolate", "sweets", "cereal", "pasta", "rice", "tins", "sauces",
		"chicken", "beef", "pork", "lamb", "salad", "herbs", "organic", "free from",
	})
	v.SetDefault("classifier.category_class_keywords", []string{"category", "taxo", "dept", "department", "aisle", "shelf"})
	v.SetDefault("classifier.denied_extensions", []string{
		".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".pdf", ".zip", ".woff", ".woff2",
	})
	v.SetDefault("classifier.denied_paths", []string{
		"/api/", "/ajax/", "/checkout", "/account", "/login", "/logout", "/help", "/customer-service", "/search",
	})

	v.SetDefault("delays.phases", map[string]float64{
		"between_categories":        60,
		"between_subcategories":     3,
		"between_pages":             3,
		"between_requests":          2,
		"after_popup_handling":      1,
		"page_load_wait":            3,
		"after_rate_limit_detected": 300,
	})
	v.SetDefault("delays.random_min", 0.5)
	v.SetDefault("delays.random_max", 2.0)
	v.SetDefault("delays.progressive_factor", 1.5)
	v.SetDefault("delays.max_multiplier", 10.0)
	v.SetDefault("delays.max_delay", 60.0)
	v.SetDefault("delays.requests_per_second", 1)
	v.SetDefault("delays.rate_limit_indicators", []string{
		"rate limit", "too many requests", "please try again later", "temporarily unavailable", "access denied",
	})

	v.SetDefault("recovery.failure_threshold", 5)
	v.SetDefault("recovery.recovery_timeout", 60)
	v.SetDefault("recovery.tracker_size", 1000)
	setPolicyDefault(v, "network", RetryPolicyConfig{MaxAttempts: 3, InitialDelay: 2, MaxDelay: 30, ExponentialBase: 2, Jitter: true})
	setPolicyDefault(v, "timeout", RetryPolicyConfig{MaxAttempts: 3, InitialDelay: 1, MaxDelay: 20, ExponentialBase: 2, Jitter: true})
	setPolicyDefault(v, "database", RetryPolicyConfig{MaxAttempts: 3, InitialDelay: 1, MaxDelay: 10, ExponentialBase: 2})
	setPolicyDefault(v, "driver_setup", RetryPolicyConfig{MaxAttempts: 2, InitialDelay: 5, MaxDelay: 30, ExponentialBase: 2})
	setPolicyDefault(v, "parsing", RetryPolicyConfig{MaxAttempts: 2, InitialDelay: 1, MaxDelay: 5, ExponentialBase: 2})
	setPolicyDefault(v, "rate_limit", RetryPolicyConfig{MaxAttempts: 2, InitialDelay: 30, MaxDelay: 300, ExponentialBase: 2, Jitter: true})

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.navigation_timeout", 30)
	v.SetDefault("browser.popup_selectors", []string{
		"button#onetrust-accept-btn-handler",
		"[data-auto-id='privacy-accept-all']",
		"button.privacy-prompt__button--accept",
		"#accept-cookies",
		"button[aria-label*='Accept all']",
		"button[aria-label*='close' i]",
	})
	v.SetDefault("browser.proxies", []string{})
	v.SetDefault("browser.proxy_check_url", "https://groceries.asda.com/")

	v.SetDefault("extractor.cache_ttl", 86400)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "grocery")
	v.SetDefault("database.user", "grocery_user")
	v.SetDefault("database.password", "grocery_pass")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "grocery_crawler")
	v.SetDefault("redis.key_prefix", "grocery:")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func setPolicyDefault(v *viper.Viper, category string, p RetryPolicyConfig) {
	prefix := "recovery.policies." + category + "."
	v.SetDefault(prefix+"max_attempts", p.MaxAttempts)
	v.SetDefault(prefix+"initial_delay", p.InitialDelay)
	v.SetDefault(prefix+"max_delay", p.MaxDelay)
	v.SetDefault(prefix+"exponential_base", p.ExponentialBase)
	v.SetDefault(prefix+"jitter", p.Jitter)
}
