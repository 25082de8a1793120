package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// IdentityConfig describes the viewer this pipeline instance serves.
type IdentityConfig struct {
	UserID     string `yaml:"user_id"`
	Role       string `yaml:"role"` // "user" or "admin"
	Tier       string `yaml:"tier,omitempty"`
	SkillLevel string `yaml:"skill_level,omitempty"`
}

// OutputConfig controls the anti-spam layer.
type OutputConfig struct {
	UserRatePerMinute  int           `yaml:"user_rate_per_minute"`  // Hard cap on USER channel (default 3)
	AdminRatePerMinute int           `yaml:"admin_rate_per_minute"` // Hard cap on ADMIN channel (default 10)
	DedupWindow        time.Duration `yaml:"dedup_window"`          // Same semantic hash inside this window is a repeat (default 30m)
	ConversationWindow time.Duration `yaml:"conversation_window"`   // Window for topic saturation (default 10m)
	TopicSaturation    int           `yaml:"topic_saturation"`      // Messages per topic per conversation (default 3)
	TopicBlock         time.Duration `yaml:"topic_block"`           // Cooldown after dismissal (default 5m)
	MessageTTL         time.Duration `yaml:"message_ttl"`           // Default TTL of emitted messages (default 30s)
	SilentActivities   []string      `yaml:"silent_activities"`     // Activities during which non-critical output is withheld
}

// MemoryConfig controls communication memory retention.
type MemoryConfig struct {
	Retention        time.Duration `yaml:"retention"`         // Sent messages older than this are pruned (default 1h)
	AcceptanceWindow int           `yaml:"acceptance_window"` // Messages considered for rolling acceptance (default 20)
}

// DecisionConfig controls decision engine tunables.
type DecisionConfig struct {
	RescheduleDelay time.Duration `yaml:"reschedule_delay"` // Delay for busy-viewer reschedules (default 30s)
	MaxDeferrals    int           `yaml:"max_deferrals"`    // Reschedules before an event is decided on its merits (default 3)
	BusyActivities  []string      `yaml:"busy_activities"`  // Activities that count as busy
}

// AdvisorConfig controls the language-model collaborator.
type AdvisorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Provider string        `yaml:"provider"`          // "gemini" or "heuristic" (default "gemini")
	Model    string        `yaml:"model,omitempty"`   // Provider model name
	APIKey   string        `yaml:"api_key,omitempty"` // Usually supplied via HARK_GEMINI_API_KEY
	Timeout  time.Duration `yaml:"timeout"`           // Default 10s
}

// RedisConfig controls the persistence collaborator and ingress.
type RedisConfig struct {
	URL      string `yaml:"url,omitempty"` // Empty disables persistence and Redis ingress
	Instance string `yaml:"instance"`      // Key namespace (default "default")
}

// AdminConfig controls the admin HTTP surface.
type AdminConfig struct {
	Addr            string  `yaml:"addr"`              // Empty disables the admin server (default ":8080")
	EventsPerSecond float64 `yaml:"events_per_second"` // POST /events throttle (default 50)
	EventsBurst     int     `yaml:"events_burst"`      // POST /events burst (default 100)
}

// LoggingConfig controls zap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default info)
	JSON  bool   `yaml:"json"`
}

// HarkConfig represents the top-level hark.yml configuration
type HarkConfig struct {
	Version  string         `yaml:"version"`
	Identity IdentityConfig `yaml:"identity"`
	Output   OutputConfig   `yaml:"output"`
	Memory   MemoryConfig   `yaml:"memory"`
	Decision DecisionConfig `yaml:"decision"`
	Advisor  AdvisorConfig  `yaml:"advisor"`
	Redis    RedisConfig    `yaml:"redis"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns a configuration with every default applied.
func Default() *HarkConfig {
	cfg := &HarkConfig{
		Version: "1.0",
		Admin:   AdminConfig{Addr: ":8080"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *HarkConfig) applyDefaults() {
	if c.Identity.Role == "" {
		c.Identity.Role = "user"
	}
	if c.Identity.UserID == "" {
		c.Identity.UserID = "anonymous"
	}

	o := &c.Output
	if o.UserRatePerMinute == 0 {
		o.UserRatePerMinute = 3
	}
	if o.AdminRatePerMinute == 0 {
		o.AdminRatePerMinute = 10
	}
	if o.DedupWindow == 0 {
		o.DedupWindow = 30 * time.Minute
	}
	if o.ConversationWindow == 0 {
		o.ConversationWindow = 10 * time.Minute
	}
	if o.TopicSaturation == 0 {
		o.TopicSaturation = 3
	}
	if o.TopicBlock == 0 {
		o.TopicBlock = 5 * time.Minute
	}
	if o.MessageTTL == 0 {
		o.MessageTTL = 30 * time.Second
	}
	if o.SilentActivities == nil {
		o.SilentActivities = []string{"presenting", "typing_sensitive"}
	}

	if c.Memory.Retention == 0 {
		c.Memory.Retention = time.Hour
	}
	if c.Memory.AcceptanceWindow == 0 {
		c.Memory.AcceptanceWindow = 20
	}

	d := &c.Decision
	if d.RescheduleDelay == 0 {
		d.RescheduleDelay = 30 * time.Second
	}
	if d.MaxDeferrals == 0 {
		d.MaxDeferrals = 3
	}
	if d.BusyActivities == nil {
		d.BusyActivities = []string{"filling_form", "calculating"}
	}

	if c.Advisor.Provider == "" {
		c.Advisor.Provider = "gemini"
	}
	if c.Advisor.Timeout == 0 {
		c.Advisor.Timeout = 10 * time.Second
	}
	if c.Admin.EventsPerSecond == 0 {
		c.Admin.EventsPerSecond = 50
	}
	if c.Admin.EventsBurst == 0 {
		c.Admin.EventsBurst = 100
	}
	if c.Redis.Instance == "" {
		c.Redis.Instance = "default"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// MaxInstanceNameLength bounds the Redis key namespace.
const MaxInstanceNameLength = 63

// instanceNamePattern: lowercase alphanumeric, hyphens allowed but not at start/end
var instanceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateInstanceName checks an instance name is DNS-compatible.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceNameLength)
	}
	if !instanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}

// Validate performs strict validation on the configuration and applies defaults
func (c *HarkConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	c.applyDefaults()

	if c.Identity.Role != "user" && c.Identity.Role != "admin" {
		return fmt.Errorf("identity.role: invalid role: %s (must be 'user' or 'admin')", c.Identity.Role)
	}

	if c.Output.UserRatePerMinute < 0 || c.Output.AdminRatePerMinute < 0 {
		return fmt.Errorf("output rate limits must be >= 0")
	}

	if c.Output.TopicSaturation < 0 {
		return fmt.Errorf("output.topic_saturation must be >= 0, got %d", c.Output.TopicSaturation)
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"output.dedup_window", c.Output.DedupWindow},
		{"output.conversation_window", c.Output.ConversationWindow},
		{"output.topic_block", c.Output.TopicBlock},
		{"output.message_ttl", c.Output.MessageTTL},
		{"memory.retention", c.Memory.Retention},
		{"decision.reschedule_delay", c.Decision.RescheduleDelay},
		{"advisor.timeout", c.Advisor.Timeout},
	} {
		if d.value < 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if c.Memory.AcceptanceWindow < 1 {
		return fmt.Errorf("memory.acceptance_window must be >= 1, got %d", c.Memory.AcceptanceWindow)
	}

	if c.Decision.MaxDeferrals < 0 {
		return fmt.Errorf("decision.max_deferrals must be >= 0, got %d", c.Decision.MaxDeferrals)
	}

	if c.Admin.EventsPerSecond < 0 || c.Admin.EventsBurst < 0 {
		return fmt.Errorf("admin ingress limits must be >= 0")
	}

	if err := ValidateInstanceName(c.Redis.Instance); err != nil {
		return fmt.Errorf("redis.instance: %w", err)
	}

	switch c.Advisor.Provider {
	case "gemini", "heuristic":
	default:
		return fmt.Errorf("advisor.provider: invalid provider: %s (must be 'gemini' or 'heuristic')", c.Advisor.Provider)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: invalid level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Logging.Level)
	}

	return nil
}

// ApplyEnv overrides settings from HARK_REDIS_URL, HARK_INSTANCE_NAME and
// HARK_GEMINI_API_KEY.
func (c *HarkConfig) ApplyEnv() {
	if v := os.Getenv("HARK_GEMINI_API_KEY"); v != "" {
		c.Advisor.APIKey = v
	}
	if v := os.Getenv("HARK_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("HARK_INSTANCE_NAME"); v != "" {
		c.Redis.Instance = v
	}
}

// Load reads and validates hark.yml from the specified path
func Load(path string) (*HarkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config HarkConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
