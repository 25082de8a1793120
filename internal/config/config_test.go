package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hark.yml")

	validConfig := `version: "1.0"
identity:
  user_id: "u-42"
  role: "admin"
output:
  user_rate_per_minute: 5
  dedup_window: 10m
  silent_activities: ["presenting"]
advisor:
  enabled: true
  timeout: 2s
`
	err := os.WriteFile(configPath, []byte(validConfig), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "u-42", config.Identity.UserID)
	assert.Equal(t, "admin", config.Identity.Role)
	assert.Equal(t, 5, config.Output.UserRatePerMinute)
	assert.Equal(t, 10, config.Output.AdminRatePerMinute)
	assert.Equal(t, 10*time.Minute, config.Output.DedupWindow)
	assert.Equal(t, []string{"presenting"}, config.Output.SilentActivities)
	assert.True(t, config.Advisor.Enabled)
	assert.Equal(t, 2*time.Second, config.Advisor.Timeout)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/hark.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hark.yml")

	invalidYAML := `version: "1.0"
identity:
  - this is invalid
    yaml syntax
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_EnvOverridesRedis(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hark.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(`version: "1.0"`), 0644))

	t.Setenv("HARK_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("HARK_INSTANCE_NAME", "staging")
	t.Setenv("HARK_GEMINI_API_KEY", "test-key")

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/1", config.Redis.URL)
	assert.Equal(t, "staging", config.Redis.Instance)
	assert.Equal(t, "test-key", config.Advisor.APIKey)
}

func TestValidate_UnsupportedVersion(t *testing.T) {
	config := &HarkConfig{Version: "2.0"}

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version: 2.0")
}

func TestValidate_AppliesDefaults(t *testing.T) {
	config := &HarkConfig{Version: "1.0"}
	require.NoError(t, config.Validate())

	assert.Equal(t, "user", config.Identity.Role)
	assert.Equal(t, 3, config.Output.UserRatePerMinute)
	assert.Equal(t, 10, config.Output.AdminRatePerMinute)
	assert.Equal(t, 3, config.Output.TopicSaturation)
	assert.Equal(t, 5*time.Minute, config.Output.TopicBlock)
	assert.Equal(t, time.Hour, config.Memory.Retention)
	assert.Equal(t, 20, config.Memory.AcceptanceWindow)
	assert.Equal(t, 30*time.Second, config.Decision.RescheduleDelay)
	assert.Equal(t, 3, config.Decision.MaxDeferrals)
	assert.Equal(t, 10*time.Second, config.Advisor.Timeout)
	assert.Equal(t, "gemini", config.Advisor.Provider)
	assert.Equal(t, 50.0, config.Admin.EventsPerSecond)
	assert.Equal(t, 100, config.Admin.EventsBurst)
	assert.Equal(t, "default", config.Redis.Instance)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *HarkConfig)
		wantErr string
	}{
		{
			name:    "invalid role",
			mutate:  func(c *HarkConfig) { c.Identity.Role = "root" },
			wantErr: "invalid role: root",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *HarkConfig) { c.Output.UserRatePerMinute = -1 },
			wantErr: "rate limits must be >= 0",
		},
		{
			name:    "negative dedup window",
			mutate:  func(c *HarkConfig) { c.Output.DedupWindow = -time.Second },
			wantErr: "output.dedup_window must be positive",
		},
		{
			name:    "negative max deferrals",
			mutate:  func(c *HarkConfig) { c.Decision.MaxDeferrals = -2 },
			wantErr: "decision.max_deferrals must be >= 0",
		},
		{
			name:    "unknown advisor provider",
			mutate:  func(c *HarkConfig) { c.Advisor.Provider = "oracle" },
			wantErr: "invalid provider: oracle",
		},
		{
			name:    "invalid instance name",
			mutate:  func(c *HarkConfig) { c.Redis.Instance = "Prod_1" },
			wantErr: "redis.instance: invalid instance name 'Prod_1'",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *HarkConfig) { c.Logging.Level = "verbose" },
			wantErr: "invalid level: verbose",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &HarkConfig{Version: "1.0"}
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	config := Default()
	assert.NoError(t, config.Validate())
	assert.Equal(t, ":8080", config.Admin.Addr)
}

func TestValidateInstanceName(t *testing.T) {
	for _, name := range []string{"default", "a", "prod-2"} {
		assert.NoError(t, ValidateInstanceName(name), name)
	}
	for _, name := range []string{"", "-prod", "prod-", "Prod", "prod_2", strings.Repeat("a", 64)} {
		assert.Error(t, ValidateInstanceName(name), name)
	}
}
