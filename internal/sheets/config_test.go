package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/trifetch/internal/common"
)

func serviceAccountConfig() Config {
	c := DefaultConfig()
	c.ServiceAccountPath = "/etc/trifetch/key.json"
	return c
}

func TestConfig_Auth(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   AuthMethod
	}{
		{name: "nothing set", mutate: func(*Config) {}, want: AuthNone},
		{
			name:   "service account",
			mutate: func(c *Config) { c.ServiceAccountPath = "/key.json" },
			want:   AuthServiceAccount,
		},
		{
			name: "oauth refresh token",
			mutate: func(c *Config) {
				c.ClientID, c.ClientSecret, c.RefreshToken = "id", "secret", "token"
			},
			want: AuthOAuth,
		},
		{
			name:   "oauth missing secret",
			mutate: func(c *Config) { c.ClientID, c.RefreshToken = "id", "token" },
			want:   AuthNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.Equal(t, tt.want, c.Auth())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		mutate  func(*Config)
		wantIs  error
		name    string
		wantMsg string
	}{
		{name: "service account defaults", mutate: func(*Config) {}},
		{
			name: "oauth instead of service account",
			mutate: func(c *Config) {
				c.ServiceAccountPath = ""
				c.ClientID, c.ClientSecret, c.RefreshToken = "id", "secret", "token"
			},
		},
		{
			name:   "no credentials",
			mutate: func(c *Config) { c.ServiceAccountPath = "" },
			wantIs: ErrNoCredentials,
		},
		{
			name: "both credential sets",
			mutate: func(c *Config) {
				c.ClientID, c.ClientSecret, c.RefreshToken = "id", "secret", "token"
			},
			wantIs: ErrConflictingCredentials,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.BatchSize = 0 },
			wantIs:  common.ErrInvalidConfig,
			wantMsg: "batch size must be positive",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.RetryAttempts = -1 },
			wantIs:  common.ErrInvalidConfig,
			wantMsg: "retry attempts cannot be negative",
		},
		{
			name:    "negative retry delay",
			mutate:  func(c *Config) { c.RetryDelay = -time.Second },
			wantIs:  common.ErrInvalidConfig,
			wantMsg: "retry delay cannot be negative",
		},
		{
			name:    "unknown time zone",
			mutate:  func(c *Config) { c.TimeZone = "Mars/Olympus" },
			wantIs:  common.ErrInvalidConfig,
			wantMsg: "invalid time zone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serviceAccountConfig()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantIs == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantIs)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	c := serviceAccountConfig()
	c.BatchSize = -5
	c.RetryAttempts = -1

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")
	assert.Contains(t, err.Error(), "retry attempts")
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, DefaultSpreadsheetName, c.SpreadsheetName)
	assert.Equal(t, "UTC", c.TimeZone)
	assert.Equal(t, 1000, c.BatchSize)
	assert.True(t, c.EnableFormatting)
	assert.Equal(t, AuthNone, c.Auth())
	assert.ErrorIs(t, c.Validate(), ErrNoCredentials)
}
