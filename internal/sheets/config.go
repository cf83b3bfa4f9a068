// Package sheets writes classification reports to Google Sheets.
package sheets

import (
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/trifetch/internal/common"
)

// DefaultSpreadsheetName is used when neither an ID nor a name is configured.
const DefaultSpreadsheetName = "trifetch Classification Report"

// Credential errors. Both wrap common.ErrInvalidConfig.
var (
	ErrNoCredentials          = fmt.Errorf("%w: no Google credentials configured", common.ErrInvalidConfig)
	ErrConflictingCredentials = fmt.Errorf("%w: configure either OAuth2 or a service account, not both", common.ErrInvalidConfig)
)

// AuthMethod identifies how the writer authenticates to Google.
type AuthMethod int

// Supported authentication methods.
const (
	AuthNone AuthMethod = iota
	AuthServiceAccount
	AuthOAuth
	authConflict
)

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SpreadsheetName    string
	TimeZone           string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns the writer defaults. Credentials are left empty.
func DefaultConfig() Config {
	return Config{
		SpreadsheetName:  DefaultSpreadsheetName,
		TimeZone:         "UTC",
		BatchSize:        1000,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		EnableFormatting: true,
	}
}

// Auth reports which credential set is complete. Partial OAuth2 credentials
// count as none.
func (c *Config) Auth() AuthMethod {
	oauth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	switch {
	case oauth && c.ServiceAccountPath != "":
		return authConflict
	case oauth:
		return AuthOAuth
	case c.ServiceAccountPath != "":
		return AuthServiceAccount
	default:
		return AuthNone
	}
}

// Validate checks credentials, batching and retry settings, and the report time zone.
func (c *Config) Validate() error {
	switch c.Auth() {
	case AuthNone:
		return ErrNoCredentials
	case authConflict:
		return ErrConflictingCredentials
	}

	var errs []error
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry attempts cannot be negative, got %d", c.RetryAttempts))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay cannot be negative, got %s", c.RetryDelay))
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
