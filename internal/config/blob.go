package config

import (
	"fmt"
	"strings"
)

const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

// S3Config describes the bucket menu exports are uploaded to. Endpoint is
// optional: empty means the AWS default resolver.
type S3Config struct {
	Endpoint          string
	Region            string
	Bucket            string
	AccessKeyID       string
	SecretAccessKey   string
	KeyPrefix         string
	PresignTTLSeconds int
}

func (c S3Config) MissingRequired() []string {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(c.Region) == "" {
		missing = append(missing, "S3_REGION")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	return missing
}

func (c S3Config) IsConfigured() bool {
	return len(c.MissingRequired()) == 0
}

// Diagnostics classifies the S3 settings for startup logging.
func (c S3Config) Diagnostics() (level string, code string, msg string) {
	missing := c.MissingRequired()
	if len(missing) == 4 && strings.TrimSpace(c.Endpoint) == "" {
		return "INFO", "s3_not_configured", "not configured (all empty)"
	}
	if len(missing) > 0 {
		return "WARN", "s3_partial_config", fmt.Sprintf("partial config, missing=%v", missing)
	}
	return "INFO", "s3_ready", "ready"
}

// Summary renders the settings without secrets.
func (c S3Config) Summary() string {
	return fmt.Sprintf("endpoint=%s region=%s bucket=%s prefix=%s presign_ttl=%ds access_key_id=%s secret_access_key=%s",
		orDash(c.Endpoint),
		orDash(c.Region),
		orDash(c.Bucket),
		orDash(c.KeyPrefix),
		c.PresignTTLSeconds,
		setOrNot(c.AccessKeyID),
		setOrNot(c.SecretAccessKey),
	)
}

func orDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

type BlobConfig struct {
	Mode string // local|s3|auto
	S3   S3Config
}
