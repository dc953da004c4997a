package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath      string
	JWTPublicKeyPath       string
	JWTExpiry              time.Duration
	RefreshTokenExpiryDays int

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	SMSProvider      string // "sns" | "twilio"
	SNSRegion        string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	WhatsAppURL      string // WhatsApp verification service base URL
	EmailOTPURL      string // optional; when empty codes are mailed locally
	BaaSAPIKey       string
	GoogleClientID   string

	RedisAddr     string // empty → in-memory flow store
	RedisPassword string
	RedisDB       int
	FlowTTL       time.Duration

	OTPTTL                time.Duration
	OTPMaxAttempts        int
	ResendCooldownSeconds int
	ViewSwitchDelay       time.Duration

	AllowedEmailDomains     []string
	AllowedEmailDomainsFile string
	PrivilegedEmailDomains  []string
	SMSOnlyCallingCodes     []string
	WhatsAppCallingCodes    []string
	TestPhoneNumbers        map[string]string // E.164 → fixed code

	DevModeEnabled     bool
	DevAccountDomain   string
	DevAccountPassword string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Accounts     string
	Sessions     string
	Profiles     string
	Challenges   string
	EmailDomains string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Accounts:     getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			Sessions:     getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
			Profiles:     getEnv("DYNAMO_TABLE_PROFILES", "profiles"),
			Challenges:   getEnv("DYNAMO_TABLE_CHALLENGES", "verification_challenges"),
			EmailDomains: getEnv("DYNAMO_TABLE_EMAIL_DOMAINS", "email_domains"),
		},
		JWTPrivateKeyPath:      getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:       getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:              getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		RefreshTokenExpiryDays: getEnvInt("REFRESH_TOKEN_EXPIRY_DAYS", 30),
		SMTPHost:               getEnv("SMTP_HOST", "localhost"),
		SMTPPort:               getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:               getEnv("SMTP_FROM", "noreply@medconnect.org"),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SMSProvider:            getEnv("SMS_PROVIDER", "sns"),
		SNSRegion:              getEnv("SNS_REGION", "us-east-1"),
		TwilioAccountSID:       getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:       getEnv("TWILIO_FROM_NUMBER", ""),
		WhatsAppURL:            getEnv("WHATSAPP_SERVICE_URL", ""),
		EmailOTPURL:            getEnv("EMAIL_OTP_SERVICE_URL", ""),
		BaaSAPIKey:             getEnv("BAAS_API_KEY", ""),
		GoogleClientID:         getEnv("GOOGLE_CLIENT_ID", ""),
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		FlowTTL:                getEnvDuration("FLOW_TTL", 30*time.Minute),
		OTPTTL:                 getEnvDuration("OTP_TTL", 5*time.Minute),
		OTPMaxAttempts:         getEnvInt("OTP_MAX_ATTEMPTS", 5),
		ResendCooldownSeconds:  getEnvInt("RESEND_COOLDOWN_SECONDS", 60),
		ViewSwitchDelay:        getEnvDuration("VIEW_SWITCH_DELAY", 3*time.Second),
		AllowedEmailDomains: getEnvList("ALLOWED_EMAIL_DOMAINS",
			"gmail.com,outlook.com,hotmail.com,yahoo.com,icloud.com,protonmail.com"),
		AllowedEmailDomainsFile: getEnv("ALLOWED_EMAIL_DOMAINS_FILE", ""),
		PrivilegedEmailDomains:  getEnvList("PRIVILEGED_EMAIL_DOMAINS", "medconnect.org,medpartners.health"),
		SMSOnlyCallingCodes:     getEnvList("SMS_ONLY_CALLING_CODES", "86"),
		WhatsAppCallingCodes:    getEnvList("WHATSAPP_CALLING_CODES", "971,966,974,965,973,968"),
		TestPhoneNumbers:        parseTestNumbers(getEnv("TEST_PHONE_NUMBERS", "+8613138607996:123456")),
		DevModeEnabled:          getEnvBool("DEV_MODE_ENABLED", false),
		DevAccountDomain:        getEnv("DEV_ACCOUNT_DOMAIN", "dev.medconnect.test"),
		DevAccountPassword:      getEnv("DEV_ACCOUNT_PASSWORD", "dev-password-123"),
		AllowedOrigins:          strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// Validate rejects combinations that must never reach a running server.
func (c *Config) Validate() error {
	if c.DevModeEnabled && c.AppEnv == "production" {
		return errors.New("config: DEV_MODE_ENABLED must not be true when APP_ENV=production")
	}
	if c.SMSProvider != "sns" && c.SMSProvider != "twilio" {
		return fmt.Errorf("config: unknown SMS_PROVIDER %q", c.SMSProvider)
	}
	if c.OTPMaxAttempts < 1 {
		return errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.ResendCooldownSeconds < 0 {
		return errors.New("config: RESEND_COOLDOWN_SECONDS must not be negative")
	}
	return nil
}

// RefreshTokenExpiry returns the refresh token lifetime.
func (c *Config) RefreshTokenExpiry() time.Duration {
	return time.Duration(c.RefreshTokenExpiryDays) * 24 * time.Hour
}

// domainFile is the YAML layout of ALLOWED_EMAIL_DOMAINS_FILE.
type domainFile struct {
	Domains []string `yaml:"domains"`
}

// EmailDomains returns the general allow-list: the env list merged with the
// YAML file, when one is configured.
func (c *Config) EmailDomains() ([]string, error) {
	out := append([]string(nil), c.AllowedEmailDomains...)
	if c.AllowedEmailDomainsFile == "" {
		return out, nil
	}
	raw, err := os.ReadFile(c.AllowedEmailDomainsFile)
	if err != nil {
		return nil, fmt.Errorf("read domain file: %w", err)
	}
	list, err := ParseDomainList(raw)
	if err != nil {
		return nil, err
	}
	return append(out, list...), nil
}

// ParseDomainList decodes a YAML document of the form `domains: [a.com, b.org]`.
func ParseDomainList(raw []byte) ([]string, error) {
	var f domainFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse domain file: %w", err)
	}
	out := make([]string, 0, len(f.Domains))
	for _, d := range f.Domains {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out, nil
}

// parseTestNumbers reads "+8613138607996:123456,+971500000000:654321".
func parseTestNumbers(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		phone, code, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || phone == "" || code == "" {
			continue
		}
		out[strings.TrimSpace(phone)] = strings.TrimSpace(code)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, s := range strings.Split(getEnv(key, fallback), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
