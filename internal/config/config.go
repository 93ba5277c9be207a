package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort string

	RedisAddr     string
	RedisPassword string

	// AES-256-GCM key for session and credential records, 64 hex chars.
	EncryptionKey string

	SessionTTL      time.Duration // sliding inactivity window
	RefreshTTL      time.Duration // sliding "remember me" window
	UpstreamTimeout time.Duration

	CacheTTL          time.Duration
	CacheFreshWindow  time.Duration
	DailyCommandLimit int
	BudgetThreshold   float64

	// Code literal the registration upstream returns on success. Kept
	// configurable because the upstream does not document it.
	RegisterSuccessCode string

	LoginRatePerMinute int

	UserAgent string

	Upstream Upstream
}

// Upstream holds the portal endpoints. Every flow is driven against
// these; tests point them at local fakes.
type Upstream struct {
	LoginPage  string // CAS login form
	ServiceURL string // MyBK app service handed to CAS
	StudentAPI string // student-info JSON API base

	DKMH DKMH
	LMS  LMS
}

type DKMH struct {
	ServiceURL string // SSO service for the registration sub-system
	EntryURL   string
	HomeURL    string
	FormURL    string
	ActionBase string // base for *.action endpoints
}

type LMS struct {
	BaseURL    string
	ServiceURL string
	AjaxURL    string
}

func Load() Config {
	return Config{
		AppPort: getEnv("APP_PORT", "3001"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		EncryptionKey: getEnv(
			"CREDENTIALS_ENCRYPTION_KEY",
			"a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2",
		),

		SessionTTL:      getDuration("SESSION_TTL", 15*time.Minute),
		RefreshTTL:      getDuration("REFRESH_TTL", 7*24*time.Hour),
		UpstreamTimeout: getDuration("UPSTREAM_TIMEOUT", 30*time.Second),

		CacheTTL:          getDuration("CACHE_TTL", 4*time.Hour),
		CacheFreshWindow:  getDuration("CACHE_FRESH_WINDOW", 60*time.Second),
		DailyCommandLimit: getInt("DAILY_COMMAND_LIMIT", 10000),
		BudgetThreshold:   getFloat("BUDGET_THRESHOLD", 0.8),

		RegisterSuccessCode: getEnv("REGISTER_SUCCESS_CODE", "SUCCESS"),

		LoginRatePerMinute: getInt("LOGIN_RATE_PER_MINUTE", 5),

		UserAgent: getEnv(
			"UPSTREAM_USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		),

		Upstream: Upstream{
			LoginPage:  getEnv("CAS_LOGIN_PAGE", "https://sso.hcmut.edu.vn/cas/login"),
			ServiceURL: getEnv("CAS_SERVICE_URL", "https://mybk.hcmut.edu.vn/app/login/cas"),
			StudentAPI: getEnv("STUDENT_API_BASE", "https://mybk.hcmut.edu.vn/api"),

			DKMH: DKMH{
				ServiceURL: getEnv("DKMH_SERVICE_URL", "https://mybk.hcmut.edu.vn/my/homeSSO.action"),
				EntryURL:   getEnv("DKMH_ENTRY_URL", "https://mybk.hcmut.edu.vn/dkmh/"),
				HomeURL:    getEnv("DKMH_HOME_URL", "https://mybk.hcmut.edu.vn/dkmh/home.action"),
				FormURL:    getEnv("DKMH_FORM_URL", "https://mybk.hcmut.edu.vn/dkmh/dangKyMonHocForm.action"),
				ActionBase: getEnv("DKMH_ACTION_BASE", "https://mybk.hcmut.edu.vn/dkmh"),
			},

			LMS: LMS{
				BaseURL:    getEnv("LMS_BASE_URL", "https://lms.hcmut.edu.vn"),
				ServiceURL: getEnv("LMS_SERVICE_URL", "https://lms.hcmut.edu.vn/login/index.php?authCAS=CAS"),
				AjaxURL:    getEnv("LMS_AJAX_URL", "https://lms.hcmut.edu.vn/lib/ajax/service.php"),
			},
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
