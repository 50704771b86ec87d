// Package config handles configuration loading for ports, database strings, offsets, etc.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// Shared secret required on every admin request (X-Admin-Key)
	AdminAPIKey string

	// HTTP server port for the admin API and static HLS files
	HTTPPort int

	// Admin requests per second; zero disables throttling
	AdminRateLimit float64
	AdminRateBurst int

	// Optional brokers. Empty disables the component.
	RedisURL  string
	AMQPURL   string
	AMQPQueue string

	LogLevel        string
	OTELEndpoint    string
	OTELSampleRatio float64

	Scheduler SchedulerConfig
	Stream    StreamConfig
	Playlist  PlaylistConfig
	Notify    NotifyConfig
}

// SchedulerConfig holds the phase offsets derived from a room's anchor time.
type SchedulerConfig struct {
	StartDelays           map[int]time.Duration
	DefaultStartDelay     time.Duration
	BuildLead             time.Duration
	NotifyLeads           []int
	CleanupAfter          time.Duration
	RecoveryLookback      time.Duration
	RecoveryDelay         time.Duration
	RestartLiveDelay      time.Duration
	UrgentBuildDelay      time.Duration
	PrivateRoomTTL        time.Duration
	PrivateExpiryInterval time.Duration
}

// StreamConfig configures the transcoder runtime and HLS output.
type StreamConfig struct {
	// "exec" or "docker"
	Runtime          string
	FFmpegPath       string
	FFmpegImage      string
	OutputDir        string
	ServeURL         string
	SegmentSeconds   int
	ReadyTimeout     time.Duration
	PollInterval     time.Duration
	MinManifestBytes int64
	StopGrace        time.Duration
}

// PlaylistConfig points at the audio library and the liturgical segment table.
type PlaylistConfig struct {
	AudioDir       string
	DefaultReciter string
	// Path to a YAML segment table; empty uses the embedded default.
	SegmentTable   string
	SegmentVersion string
}

// NotifyConfig holds delivery credentials. Channels without credentials are disabled.
type NotifyConfig struct {
	FrontendURL        string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	EmailFrom          string
	// Messages per second, per channel
	Rate float64
	// Upper bound on one delivery attempt
	SendTimeout time.Duration
}

var envBindings = map[string]string{
	"database_url":      "DATABASE_URL",
	"admin_api_key":     "ADMIN_API_KEY",
	"http_port":         "PORT",
	"redis_url":         "REDIS_URL",
	"amqp_url":          "AMQP_URL",
	"amqp_queue":        "AMQP_QUEUE",
	"log_level":         "LOG_LEVEL",
	"otel_endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otel_sample_ratio": "OTEL_TRACES_SAMPLER_ARG",

	"admin_rate_limit": "ADMIN_RATE_LIMIT",
	"admin_rate_burst": "ADMIN_RATE_BURST",

	"default_start_delay":     "DEFAULT_START_DELAY",
	"build_lead":              "BUILD_LEAD",
	"cleanup_after":           "CLEANUP_AFTER",
	"recovery_lookback":       "RECOVERY_LOOKBACK",
	"recovery_delay":          "RECOVERY_DELAY",
	"restart_live_delay":      "RESTART_LIVE_DELAY",
	"urgent_build_delay":      "URGENT_BUILD_DELAY",
	"private_room_ttl":        "PRIVATE_ROOM_TTL",
	"private_expiry_interval": "PRIVATE_EXPIRY_INTERVAL",

	"runtime":                   "RUNTIME",
	"ffmpeg_path":               "FFMPEG_PATH",
	"ffmpeg_image":              "FFMPEG_IMAGE",
	"hls_output_dir":            "HLS_OUTPUT_DIR",
	"hls_serve_url":             "HLS_SERVE_URL",
	"hls_segment_seconds":       "HLS_SEGMENT_SECONDS",
	"stream_ready_timeout":      "STREAM_READY_TIMEOUT",
	"stream_poll_interval":      "STREAM_POLL_INTERVAL",
	"stream_min_manifest_bytes": "STREAM_MIN_MANIFEST_BYTES",
	"stream_stop_grace":         "STREAM_STOP_GRACE",

	"audio_dir":             "AUDIO_DIR",
	"default_reciter":       "DEFAULT_RECITER",
	"segment_table":         "SEGMENT_TABLE",
	"segment_table_version": "SEGMENT_TABLE_VERSION",

	"frontend_url":         "FRONTEND_URL",
	"twilio_account_sid":   "TWILIO_ACCOUNT_SID",
	"twilio_auth_token":    "TWILIO_AUTH_TOKEN",
	"twilio_whatsapp_from": "TWILIO_WHATSAPP_FROM",
	"smtp_host":            "SMTP_HOST",
	"smtp_port":            "SMTP_PORT",
	"smtp_username":        "SMTP_USERNAME",
	"smtp_password":        "SMTP_PASSWORD",
	"email_from":           "EMAIL_FROM",
	"notify_rate":          "NOTIFY_RATE",
	"notify_send_timeout":  "NOTIFY_SEND_TIMEOUT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 6161)
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("otel_sample_ratio", 1.0)
	v.SetDefault("amqp_queue", "room.created")
	v.SetDefault("admin_rate_limit", 10.0)
	v.SetDefault("admin_rate_burst", 20)

	v.SetDefault("start_delays", map[string]string{"20": "30m", "8": "60m"})
	v.SetDefault("default_start_delay", 30*time.Minute)
	v.SetDefault("build_lead", 90*time.Minute)
	v.SetDefault("notify_leads", []int{30, 20, 15, 10})
	v.SetDefault("cleanup_after", 3*time.Hour)
	v.SetDefault("recovery_lookback", 4*time.Hour)
	v.SetDefault("recovery_delay", 5*time.Second)
	v.SetDefault("restart_live_delay", 10*time.Second)
	v.SetDefault("urgent_build_delay", 5*time.Second)
	v.SetDefault("private_room_ttl", 6*time.Hour)
	v.SetDefault("private_expiry_interval", 30*time.Minute)

	v.SetDefault("runtime", "exec")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffmpeg_image", "jrottenberg/ffmpeg:6.1-alpine")
	v.SetDefault("hls_output_dir", "/var/lib/roomplane/hls")
	v.SetDefault("hls_serve_url", "http://localhost:6161")
	v.SetDefault("hls_segment_seconds", 6)
	v.SetDefault("stream_ready_timeout", 45*time.Second)
	v.SetDefault("stream_poll_interval", 500*time.Millisecond)
	v.SetDefault("stream_min_manifest_bytes", 50)
	v.SetDefault("stream_stop_grace", 5*time.Second)

	v.SetDefault("audio_dir", "/var/lib/roomplane/audio")
	v.SetDefault("default_reciter", "Alafasy_128kbps")
	v.SetDefault("segment_table_version", "2")

	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("twilio_whatsapp_from", "whatsapp:+14155238886")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("notify_rate", 5.0)
	v.SetDefault("notify_send_timeout", "20s")
}

// Load reads configuration from an optional YAML file and environment variables.
// Environment variables take precedence over the file. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:     v.GetString("database_url"),
		AdminAPIKey:     v.GetString("admin_api_key"),
		HTTPPort:        v.GetInt("http_port"),
		AdminRateLimit:  v.GetFloat64("admin_rate_limit"),
		AdminRateBurst:  v.GetInt("admin_rate_burst"),
		RedisURL:        v.GetString("redis_url"),
		AMQPURL:         v.GetString("amqp_url"),
		AMQPQueue:       v.GetString("amqp_queue"),
		LogLevel:        v.GetString("log_level"),
		OTELEndpoint:    v.GetString("otel_endpoint"),
		OTELSampleRatio: v.GetFloat64("otel_sample_ratio"),
		Scheduler: SchedulerConfig{
			DefaultStartDelay:     v.GetDuration("default_start_delay"),
			BuildLead:             v.GetDuration("build_lead"),
			NotifyLeads:           v.GetIntSlice("notify_leads"),
			CleanupAfter:          v.GetDuration("cleanup_after"),
			RecoveryLookback:      v.GetDuration("recovery_lookback"),
			RecoveryDelay:         v.GetDuration("recovery_delay"),
			RestartLiveDelay:      v.GetDuration("restart_live_delay"),
			UrgentBuildDelay:      v.GetDuration("urgent_build_delay"),
			PrivateRoomTTL:        v.GetDuration("private_room_ttl"),
			PrivateExpiryInterval: v.GetDuration("private_expiry_interval"),
		},
		Stream: StreamConfig{
			Runtime:          strings.ToLower(v.GetString("runtime")),
			FFmpegPath:       v.GetString("ffmpeg_path"),
			FFmpegImage:      v.GetString("ffmpeg_image"),
			OutputDir:        v.GetString("hls_output_dir"),
			ServeURL:         strings.TrimRight(v.GetString("hls_serve_url"), "/"),
			SegmentSeconds:   v.GetInt("hls_segment_seconds"),
			ReadyTimeout:     v.GetDuration("stream_ready_timeout"),
			PollInterval:     v.GetDuration("stream_poll_interval"),
			MinManifestBytes: v.GetInt64("stream_min_manifest_bytes"),
			StopGrace:        v.GetDuration("stream_stop_grace"),
		},
		Playlist: PlaylistConfig{
			AudioDir:       v.GetString("audio_dir"),
			DefaultReciter: v.GetString("default_reciter"),
			SegmentTable:   v.GetString("segment_table"),
			SegmentVersion: v.GetString("segment_table_version"),
		},
		Notify: NotifyConfig{
			FrontendURL:        strings.TrimRight(v.GetString("frontend_url"), "/"),
			TwilioAccountSID:   v.GetString("twilio_account_sid"),
			TwilioAuthToken:    v.GetString("twilio_auth_token"),
			TwilioWhatsAppFrom: v.GetString("twilio_whatsapp_from"),
			SMTPHost:           v.GetString("smtp_host"),
			SMTPPort:           v.GetInt("smtp_port"),
			SMTPUsername:       v.GetString("smtp_username"),
			SMTPPassword:       v.GetString("smtp_password"),
			EmailFrom:          v.GetString("email_from"),
			Rate:               v.GetFloat64("notify_rate"),
			SendTimeout:        v.GetDuration("notify_send_timeout"),
		},
	}

	delays, err := parseStartDelays(v.GetStringMapString("start_delays"))
	if err != nil {
		return nil, err
	}
	cfg.Scheduler.StartDelays = delays

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseStartDelays(raw map[string]string) (map[int]time.Duration, error) {
	delays := make(map[int]time.Duration, len(raw))
	for k, val := range raw {
		rakats, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid start_delays key %q: %w", k, err)
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid start_delays[%d]: %w", rakats, err)
		}
		delays[rakats] = d
	}
	return delays, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}
	if c.AdminAPIKey == "" {
		return fmt.Errorf("admin_api_key is required (env: ADMIN_API_KEY)")
	}
	switch c.Stream.Runtime {
	case "exec", "docker":
	default:
		return fmt.Errorf("invalid runtime %q: must be exec or docker", c.Stream.Runtime)
	}
	if len(c.Scheduler.NotifyLeads) == 0 {
		return fmt.Errorf("notify_leads must not be empty")
	}
	for _, lead := range c.Scheduler.NotifyLeads {
		if lead <= 0 {
			return fmt.Errorf("invalid notify lead %d: must be positive", lead)
		}
	}
	if c.Scheduler.BuildLead <= 0 || c.Scheduler.CleanupAfter <= 0 {
		return fmt.Errorf("build_lead and cleanup_after must be positive")
	}

	rakats := make([]int, 0, len(c.Scheduler.StartDelays))
	for r := range c.Scheduler.StartDelays {
		rakats = append(rakats, r)
	}
	sort.Ints(rakats)
	for _, r := range rakats {
		if r <= 0 {
			return fmt.Errorf("invalid start_delays key %d: rakat count must be positive", r)
		}
		if d := c.Scheduler.StartDelays[r]; d <= 0 {
			return fmt.Errorf("invalid start_delays[%d] %s: must be positive", r, d)
		}
	}

	positive := []struct {
		key string
		d   time.Duration
	}{
		{"default_start_delay", c.Scheduler.DefaultStartDelay},
		{"restart_live_delay", c.Scheduler.RestartLiveDelay},
		{"urgent_build_delay", c.Scheduler.UrgentBuildDelay},
		{"private_room_ttl", c.Scheduler.PrivateRoomTTL},
		{"private_expiry_interval", c.Scheduler.PrivateExpiryInterval},
		{"notify_send_timeout", c.Notify.SendTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("invalid %s %s: must be positive", p.key, p.d)
		}
	}
	if c.Scheduler.RecoveryDelay < 0 {
		return fmt.Errorf("invalid recovery_delay %s: must not be negative", c.Scheduler.RecoveryDelay)
	}
	return nil
}
