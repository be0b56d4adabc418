package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	// Environment
	Environment EnvironmentConfig

	// Server
	HTTPServer HTTPServerConfig
	Logger     LoggerConfig

	// Calendar sides
	Google GoogleConfig
	CalDAV CalDAVConfig

	// Reconciliation behaviour
	Sync SyncConfig

	// Push notifications
	Webhook WebhookConfig
}

type EnvironmentConfig struct {
	Name string
}

type HTTPServerConfig struct {
	Port int
	Mode string
}

type LoggerConfig struct {
	Level        string
	Mode         string
	Encoding     string
	ColorEnabled bool
}

type GoogleConfig struct {
	CredentialsPath   string
	TokenPath         string
	CalendarID        string
	RequestsPerSecond float64
}

type CalDAVConfig struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarPath string
}

// SyncConfig is the behaviour of a reconciliation pass. Direction is
// one of right-to-left, left-to-right, bidirectional; the Google side
// is right, the CalDAV side is left.
type SyncConfig struct {
	Direction  string
	Schedule   string // cron expression, e.g. "@every 10m"
	DaysPast   int
	DaysFuture int

	MergeItems              bool
	DisableDelete           bool
	ConfirmDeletes          bool
	SyncDescriptions        bool
	DescriptionsToRightOnly bool
	SyncAttendees           bool
	SyncReminders           bool
	MaxAttendees            int

	EnforcePrivate   bool
	EnforceAvailable bool
	EnforcementSide  string // "left" or "right"
	CreatedItemsOnly bool

	ReminderDND bool
	DNDStart    string // wall clock, e.g. "22:00"
	DNDEnd      string

	Obfuscation ObfuscationConfig
}

type ObfuscationConfig struct {
	Enabled   bool
	Direction string
	Rules     []ObfuscationRule
}

type ObfuscationRule struct {
	Find    string
	Replace string
}

type WebhookConfig struct {
	Enabled      bool
	ChannelToken string
	CallbackURL  string
}

// Load loads configuration using Viper.
// Config file name: config.yaml — searched in ./config, ., /etc/calsync/
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/calsync/")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}

	// Environment & Server
	cfg.Environment.Name = viper.GetString("environment.name")
	cfg.HTTPServer.Port = viper.GetInt("http_server.port")
	cfg.HTTPServer.Mode = viper.GetString("http_server.mode")
	cfg.Logger.Level = viper.GetString("logger.level")
	cfg.Logger.Mode = viper.GetString("logger.mode")
	cfg.Logger.Encoding = viper.GetString("logger.encoding")
	cfg.Logger.ColorEnabled = viper.GetBool("logger.color_enabled")

	// Google side
	cfg.Google.CredentialsPath = viper.GetString("google.credentials_path")
	cfg.Google.TokenPath = viper.GetString("google.token_path")
	cfg.Google.CalendarID = viper.GetString("google.calendar_id")
	cfg.Google.RequestsPerSecond = viper.GetFloat64("google.requests_per_second")
	if googleCreds := viper.GetString("google_credentials"); googleCreds != "" {
		cfg.Google.CredentialsPath = googleCreds
	}

	// CalDAV side
	cfg.CalDAV.Endpoint = viper.GetString("caldav.endpoint")
	cfg.CalDAV.Username = viper.GetString("caldav.username")
	cfg.CalDAV.Password = expandEnvVar(viper.GetString("caldav.password"))
	cfg.CalDAV.CalendarPath = viper.GetString("caldav.calendar_path")
	if caldavPassword := viper.GetString("caldav_password"); caldavPassword != "" {
		cfg.CalDAV.Password = caldavPassword
	}
	if cfg.CalDAV.Endpoint == "" {
		return nil, fmt.Errorf("caldav.endpoint is required")
	}

	// Reconciliation behaviour
	cfg.Sync.Direction = viper.GetString("sync.direction")
	cfg.Sync.Schedule = viper.GetString("sync.schedule")
	cfg.Sync.DaysPast = viper.GetInt("sync.days_past")
	cfg.Sync.DaysFuture = viper.GetInt("sync.days_future")
	cfg.Sync.MergeItems = viper.GetBool("sync.merge_items")
	cfg.Sync.DisableDelete = viper.GetBool("sync.disable_delete")
	cfg.Sync.ConfirmDeletes = viper.GetBool("sync.confirm_deletes")
	cfg.Sync.SyncDescriptions = viper.GetBool("sync.descriptions")
	cfg.Sync.DescriptionsToRightOnly = viper.GetBool("sync.descriptions_to_right_only")
	cfg.Sync.SyncAttendees = viper.GetBool("sync.attendees")
	cfg.Sync.SyncReminders = viper.GetBool("sync.reminders")
	cfg.Sync.MaxAttendees = viper.GetInt("sync.max_attendees")
	cfg.Sync.EnforcePrivate = viper.GetBool("sync.enforce_private")
	cfg.Sync.EnforceAvailable = viper.GetBool("sync.enforce_available")
	cfg.Sync.EnforcementSide = viper.GetString("sync.enforcement_side")
	cfg.Sync.CreatedItemsOnly = viper.GetBool("sync.created_items_only")
	cfg.Sync.ReminderDND = viper.GetBool("sync.reminder_dnd")
	cfg.Sync.DNDStart = viper.GetString("sync.dnd_start")
	cfg.Sync.DNDEnd = viper.GetString("sync.dnd_end")

	// Obfuscation
	cfg.Sync.Obfuscation.Enabled = viper.GetBool("sync.obfuscation.enabled")
	cfg.Sync.Obfuscation.Direction = viper.GetString("sync.obfuscation.direction")
	if viper.IsSet("sync.obfuscation.rules") {
		rulesRaw := viper.Get("sync.obfuscation.rules")
		if rulesList, ok := rulesRaw.([]interface{}); ok {
			for _, r := range rulesList {
				if ruleMap, ok := r.(map[string]interface{}); ok {
					cfg.Sync.Obfuscation.Rules = append(cfg.Sync.Obfuscation.Rules, ObfuscationRule{
						Find:    getStringFromMap(ruleMap, "find"),
						Replace: getStringFromMap(ruleMap, "replace"),
					})
				}
			}
		}
	}

	// Webhooks
	cfg.Webhook.Enabled = viper.GetBool("webhook.enabled")
	cfg.Webhook.ChannelToken = viper.GetString("webhook.channel_token")
	cfg.Webhook.CallbackURL = viper.GetString("webhook.callback_url")
	if channelToken := viper.GetString("webhook_channel_token"); channelToken != "" {
		cfg.Webhook.ChannelToken = channelToken
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("environment.name", "development")
	viper.SetDefault("http_server.port", 8080)
	viper.SetDefault("http_server.mode", "debug")
	viper.SetDefault("logger.level", "debug")
	viper.SetDefault("logger.mode", "debug")
	viper.SetDefault("logger.encoding", "console")
	viper.SetDefault("logger.color_enabled", true)

	viper.SetDefault("google.calendar_id", "primary")
	viper.SetDefault("google.token_path", "token.json")
	viper.SetDefault("google.requests_per_second", 5)

	viper.SetDefault("sync.direction", "right-to-left")
	viper.SetDefault("sync.schedule", "@every 10m")
	viper.SetDefault("sync.days_past", 1)
	viper.SetDefault("sync.days_future", 60)
	viper.SetDefault("sync.descriptions", true)
	viper.SetDefault("sync.attendees", true)
	viper.SetDefault("sync.reminders", true)
	viper.SetDefault("sync.max_attendees", 150)
	viper.SetDefault("sync.enforcement_side", "left")
	viper.SetDefault("sync.dnd_start", "22:00")
	viper.SetDefault("sync.dnd_end", "06:00")

	viper.SetDefault("webhook.enabled", false)
}

// expandEnvVar expands environment variables in the format ${VAR_NAME}
func expandEnvVar(value string) string {
	if value == "" {
		return value
	}

	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envVar := value[2 : len(value)-1]
		if envValue := viper.GetString(envVar); envValue != "" {
			return envValue
		}
		if envValue := viper.GetString(strings.ToLower(envVar)); envValue != "" {
			return envValue
		}
		if envValue := os.Getenv(envVar); envValue != "" {
			return envValue
		}
	}

	return value
}

// Helper function to safely extract values from map[string]interface{}
func getStringFromMap(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
