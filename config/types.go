package config

import "time"

type AppConfig struct {
	DBDriver   string        `yaml:"db_driver" env:"CIVICWATCH_DB_DRIVER" env-default:"sqlite"`
	DBURL      string        `yaml:"db_url" env:"CIVICWATCH_DB_URL"`
	DBPath     string        `yaml:"db_path" env:"CIVICWATCH_DB_PATH" env-default:"data/civicwatch.db"`
	ListenAddr string        `yaml:"listen_addr" env:"CIVICWATCH_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"CIVICWATCH_SESSION_TTL" env-default:"3h"`
	Pepper     string        `yaml:"pepper" env:"CIVICWATCH_PEPPER"`

	Incidents     IncidentsConfig     `yaml:"incidents"`
	Escalation    EscalationConfig    `yaml:"escalation"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

type IncidentsConfig struct {
	// SLAResponseMinutes is how long an incident may sit in "reported"
	// before it counts as overdue.
	SLAResponseMinutes int `yaml:"sla_response_minutes" env:"CIVICWATCH_SLA_RESPONSE_MINUTES" env-default:"60"`
	ConflictRetries    int `yaml:"conflict_retries" env:"CIVICWATCH_CONFLICT_RETRIES" env-default:"3"`
}

type EscalationConfig struct {
	Enabled bool `yaml:"enabled" env:"CIVICWATCH_ESCALATION_ENABLED" env-default:"true"`
	// SweepSpec is a cron spec for the escalation sweep over non-terminal
	// incidents, e.g. "@every 1m".
	SweepSpec string `yaml:"sweep_spec" env:"CIVICWATCH_ESCALATION_SWEEP_SPEC" env-default:"@every 1m"`
}

type NotificationsConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"CIVICWATCH_NOTIFY_WEBHOOK_URL"`
	TimeoutSec int    `yaml:"timeout_sec" env:"CIVICWATCH_NOTIFY_TIMEOUT" env-default:"10"`
}

const maxUserSessionTTL = 12 * time.Hour

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	ttl := maxUserSessionTTL
	if c != nil && c.SessionTTL > 0 {
		ttl = c.SessionTTL
	}
	if ttl > maxUserSessionTTL {
		return maxUserSessionTTL
	}
	return ttl
}

func (c *AppConfig) EffectiveConflictRetries() int {
	if c == nil || c.Incidents.ConflictRetries <= 0 {
		return 3
	}
	return c.Incidents.ConflictRetries
}
