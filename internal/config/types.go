package config

// Config is the whole process configuration. It is loaded once at startup
// and never reloaded.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Riot      RiotConfig      `json:"riot"`
	Roster    RosterConfig    `json:"roster"`
	Report    ReportConfig    `json:"report"`
	Batch     BatchConfig     `json:"batch"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ReportChatID receives the scheduled report. 0 disables publishing.
	ReportChatID   int64 `json:"report_chat_id,omitempty"`
	ReportThreadID int   `json:"report_thread_id,omitempty"`
	// GroupLog is the chat that receives forwarded warnings (chat log sink).
	GroupLog int64 `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// RiotConfig points at the account (regional) and league (platform) hosts.
//
// Defaults:
//   - account_base_url: https://asia.api.riotgames.com
//   - platform_base_url: https://me1.api.riotgames.com
//   - rate_per_sec: 20, burst: 20
//   - timeout: "10s"
//   - fetch_delay: "500ms" (between account and league calls)
type RiotConfig struct {
	APIKey          string `json:"api_key"`
	AccountBaseURL  string `json:"account_base_url,omitempty"`
	PlatformBaseURL string `json:"platform_base_url,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	Burst           int    `json:"burst,omitempty"`
	Timeout         string `json:"timeout,omitempty"`
	FetchDelay      string `json:"fetch_delay,omitempty"`
}

type RosterConfig struct {
	Path  string `json:"path"`
	Watch bool   `json:"watch,omitempty"`
}

type ReportConfig struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// BatchConfig controls fan-out during a refresh.
// Concurrency defaults to ChunkSize.
type BatchConfig struct {
	ChunkSize   int    `json:"chunk_size,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
	Pause       string `json:"pause,omitempty"`
}

// SchedulerConfig sets the daily refresh time.
//
// At is "HH:MM". The zone is Timezone (IANA) when set, otherwise a fixed
// offset of TZOffsetHours from UTC (default +9).
type SchedulerConfig struct {
	Enabled       bool   `json:"enabled"`
	At            string `json:"at,omitempty"`
	TZOffsetHours *int   `json:"tz_offset_hours,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HTTPConfig controls the operational HTTP server (/healthz, /metrics,
// /report and optionally pprof).
//
// Security note: prefer a loopback addr. A non-loopback addr needs a token
// or allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:8080"
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
