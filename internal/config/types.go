package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Promo     PromoConfig     `json:"promo,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminUserIDs may use the broadcast admin panel.
	AdminUserIDs []int64 `json:"admin_user_ids"`
	// OperatorChat receives warn+ log alerts (optional).
	OperatorChat string `json:"operator_chat,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// BroadcastConfig controls draft scheduling input and fan-out pacing.
//
// Defaults (when fields are omitted/zero):
//   - utc_offset: "+03:00"
//   - pause_every: 30 sends
//   - pause_for: "1s"
//   - progress_every: 50 recipients
//   - retention_days: 90
type BroadcastConfig struct {
	// UTCOffset is the fixed offset scheduling input is interpreted in,
	// formatted "+03:00" / "-05:00".
	UTCOffset     string `json:"utc_offset,omitempty"`
	PauseEvery    int    `json:"pause_every,omitempty"`
	PauseFor      string `json:"pause_for,omitempty"`
	ProgressEvery int    `json:"progress_every,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

// SchedulerConfig controls the scheduled-broadcast poller.
//
// Defaults: poll_interval "30s", near_window "10m".
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	PollInterval string `json:"poll_interval,omitempty"`
	NearWindow   string `json:"near_window,omitempty"`
}

// PromoConfig controls the one-shot delayed promo message sent to newly seen
// users.
type PromoConfig struct {
	Enabled      bool `json:"enabled"`
	DelayMinutes int  `json:"delay_minutes,omitempty"` // default 15
}
