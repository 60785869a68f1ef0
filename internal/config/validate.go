package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAccountBaseURL  = "https://asia.api.riotgames.com"
	DefaultPlatformBaseURL = "https://me1.api.riotgames.com"
	DefaultRosterPath      = "id_list.txt"
	DefaultReportPath      = "rank_list_daily.html"
	DefaultChunkSize       = 50
	DefaultRefreshAt       = "03:00"
	DefaultTZOffsetHours   = 9
	DefaultHTTPAddr        = "127.0.0.1:8080"
)

// ApplyDefaults fills zero values. Durations stay strings; ParseDuration
// supplies their defaults at the use site.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Riot.AccountBaseURL) == "" {
		c.Riot.AccountBaseURL = DefaultAccountBaseURL
	}
	if strings.TrimSpace(c.Riot.PlatformBaseURL) == "" {
		c.Riot.PlatformBaseURL = DefaultPlatformBaseURL
	}
	if c.Riot.RatePerSec <= 0 {
		c.Riot.RatePerSec = 20
	}
	if c.Riot.Burst <= 0 {
		c.Riot.Burst = c.Riot.RatePerSec
	}
	if strings.TrimSpace(c.Roster.Path) == "" {
		c.Roster.Path = DefaultRosterPath
	}
	if strings.TrimSpace(c.Report.Path) == "" {
		c.Report.Path = DefaultReportPath
	}
	if strings.TrimSpace(c.Report.Title) == "" {
		c.Report.Title = "LoL Ranked Leaderboard"
	}
	if c.Batch.ChunkSize <= 0 {
		c.Batch.ChunkSize = DefaultChunkSize
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = c.Batch.ChunkSize
	}
	if strings.TrimSpace(c.Scheduler.At) == "" {
		c.Scheduler.At = DefaultRefreshAt
	}
	if c.Scheduler.TZOffsetHours == nil {
		off := DefaultTZOffsetHours
		c.Scheduler.TZOffsetHours = &off
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "INFO"
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
}

// Validate checks the fields needed by every run mode. Telegram credentials
// are checked separately by RequireTelegram since the one-shot mode runs
// without a chat platform.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Riot.APIKey) == "" {
		errs = append(errs, errors.New("riot.api_key is required"))
	}
	if c.Batch.Concurrency > c.Batch.ChunkSize {
		errs = append(errs, fmt.Errorf("batch.concurrency (%d) must be <= batch.chunk_size (%d)", c.Batch.Concurrency, c.Batch.ChunkSize))
	}
	if _, _, err := ParseHHMM(c.Scheduler.At); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.at: %w", err))
	}
	if off := c.Scheduler.TZOffsetHours; off != nil && (*off < -12 || *off > 14) {
		errs = append(errs, fmt.Errorf("scheduler.tz_offset_hours: %d out of range [-12,14]", *off))
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}
	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"riot.timeout", c.Riot.Timeout},
		{"riot.fetch_delay", c.Riot.FetchDelay},
		{"batch.pause", c.Batch.Pause},
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.idle_timeout", c.HTTP.IdleTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDuration(d.path, d.raw, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequireTelegram validates the fields the chat bot needs.
func (c *Config) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	return nil
}

// Location resolves the scheduler zone: the IANA timezone when set,
// otherwise a fixed UTC offset.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		return time.LoadLocation(tz)
	}
	off := DefaultTZOffsetHours
	if c.TZOffsetHours != nil {
		off = *c.TZOffsetHours
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", off), off*3600), nil
}

// ParseDuration parses a Go duration string. Empty or zero yields def.
func ParseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// ParseHHMM parses a wall-clock "HH:MM" (00:00..23:59).
func ParseHHMM(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
