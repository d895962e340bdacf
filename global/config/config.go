package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DOCDOOR_"

// Load reads path over a copy of Global, then applies DOCDOOR_* environment
// overrides. An empty path skips the file.
func Load(path string) (*AppConfig, error) {
	cfg := Global
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnv(&cfg)
	cfg.norm()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// norm fills zero values left by a partial file with the defaults.
func (c *AppConfig) norm() {
	d := Global.Realtime
	r := &c.Realtime
	if r.ConnectTimeout <= 0 {
		r.ConnectTimeout = d.ConnectTimeout
	}
	if r.WaitTimeout <= 0 {
		r.WaitTimeout = d.WaitTimeout
	}
	if r.MaxReconnects < 0 {
		r.MaxReconnects = 0
	}
	if r.ReconnectBase <= 0 {
		r.ReconnectBase = d.ReconnectBase
	}
	if r.ReconnectMax <= 0 {
		r.ReconnectMax = d.ReconnectMax
	}
	if r.WriteWait <= 0 {
		r.WriteWait = d.WriteWait
	}
	if r.DedupTTL <= 0 {
		r.DedupTTL = d.DedupTTL
	}
	if c.Nats.SubjectPrefix == "" {
		c.Nats.SubjectPrefix = Global.Nats.SubjectPrefix
	}
}

// Validate rejects configurations the manager cannot run with.
func (c *AppConfig) Validate() error {
	r := c.Realtime
	if strings.TrimSpace(r.ChatBaseURL) == "" {
		return errors.New("realtime.chat_base_url is required")
	}
	if strings.TrimSpace(r.NotificationBaseURL) == "" {
		return errors.New("realtime.notification_base_url is required")
	}
	for name, u := range map[string]string{"chat_base_url": r.ChatBaseURL, "notification_base_url": r.NotificationBaseURL} {
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return errors.Errorf("realtime.%s must be a ws:// or wss:// url, got %q", name, u)
		}
	}
	if r.ReconnectMax < r.ReconnectBase {
		return errors.Errorf("realtime.reconnect_max (%s) is below reconnect_base (%s)", r.ReconnectMax, r.ReconnectBase)
	}
	return nil
}

func applyEnv(c *AppConfig) {
	if v := getEnv("CHAT_BASE_URL"); v != "" {
		c.Realtime.ChatBaseURL = v
	}
	if v := getEnv("NOTIFICATION_BASE_URL"); v != "" {
		c.Realtime.NotificationBaseURL = v
	}
	if v := getEnv("MAX_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Realtime.MaxReconnects = n
		}
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getEnv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getEnv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getEnv("NATS_SERVERS"); v != "" {
		c.Nats.Servers = splitList(v)
	}
	if v := getEnv("STATUS_ADDR"); v != "" {
		c.Status.Addr = v
	}
	if v := getEnv("STATUS_TOKEN"); v != "" {
		c.Status.Token = v
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
