package config

import "time"

// AppConfig is the full client configuration. Every section has a usable default
// in Global so the manager can run against a local gateway with no file at all.
type AppConfig struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Nats     NatsConfig     `yaml:"nats"`
	Status   StatusConfig   `yaml:"status"`
}

type RealtimeConfig struct {
	ChatBaseURL         string        `yaml:"chat_base_url"`         // ws://host/ws/chat
	NotificationBaseURL string        `yaml:"notification_base_url"` // ws://host/ws/notifications
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`       // still connecting after this -> force close
	WaitTimeout         time.Duration `yaml:"wait_timeout"`          // waiting on another caller's attempt
	MaxReconnects       int           `yaml:"max_reconnect_attempts"`
	ReconnectBase       time.Duration `yaml:"reconnect_base"`
	ReconnectMax        time.Duration `yaml:"reconnect_max"`
	PingInterval        time.Duration `yaml:"ping_interval"`
	WriteWait           time.Duration `yaml:"write_wait"`
	DedupTTL            time.Duration `yaml:"dedup_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig enables the shared duplicate-suppression store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// NatsConfig enables event forwarding when Servers is non-empty.
type NatsConfig struct {
	Servers       []string `yaml:"servers"`
	Name          string   `yaml:"name"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

// StatusConfig enables the HTTP status endpoint when Addr is set. A non-empty
// Token is required as a bearer credential on every request.
type StatusConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

var Global = AppConfig{
	Realtime: RealtimeConfig{
		ChatBaseURL:         "ws://127.0.0.1:8000/ws/chat",
		NotificationBaseURL: "ws://127.0.0.1:8000/ws/notifications",
		ConnectTimeout:      15 * time.Second,
		WaitTimeout:         10 * time.Second,
		MaxReconnects:       5,
		ReconnectBase:       time.Second,
		ReconnectMax:        30 * time.Second,
		PingInterval:        25 * time.Second,
		WriteWait:           10 * time.Second,
		DedupTTL:            2 * time.Minute,
	},
	Log: LogConfig{Level: "info"},
	Nats: NatsConfig{
		Name:          "docdoor-client",
		SubjectPrefix: "docdoor",
	},
}
