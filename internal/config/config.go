package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Postgres    *PostgresConfig
	Redis       *RedisConfig
	Chat        *ChatConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type ChatConfig struct {
	// ReplayLimit is the number of most recent messages replayed to a
	// connection right after it joins a room.
	ReplayLimit int
	// RosterTTL is how long a roster entry lives without a refresh.
	RosterTTL time.Duration
	// HeartbeatEvery is the roster refresh interval per connection.
	HeartbeatEvery time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Address string
}
