package clickhouse

import "time"

// Config is the clickhouse section of the application config.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"finpolicy"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	AsyncInsert  bool          `yaml:"async_insert"`
}

// Enabled reports whether a host is configured.
func (c Config) Enabled() bool { return c.Host != "" }

// Options maps the config section onto client options.
func (c Config) Options() []ClientOption {
	return []ClientOption{
		WithHost(c.Host),
		WithPort(c.Port),
		WithDatabase(c.Database),
		WithCredentials(c.User, c.Password),
		WithMaxConnections(c.MaxOpenConns, c.MaxIdleConns),
		WithTimeouts(c.DialTimeout, c.ReadTimeout, 0),
		WithAsyncInsert(c.AsyncInsert, true),
	}
}

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds connection settings.
type ClientConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	UseHTTP         bool
	AsyncInsert     bool
	WaitForAsync    bool
	MaxExecTime     time.Duration
}

// WithHost sets the server host.
func WithHost(host string) ClientOption {
	return func(c *ClientConfig) { c.Host = host }
}

// WithPort sets the server port.
func WithPort(port int) ClientOption {
	return func(c *ClientConfig) { c.Port = port }
}

// WithDatabase sets the database name.
func WithDatabase(database string) ClientOption {
	return func(c *ClientConfig) { c.Database = database }
}

// WithCredentials sets username and password.
func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User = user
		c.Password = password
	}
}

// WithMaxConnections sets max open and idle connections.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithTimeouts sets dial, read and write timeouts. Zero keeps the default.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
	}
}

// WithHTTP switches to the HTTP protocol.
func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) { c.UseHTTP = useHTTP }
}

// WithAsyncInsert configures async_insert and wait_for_async_insert.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert = enabled
		c.WaitForAsync = wait
	}
}

// WithMaxExecutionTime sets max_execution_time per query.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
