package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// Connection constants.
const (
	// QuickstartOrg is the organisation of the unauthenticated service.
	QuickstartOrg = "quickstart"

	// DefaultDomain is the platform messaging domain.
	DefaultDomain = "internetofthings.ibmcloud.com"

	// TokenUsername is the MQTT username used with token authentication.
	TokenUsername = "use-token-auth"

	// AuthMethodToken authenticates a device or gateway with its token.
	AuthMethodToken = "token"

	// AuthMethodAPIKey authenticates an application with an API key.
	AuthMethodAPIKey = "apikey"

	// TransportTCP and TransportWebSockets select the MQTT transport.
	TransportTCP        = "tcp"
	TransportWebSockets = "websockets"

	securePort     = 8883
	websocketPort  = 443
	quickstartPort = 1883

	// minAPIKeyLength covers the "a-" prefix plus a six character org id.
	minAPIKeyLength = 8
)

// Placeholders that older clients substituted for missing credentials.
var placeholderCredentials = map[string]bool{
	"some key":   true,
	"some token": true,
}

// Config is the root configuration structure for a Watson IoT client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Identity  IdentityConfig  `yaml:"identity"`
	Auth      AuthConfig      `yaml:"auth"`
	Options   OptionsConfig   `yaml:"options"`
	Logging   LoggingConfig   `yaml:"logging"`
	Historian HistorianConfig `yaml:"historian"`
}

// IdentityConfig names the client on the platform.
type IdentityConfig struct {
	// Role is "device", "gateway" or "application". When empty it is
	// derived from the other settings (see Config.Role).
	Role topic.Role `yaml:"role"`

	// OrgID is optional: applications derive it from their API key and
	// anything without one falls back to quickstart.
	OrgID    string `yaml:"orgId"`
	TypeID   string `yaml:"typeId"`
	DeviceID string `yaml:"deviceId"`

	// AppID identifies an application. Default: "app-<uuid>"
	AppID string `yaml:"appId"`
}

// AuthConfig contains credentials.
type AuthConfig struct {
	Key    string `yaml:"key"`
	Token  string `yaml:"token"`
	Method string `yaml:"method"`
}

// OptionsConfig contains connection options.
type OptionsConfig struct {
	Domain         string          `yaml:"domain"`
	MQTT           MQTTConfig      `yaml:"mqtt"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
	ConnectTimeout time.Duration   `yaml:"connectTimeout"`

	// AutoSubscribeCommands subscribes devices to all of their commands on
	// connect. Default: true
	AutoSubscribeCommands bool `yaml:"autoSubscribeCommands"`
}

// MQTTConfig contains transport settings.
type MQTTConfig struct {
	// Port defaults to 8883 (tcp), 443 (websockets) or 1883 (quickstart).
	Port       int           `yaml:"port"`
	Transport  string        `yaml:"transport"`
	CleanStart bool          `yaml:"cleanStart"`
	KeepAlive  time.Duration `yaml:"keepAlive"`

	// SharedSubscription lets several application instances share one
	// subscription set (client id prefix "A:").
	SharedSubscription bool `yaml:"sharedSubscription"`

	CAFile             string `yaml:"caFile"`
	CertFile           string `yaml:"certFile"`
	KeyFile            string `yaml:"keyFile"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// ReconnectConfig bounds the reconnect backoff.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HistorianConfig selects an optional sink that records inbound messages.
type HistorianConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// Historian backends.
const (
	BackendSQLite   = "sqlite"
	BackendInfluxDB = "influxdb"
	BackendKafka    = "kafka"
)

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"walMode"`
	BusyTimeout int    `yaml:"busyTimeout"`
}

// InfluxDBConfig contains InfluxDB v2 connection settings.
type InfluxDBConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batchSize"`
	FlushInterval int    `yaml:"flushInterval"` // seconds
}

// KafkaConfig contains Kafka producer settings.
type KafkaConfig struct {
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	BatchSize int      `yaml:"batchSize"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WIOTP_SECTION_KEY
// For example: WIOTP_AUTH_TOKEN, WIOTP_OPTIONS_MQTT_PORT
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// FromEnv builds a configuration from defaults and WIOTP_* variables only.
func FromEnv() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if cfg.Role() == topic.RoleApplication && cfg.Identity.AppID == "" {
		cfg.Identity.AppID = "app-" + uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults and no identity.
func Default() *Config {
	return &Config{
		Options: OptionsConfig{
			Domain: DefaultDomain,
			MQTT: MQTTConfig{
				Transport: TransportTCP,
				KeepAlive: 60 * time.Second,
			},
			Reconnect: ReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     60 * time.Second,
			},
			ConnectTimeout:        30 * time.Second,
			AutoSubscribeCommands: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Historian: HistorianConfig{
			Backend: BackendSQLite,
			SQLite: SQLiteConfig{
				Path:        "./data/wiotp.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			InfluxDB: InfluxDBConfig{
				Bucket:        "wiotp",
				BatchSize:     100,
				FlushInterval: 10,
			},
			Kafka: KafkaConfig{
				Topic:     "wiotp-messages",
				BatchSize: 100,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// A variable that is set but cannot be parsed is an error, not ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	// Identity
	if v := os.Getenv("WIOTP_IDENTITY_ROLE"); v != "" {
		cfg.Identity.Role = topic.Role(strings.ToLower(v))
	}
	str("WIOTP_IDENTITY_ORGID", &cfg.Identity.OrgID)
	str("WIOTP_IDENTITY_TYPEID", &cfg.Identity.TypeID)
	str("WIOTP_IDENTITY_DEVICEID", &cfg.Identity.DeviceID)
	str("WIOTP_IDENTITY_APPID", &cfg.Identity.AppID)

	// Auth - tokens should always come from the environment in production
	str("WIOTP_AUTH_KEY", &cfg.Auth.Key)
	str("WIOTP_AUTH_TOKEN", &cfg.Auth.Token)
	str("WIOTP_AUTH_METHOD", &cfg.Auth.Method)

	// Options
	str("WIOTP_OPTIONS_DOMAIN", &cfg.Options.Domain)
	num("WIOTP_OPTIONS_MQTT_PORT", &cfg.Options.MQTT.Port)
	str("WIOTP_OPTIONS_MQTT_TRANSPORT", &cfg.Options.MQTT.Transport)
	flag("WIOTP_OPTIONS_MQTT_CLEANSTART", &cfg.Options.MQTT.CleanStart)
	dur("WIOTP_OPTIONS_MQTT_KEEPALIVE", &cfg.Options.MQTT.KeepAlive)
	flag("WIOTP_OPTIONS_MQTT_SHAREDSUBSCRIPTION", &cfg.Options.MQTT.SharedSubscription)
	str("WIOTP_OPTIONS_MQTT_CAFILE", &cfg.Options.MQTT.CAFile)
	str("WIOTP_OPTIONS_MQTT_CERTFILE", &cfg.Options.MQTT.CertFile)
	str("WIOTP_OPTIONS_MQTT_KEYFILE", &cfg.Options.MQTT.KeyFile)
	dur("WIOTP_OPTIONS_CONNECTTIMEOUT", &cfg.Options.ConnectTimeout)
	flag("WIOTP_OPTIONS_AUTOSUBSCRIBECOMMANDS", &cfg.Options.AutoSubscribeCommands)

	// Logging
	str("WIOTP_OPTIONS_LOGLEVEL", &cfg.Logging.Level)
	str("WIOTP_LOGGING_LEVEL", &cfg.Logging.Level)

	// Historian
	flag("WIOTP_HISTORIAN_ENABLED", &cfg.Historian.Enabled)
	str("WIOTP_HISTORIAN_BACKEND", &cfg.Historian.Backend)
	str("WIOTP_HISTORIAN_SQLITE_PATH", &cfg.Historian.SQLite.Path)
	str("WIOTP_HISTORIAN_INFLUXDB_URL", &cfg.Historian.InfluxDB.URL)
	str("WIOTP_HISTORIAN_INFLUXDB_TOKEN", &cfg.Historian.InfluxDB.Token)
	if v := os.Getenv("WIOTP_HISTORIAN_KAFKA_BROKERS"); v != "" {
		cfg.Historian.Kafka.Brokers = strings.Split(v, ",")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Every problem is reported in one error. Credential problems additionally
// match ErrAuthentication, everything else matches ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs, authErrs []string

	role := c.Role()
	if !role.Valid() {
		errs = append(errs, fmt.Sprintf("identity.role %q must be device, gateway or application", c.Identity.Role))
	}

	credential := func(name, v string) {
		switch {
		case v == "":
			authErrs = append(authErrs, name+" is required")
		case placeholderCredentials[strings.ToLower(v)]:
			authErrs = append(authErrs, name+" is a placeholder value")
		}
	}

	switch role {
	case topic.RoleDevice, topic.RoleGateway:
		if !validSegment(c.Identity.TypeID) {
			errs = append(errs, "identity.typeId is required and must not contain '/', '+' or '#'")
		}
		if !validSegment(c.Identity.DeviceID) {
			errs = append(errs, "identity.deviceId is required and must not contain '/', '+' or '#'")
		}
		if c.Auth.Method != "" && c.Auth.Method != AuthMethodToken {
			errs = append(errs, fmt.Sprintf("auth.method %q is not supported for %s clients", c.Auth.Method, role))
		}
		if c.Quickstart() {
			if role == topic.RoleGateway {
				errs = append(errs, "gateways cannot connect to quickstart")
			}
		} else {
			credential("auth.token", c.Auth.Token)
		}
	case topic.RoleApplication:
		if !validSegment(c.Identity.AppID) {
			errs = append(errs, "identity.appId is required and must not contain '/', '+' or '#'")
		}
		if c.Auth.Method != "" && c.Auth.Method != AuthMethodAPIKey {
			errs = append(errs, fmt.Sprintf("auth.method %q is not supported for applications", c.Auth.Method))
		}
		if c.Auth.Key != "" || !c.Quickstart() {
			credential("auth.key", c.Auth.Key)
			credential("auth.token", c.Auth.Token)
			if c.Auth.Key != "" && len(c.Auth.Key) < minAPIKeyLength {
				authErrs = append(authErrs, "auth.key is not a valid API key")
			}
		}
	}

	// Options validation
	if c.Options.Domain == "" {
		errs = append(errs, "options.domain is required")
	}
	switch c.Options.MQTT.Transport {
	case TransportTCP, TransportWebSockets:
	default:
		errs = append(errs, fmt.Sprintf("options.mqtt.transport %q must be tcp or websockets", c.Options.MQTT.Transport))
	}
	if c.Options.MQTT.Port < 0 || c.Options.MQTT.Port > 65535 {
		errs = append(errs, "options.mqtt.port must be between 1 and 65535")
	}
	if (c.Options.MQTT.CertFile == "") != (c.Options.MQTT.KeyFile == "") {
		errs = append(errs, "options.mqtt.certFile and options.mqtt.keyFile must be set together")
	}
	if c.Options.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "options.reconnect.initialDelay must be positive")
	}
	if c.Options.Reconnect.MaxDelay < c.Options.Reconnect.InitialDelay {
		errs = append(errs, "options.reconnect.maxDelay must not be less than initialDelay")
	}
	if c.Options.ConnectTimeout <= 0 {
		errs = append(errs, "options.connectTimeout must be positive")
	}

	if c.Historian.Enabled {
		errs = append(errs, c.Historian.validate()...)
	}

	if len(errs) == 0 && len(authErrs) == 0 {
		return nil
	}

	all := strings.Join(append(authErrs, errs...), "; ")
	if len(authErrs) > 0 {
		return fmt.Errorf("%w: %w: %s", ErrAuthentication, ErrInvalidConfig, all)
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, all)
}

func (h HistorianConfig) validate() []string {
	var errs []string
	switch h.Backend {
	case BackendSQLite:
		if h.SQLite.Path == "" {
			errs = append(errs, "historian.sqlite.path is required")
		}
	case BackendInfluxDB:
		if h.InfluxDB.URL == "" {
			errs = append(errs, "historian.influxdb.url is required")
		}
		if h.InfluxDB.Org == "" || h.InfluxDB.Bucket == "" {
			errs = append(errs, "historian.influxdb.org and bucket are required")
		}
	case BackendKafka:
		if len(h.Kafka.Brokers) == 0 {
			errs = append(errs, "historian.kafka.brokers is required")
		}
		if h.Kafka.Topic == "" {
			errs = append(errs, "historian.kafka.topic is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("historian.backend %q must be sqlite, influxdb or kafka", h.Backend))
	}
	return errs
}

// Role returns the configured role. When none is set an API key or a
// missing device identity selects the application role, otherwise device.
func (c *Config) Role() topic.Role {
	switch {
	case c.Identity.Role != "":
		return c.Identity.Role
	case c.Auth.Key != "", c.Identity.TypeID == "" && c.Identity.DeviceID == "":
		return topic.RoleApplication
	default:
		return topic.RoleDevice
	}
}

// OrgID returns the organisation: explicit, else taken from the API key,
// else quickstart.
func (c *Config) OrgID() string {
	if c.Identity.OrgID != "" {
		return c.Identity.OrgID
	}
	if key := strings.TrimSpace(c.Auth.Key); len(key) >= minAPIKeyLength {
		return key[2:8]
	}
	return QuickstartOrg
}

// Quickstart reports whether the client targets the quickstart service.
func (c *Config) Quickstart() bool {
	return c.OrgID() == QuickstartOrg
}

// ClientID returns the MQTT client identifier for the configured role.
func (c *Config) ClientID() string {
	org := c.OrgID()
	switch c.Role() {
	case topic.RoleGateway:
		return "g:" + org + ":" + c.Identity.TypeID + ":" + c.Identity.DeviceID
	case topic.RoleApplication:
		if c.Options.MQTT.SharedSubscription {
			return "A:" + org + ":" + c.Identity.AppID
		}
		return "a:" + org + ":" + c.Identity.AppID
	default:
		return "d:" + org + ":" + c.Identity.TypeID + ":" + c.Identity.DeviceID
	}
}

// BrokerURL returns the broker address.
func (c *Config) BrokerURL() string {
	org := c.OrgID()
	host := org + ".messaging." + c.Options.Domain

	if c.Quickstart() {
		return "tcp://" + net.JoinHostPort(host, strconv.Itoa(quickstartPort))
	}

	scheme, port := "ssl", securePort
	if c.Options.MQTT.Transport == TransportWebSockets {
		scheme, port = "wss", websocketPort
	}
	if c.Options.MQTT.Port != 0 {
		port = c.Options.MQTT.Port
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Username returns the MQTT username. Empty for quickstart.
func (c *Config) Username() string {
	switch {
	case c.Quickstart():
		return ""
	case c.Role() == topic.RoleApplication:
		return c.Auth.Key
	default:
		return TokenUsername
	}
}

// Password returns the MQTT password. Empty for quickstart.
func (c *Config) Password() string {
	if c.Quickstart() {
		return ""
	}
	return c.Auth.Token
}

// TLSConfig builds the TLS settings for the connection, or nil for
// quickstart.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if c.Quickstart() {
		return nil, nil
	}

	m := c.Options.MQTT
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: m.InsecureSkipVerify, //nolint:gosec // opt-in for test brokers
	}

	if m.CAFile != "" {
		pem, err := os.ReadFile(m.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidConfig, m.CAFile)
		}
		tc.RootCAs = pool
	}

	if m.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(m.CertFile, m.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

func validSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#")
}
