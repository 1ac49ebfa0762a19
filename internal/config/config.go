// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Watchdog configures the liveness monitor.
type Watchdog struct {
	Enabled   bool   `yaml:"enabled"`
	TimeoutMS uint32 `yaml:"timeout_ms"`
}

// Power configures the sleep policy.
type Power struct {
	SaveEnabled     bool   `yaml:"save_enabled"`
	SleepLevel      uint8  `yaml:"sleep_level"`
	SleepDurationMS uint32 `yaml:"sleep_duration_ms"`
}

// Sensors configures self-test, calibration and noise of the synthetic sensor bank.
type Sensors struct {
	SelfTestFailureRate    float64 `yaml:"self_test_failure_rate"`
	CalibrationFailureRate float64 `yaml:"calibration_failure_rate"`
	NoiseLevel             float64 `yaml:"noise_level"`
	Seed                   int64   `yaml:"seed"`
}

// AMQP holds RabbitMQ publisher settings.
type AMQP struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	VHost      string `yaml:"vhost"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// URL renders the amqp:// connection string.
func (a AMQP) URL() string {
	vhost := a.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", url.QueryEscape(a.Username), url.QueryEscape(a.Password), a.Host, a.Port, url.PathEscape(vhost))
}

// MQTT holds MQTT publisher settings.
type MQTT struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// Redis holds Redis Streams publisher settings.
type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// Greptime holds GreptimeDB ingestion settings.
type Greptime struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Database    string `yaml:"database"`
	Table       string `yaml:"table"`
	StatusTable string `yaml:"status_table"`
}

// Sinks selects which telemetry sinks the run command builds.
type Sinks struct {
	Console  bool     `yaml:"console"`
	LogFile  string   `yaml:"log_file"`
	AMQP     AMQP     `yaml:"amqp"`
	MQTT     MQTT     `yaml:"mqtt"`
	Redis    Redis    `yaml:"redis"`
	Greptime Greptime `yaml:"greptime"`
	Retries  int      `yaml:"retries"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Admin configures the status HTTP server.
type Admin struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Journal configures the Postgres event journal.
type Journal struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Buffer  int    `yaml:"buffer"`
}

// Config is the root configuration for one headset run.
type Config struct {
	DeviceID         string   `yaml:"device_id"`
	SystemClockHz    uint32   `yaml:"system_clock_hz"`
	SensorRateHz     uint32   `yaml:"sensor_rate_hz"`
	TelemetryRateHz  uint32   `yaml:"telemetry_rate_hz"`
	Watchdog         Watchdog `yaml:"watchdog"`
	Power            Power    `yaml:"power"`
	Sensors          Sensors  `yaml:"sensors"`
	IdleYieldUS      uint32   `yaml:"idle_yield_us"`
	StatusEveryTicks uint32   `yaml:"status_every_ticks"`
	DurationS        uint32   `yaml:"duration_s"`
	Sinks            Sinks    `yaml:"sinks"`
	Log              Log      `yaml:"log"`
	Admin            Admin    `yaml:"admin"`
	Journal          Journal  `yaml:"journal"`
}

// Defaults returns the stock headset configuration: a 168 MHz Cortex-M4 class
// controller sampling at 1 kHz and publishing at 60 Hz to RabbitMQ on
// localhost.
func Defaults() *Config {
	return &Config{
		SystemClockHz:    168000000,
		SensorRateHz:     1000,
		TelemetryRateHz:  60,
		Watchdog:         Watchdog{Enabled: true, TimeoutMS: 5000},
		Power:            Power{SaveEnabled: false, SleepLevel: 1, SleepDurationMS: 10},
		Sensors:          Sensors{SelfTestFailureRate: 0.05},
		IdleYieldUS:      100,
		StatusEveryTicks: 1000,
		Sinks: Sinks{
			Console: true,
			AMQP: AMQP{
				Enabled:    true,
				Host:       "localhost",
				Port:       5672,
				Username:   "guest",
				Password:   "guest",
				VHost:      "/",
				Exchange:   "vr_telemetry",
				RoutingKey: "telemetry.data",
			},
			MQTT:     MQTT{Broker: "tcp://localhost:1883", Topic: "vr/telemetry", QoS: 0},
			Redis:    Redis{Addr: "localhost:6379", Stream: "vr:telemetry", MaxLen: 10000},
			Greptime: Greptime{Database: "public", Table: "vr_telemetry", StatusTable: "vr_status"},
		},
		Log:     Log{Level: "info", Format: "console"},
		Admin:   Admin{Addr: ":8080"},
		Journal: Journal{Buffer: 256},
	}
}

// Load reads a YAML config on top of Defaults and validates it against a CUE
// schema. An empty cueSchemaPath skips schema validation.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides backend connection settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("VRHS_AMQP_HOST"); v != "" {
		c.Sinks.AMQP.Host = v
		c.Sinks.AMQP.Enabled = true
	}
	if v := os.Getenv("VRHS_MQTT_BROKER"); v != "" {
		c.Sinks.MQTT.Broker = v
		c.Sinks.MQTT.Enabled = true
	}
	if v := os.Getenv("VRHS_REDIS_ADDR"); v != "" {
		c.Sinks.Redis.Addr = v
		c.Sinks.Redis.Enabled = true
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Sinks.Greptime.Endpoint = v
		c.Sinks.Greptime.Enabled = true
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Sinks.Greptime.Table = v
	}
	if v := os.Getenv("VRHS_JOURNAL_DSN"); v != "" {
		c.Journal.DSN = v
		c.Journal.Enabled = true
	}
	if v := os.Getenv("VRHS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects configurations the scheduler cannot run. A telemetry rate
// above the sensor rate is allowed.
func (c *Config) Validate() error {
	var errs []error
	if c.SensorRateHz == 0 {
		errs = append(errs, errors.New("sensor_rate_hz must be at least 1"))
	}
	if c.TelemetryRateHz == 0 {
		errs = append(errs, errors.New("telemetry_rate_hz must be at least 1"))
	}
	if c.Power.SleepLevel > 3 {
		errs = append(errs, fmt.Errorf("sleep_level %d out of range 0-3", c.Power.SleepLevel))
	}
	for name, r := range map[string]float64{
		"self_test_failure_rate":   c.Sensors.SelfTestFailureRate,
		"calibration_failure_rate": c.Sensors.CalibrationFailureRate,
	} {
		if r < 0 || r > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f out of range 0-1", name, r))
		}
	}
	if c.Sensors.NoiseLevel < 0 {
		errs = append(errs, errors.New("noise_level must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
