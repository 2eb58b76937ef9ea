// Package config loads ancsctl settings from YAML. Every key is optional;
// missing keys keep their defaults.
//
//	session:
//	  attributes: [AppIdentifier, Title, Subtitle, Message, Date]
//	  max_message_length: 512
//	  request_timeout: 3s
//	  fetch_app_names: true
//	log:
//	  level: debug
//	  json: false
//	event_log: /var/log/ancs/events.cbor
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/ancs-blue/logger"
	"github.com/user/ancs-blue/session"
	"github.com/user/ancs-blue/wire/ancs"
)

// LoadError describes a config file that could not be used
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Duration is a time.Duration written as a Go duration string ("250ms")
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Session mirrors session.Config with attribute names instead of ids
type Session struct {
	Attributes         []string `yaml:"attributes"`
	MaxTitleLength     uint16   `yaml:"max_title_length"`
	MaxSubtitleLength  uint16   `yaml:"max_subtitle_length"`
	MaxMessageLength   uint16   `yaml:"max_message_length"`
	RequestTimeout     Duration `yaml:"request_timeout"`
	MaxRetries         int      `yaml:"max_retries"`
	MaxReassemblyBytes int      `yaml:"max_reassembly_bytes"`
	SettleDelay        Duration `yaml:"settle_delay"`
	FetchAppNames      bool     `yaml:"fetch_app_names"`
}

type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the top-level config file
type Config struct {
	Session      Session  `yaml:"session"`
	Log          Log      `yaml:"log"`
	EventLog     string   `yaml:"event_log"`
	Adapter      string   `yaml:"adapter"`
	TickInterval Duration `yaml:"tick_interval"`
}

// Default returns the config used when no file is given
func Default() *Config {
	def := session.DefaultConfig()
	attrs := make([]string, 0, len(def.DefaultAttributes))
	for _, id := range def.DefaultAttributes {
		attrs = append(attrs, id.String())
	}
	return &Config{
		Session: Session{
			Attributes:         attrs,
			MaxTitleLength:     def.MaxTitleLength,
			MaxSubtitleLength:  def.MaxSubtitleLength,
			MaxMessageLength:   def.MaxMessageLength,
			RequestTimeout:     Duration{def.RequestTimeout},
			MaxRetries:         def.MaxRetries,
			MaxReassemblyBytes: def.MaxReassemblyBytes,
			SettleDelay:        Duration{def.SettleDelay},
			FetchAppNames:      def.FetchAppNames,
		},
		Log:          Log{Level: logger.INFO.String()},
		Adapter:      "hci0",
		TickInterval: Duration{session.DefaultTickInterval},
	}
}

// Parse reads YAML on top of Default and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if _, err := cfg.SessionConfig(); err != nil {
		return nil, &LoadError{Message: "invalid session settings", Cause: err}
	}
	return cfg, nil
}

// Load reads a config file. A missing file yields Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// SessionConfig converts the session section into a validated session.Config
func (c *Config) SessionConfig() (session.Config, error) {
	s := c.Session
	attrs := make([]ancs.AttributeID, 0, len(s.Attributes))
	for _, name := range s.Attributes {
		id, err := ancs.ParseAttributeID(name)
		if err != nil {
			return session.Config{}, err
		}
		attrs = append(attrs, id)
	}

	cfg := session.Config{
		DefaultAttributes:  attrs,
		MaxTitleLength:     s.MaxTitleLength,
		MaxSubtitleLength:  s.MaxSubtitleLength,
		MaxMessageLength:   s.MaxMessageLength,
		RequestTimeout:     s.RequestTimeout.Duration,
		MaxRetries:         s.MaxRetries,
		MaxReassemblyBytes: s.MaxReassemblyBytes,
		SettleDelay:        s.SettleDelay.Duration,
		FetchAppNames:      s.FetchAppNames,
	}
	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}

// ApplyLogging configures the logger package from the log section
func (c *Config) ApplyLogging() {
	logger.SetLevel(logger.ParseLevel(c.Log.Level))
	logger.SetJSON(c.Log.JSON)
}
