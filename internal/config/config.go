package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gregLibert/emv-reader/pkg/emv"
)

// Reader backends.
const (
	BackendPCSC   = "pcsc"
	BackendPN532  = "pn532"
	BackendLibNFC = "libnfc"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Reader ReaderConfig `mapstructure:"reader"`
	EMV    EMVConfig    `mapstructure:"emv"`
	PIN    PINConfig    `mapstructure:"pin"`
	MDNS   MDNSConfig   `mapstructure:"mdns"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ReaderConfig selects the contactless reader.
type ReaderConfig struct {
	Backend string `mapstructure:"backend"`
	// Device is the PC/SC reader name, the PN532 serial/I2C path or the
	// libnfc connstring. Empty means the first one found.
	Device         string        `mapstructure:"device"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

// EMVConfig configures application selection and the terminal data.
type EMVConfig struct {
	Candidates   []string `mapstructure:"candidates"`
	PPSE         bool     `mapstructure:"ppse"`
	CountryCode  int      `mapstructure:"country_code"`
	CurrencyCode int      `mapstructure:"currency_code"`
	MerchantName string   `mapstructure:"merchant_name"`
}

// PINConfig holds the cardholder verification policy. Threshold is in major
// currency units: a PIN is required above it.
type PINConfig struct {
	Threshold int64 `mapstructure:"threshold"`
}

type MDNSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name"`
}

// Load reads config.yaml from ./configs (or the given directories), then
// applies EMV_* environment overrides, e.g. EMV_SERVER_PORT or EMV_READER_BACKEND.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "../configs", "../../configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("emv")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("reader.backend", BackendPCSC)
	v.SetDefault("reader.device", "")
	v.SetDefault("reader.poll_interval", 250*time.Millisecond)
	v.SetDefault("reader.connect_timeout", 5*time.Second)
	v.SetDefault("reader.read_timeout", 10*time.Second)
	v.SetDefault("emv.candidates", []string{})
	v.SetDefault("emv.ppse", true)
	v.SetDefault("emv.country_code", 250)
	v.SetDefault("emv.currency_code", 978)
	v.SetDefault("emv.merchant_name", "")
	v.SetDefault("pin.threshold", 100)
	v.SetDefault("mdns.enabled", false)
	v.SetDefault("mdns.name", "EMV Reader Agent")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values viper cannot check by type.
func (c *Config) Validate() error {
	switch c.Reader.Backend {
	case BackendPCSC, BackendPN532, BackendLibNFC:
	default:
		return fmt.Errorf("reader.backend: unknown backend %q", c.Reader.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.PIN.Threshold < 0 {
		return fmt.Errorf("pin.threshold: must not be negative")
	}
	if _, err := c.EMV.CandidateAIDs(); err != nil {
		return fmt.Errorf("emv.candidates: %w", err)
	}
	return nil
}

// CandidateAIDs returns the configured AIDs, or emv.DefaultCandidates when none is set.
func (c EMVConfig) CandidateAIDs() ([]emv.AID, error) {
	if len(c.Candidates) == 0 {
		return emv.DefaultCandidates(), nil
	}

	aids := make([]emv.AID, 0, len(c.Candidates))
	for _, s := range c.Candidates {
		aid, err := emv.ParseAID(s)
		if err != nil {
			return nil, err
		}
		aids = append(aids, aid)
	}
	return aids, nil
}

// Terminal returns the terminal data for the PDOL.
func (c EMVConfig) Terminal() emv.TerminalConfig {
	t := emv.DefaultTerminal()
	t.CountryCode = c.CountryCode
	t.CurrencyCode = c.CurrencyCode
	t.MerchantName = c.MerchantName
	return t
}
