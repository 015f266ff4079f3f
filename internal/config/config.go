// Package config loads the service configuration. Values are resolved in order of
// increasing priority: built-in defaults, JSON config file, environment (including a
// .env file) and command line flags. The result is validated before it is returned.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the service.
type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel            string        `env:"LOG_LEVEL" validate:"loglevel"`
	DBFileName          string        `env:"FILE_STORAGE_PATH" validate:"omitempty,storagefile"`
	DatabaseDSN         string        `env:"DATABASE_DSN"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT"`

	// JWTSigningSecretKey is a base64 (URL alphabet) encoded HMAC key.
	// When empty the application generates a random key on startup.
	JWTSigningSecretKey string        `env:"JWT_SIGNING_SECRET_KEY" validate:"omitempty,base64url"`
	AccessTokenTTL      time.Duration `env:"ACCESS_TOKEN_TTL" validate:"gt=0"`

	PasswordHashAlgorithm string `env:"PASSWORD_HASH_ALGORITHM" validate:"hashalgo"`
	BcryptCost            int    `env:"BCRYPT_COST" validate:"min=4,max=31"`
	PasswordPepper        string `env:"PASSWORD_PEPPER"`

	TrustedSubnet string `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`

	// TrustedProxies lists CIDRs of reverse proxies whose X-Real-IP and
	// X-Forwarded-For headers are believed. Other peers are identified by
	// the connection address only.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," validate:"omitempty,dive,cidr"`

	EnableHTTPS bool   `env:"ENABLE_HTTPS"`
	TLSCertFile string `env:"TLS_CERT_FILE" validate:"required_if=EnableHTTPS true"`
	TLSKeyFile  string `env:"TLS_KEY_FILE" validate:"required_if=EnableHTTPS true"`

	ConfigFile string `env:"CONFIG"`
}

// fileConfig mirrors Config in the JSON config file. Durations are strings
// such as "15m" so the file stays human readable.
type fileConfig struct {
	RunAddr               string   `json:"server_address"`
	LogLevel              string   `json:"log_level"`
	DBFileName            string   `json:"file_storage_path"`
	DatabaseDSN           string   `json:"database_dsn"`
	DBConnectionTimeout   string   `json:"db_connection_timeout"`
	JWTSigningSecretKey   string   `json:"jwt_signing_secret_key"`
	AccessTokenTTL        string   `json:"access_token_ttl"`
	PasswordHashAlgorithm string   `json:"password_hash_algorithm"`
	BcryptCost            int      `json:"bcrypt_cost"`
	PasswordPepper        string   `json:"password_pepper"`
	TrustedSubnet         string   `json:"trusted_subnet"`
	TrustedProxies        []string `json:"trusted_proxies"`
	EnableHTTPS           bool     `json:"enable_https"`
	TLSCertFile           string   `json:"tls_cert_file"`
	TLSKeyFile            string   `json:"tls_key_file"`
}

var defaultConfig = Config{
	RunAddr:               ":8080",
	LogLevel:              "info",
	DBConnectionTimeout:   10 * time.Second,
	AccessTokenTTL:        15 * time.Minute,
	PasswordHashAlgorithm: "bcrypt",
	BcryptCost:            10,
}

// InitOption customizes New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

// WithDisableFlagsParsing skips command line parsing, which tests rely on.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithArgs replaces os.Args[1:] as the source of command line flags.
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

// New resolves the configuration from every source and validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		args:                os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	var valuesFromEnv Config
	if err := env.Parse(&valuesFromEnv); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	var valuesFromFlags Config
	var flagsSet map[string]bool
	if !options.disableFlagsParsing {
		var err error
		flagsSet, err = parseFlags(&valuesFromFlags, options.args)
		if err != nil {
			return nil, err
		}
	}

	configFile := valuesFromEnv.ConfigFile
	if flagsSet["c"] {
		configFile = valuesFromFlags.ConfigFile
	}
	if configFile != "" {
		if err := values.loadFile(configFile); err != nil {
			return nil, err
		}
	}

	applyDefaults(values, valuesFromEnv)
	if valuesFromEnv.EnableHTTPS {
		values.EnableHTTPS = true
	}

	values.applyFlags(&valuesFromFlags, flagsSet)

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

// applyDefaults copies every non-zero field of source into values.
func applyDefaults(values *Config, source Config) {
	if source.RunAddr != "" {
		values.RunAddr = source.RunAddr
	}
	if source.LogLevel != "" {
		values.LogLevel = source.LogLevel
	}
	if source.DBFileName != "" {
		values.DBFileName = source.DBFileName
	}
	if source.DatabaseDSN != "" {
		values.DatabaseDSN = source.DatabaseDSN
	}
	if source.DBConnectionTimeout != 0 {
		values.DBConnectionTimeout = source.DBConnectionTimeout
	}
	if source.JWTSigningSecretKey != "" {
		values.JWTSigningSecretKey = source.JWTSigningSecretKey
	}
	if source.AccessTokenTTL != 0 {
		values.AccessTokenTTL = source.AccessTokenTTL
	}
	if source.PasswordHashAlgorithm != "" {
		values.PasswordHashAlgorithm = source.PasswordHashAlgorithm
	}
	if source.BcryptCost != 0 {
		values.BcryptCost = source.BcryptCost
	}
	if source.PasswordPepper != "" {
		values.PasswordPepper = source.PasswordPepper
	}
	if source.TrustedSubnet != "" {
		values.TrustedSubnet = source.TrustedSubnet
	}
	if len(source.TrustedProxies) > 0 {
		values.TrustedProxies = source.TrustedProxies
	}
	if source.TLSCertFile != "" {
		values.TLSCertFile = source.TLSCertFile
	}
	if source.TLSKeyFile != "" {
		values.TLSKeyFile = source.TLSKeyFile
	}
	if source.ConfigFile != "" {
		values.ConfigFile = source.ConfigFile
	}
}

func parseFlags(target *Config, args []string) (map[string]bool, error) {
	flags := flag.NewFlagSet("bookmarkapi", flag.ContinueOnError)
	flags.StringVar(&target.RunAddr, "a", "", "address and port to run server")
	flags.StringVar(&target.LogLevel, "l", "", "logger level")
	flags.StringVar(&target.DBFileName, "f", "", "JSON file name with database")
	flags.StringVar(&target.DatabaseDSN, "d", "", "a string with the database connection details")
	flags.DurationVar(&target.AccessTokenTTL, "ttl", 0, "access token lifetime")
	flags.StringVar(&target.TrustedSubnet, "t", "", "CIDR allowed to read internal stats")
	flags.BoolVar(&target.EnableHTTPS, "s", false, "serve HTTPS")
	flags.StringVar(&target.ConfigFile, "c", "", "path to JSON config file")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/parseFlags(): error while `flags.Parse()` calling: %w", err)
	}

	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	return set, nil
}

func (c *Config) applyFlags(source *Config, set map[string]bool) {
	if set["a"] {
		c.RunAddr = source.RunAddr
	}
	if set["l"] {
		c.LogLevel = source.LogLevel
	}
	if set["f"] {
		c.DBFileName = source.DBFileName
	}
	if set["d"] {
		c.DatabaseDSN = source.DatabaseDSN
	}
	if set["ttl"] {
		c.AccessTokenTTL = source.AccessTokenTTL
	}
	if set["t"] {
		c.TrustedSubnet = source.TrustedSubnet
	}
	if set["s"] {
		c.EnableHTTPS = source.EnableHTTPS
	}
	if set["c"] {
		c.ConfigFile = source.ConfigFile
	}
}

func (c *Config) loadFile(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadFile(): error while `os.ReadFile()` calling: %w", err)
	}

	var fromFile fileConfig
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadFile(): error while `json.Unmarshal()` calling: %w", err)
	}

	parsed := Config{
		RunAddr:               fromFile.RunAddr,
		LogLevel:              fromFile.LogLevel,
		DBFileName:            fromFile.DBFileName,
		DatabaseDSN:           fromFile.DatabaseDSN,
		JWTSigningSecretKey:   fromFile.JWTSigningSecretKey,
		PasswordHashAlgorithm: fromFile.PasswordHashAlgorithm,
		BcryptCost:            fromFile.BcryptCost,
		PasswordPepper:        fromFile.PasswordPepper,
		TrustedSubnet:         fromFile.TrustedSubnet,
		TrustedProxies:        fromFile.TrustedProxies,
		TLSCertFile:           fromFile.TLSCertFile,
		TLSKeyFile:            fromFile.TLSKeyFile,
	}
	if parsed.DBConnectionTimeout, err = parseOptionalDuration(fromFile.DBConnectionTimeout); err != nil {
		return err
	}
	if parsed.AccessTokenTTL, err = parseOptionalDuration(fromFile.AccessTokenTTL); err != nil {
		return err
	}

	applyDefaults(c, parsed)
	if fromFile.EnableHTTPS {
		c.EnableHTTPS = true
	}

	return nil
}

func parseOptionalDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("in internal/config/config.go/parseOptionalDuration(): error while `time.ParseDuration()` calling: %w", err)
	}
	return d, nil
}

func validateStorageFile(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[fieldLevel.Field().String()]
}

func validateHashAlgorithm(fieldLevel validator.FieldLevel) bool {
	switch fieldLevel.Field().String() {
	case "bcrypt", "argon2id":
		return true
	}
	return false
}

func (c *Config) validate() error {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}
	if err := validate.RegisterValidation("storagefile", validateStorageFile); err != nil {
		return err
	}
	if err := validate.RegisterValidation("hashalgo", validateHashAlgorithm); err != nil {
		return err
	}

	return validate.Struct(c)
}
