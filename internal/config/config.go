package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	NATS       NATSConfig       `yaml:"nats"`
	Auth       AuthConfig       `yaml:"auth"`
	Operator   OperatorConfig   `yaml:"operator"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	TokenList  TokenListConfig  `yaml:"tokenList"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	CORS       CORSConfig       `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	MetricsAllowedIPs []string `yaml:"metricsAllowedIPs"` // loopback is always allowed
}

// LogConfig logrus level and formatter
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// NATSConfig NATS event publishing. An empty URL disables publishing.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AuthConfig operator JWT settings for the action endpoints
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
}

// OperatorConfig signing key used for approveWithdraw and router withdraw
type OperatorConfig struct {
	PrivateKey     string `yaml:"privateKey"` // hex, with or without 0x
	GasLimit       uint64 `yaml:"gasLimit"`
	ReceiptTimeout int    `yaml:"receiptTimeout"` // seconds
}

// BlockchainConfig Blockchain configuration
type BlockchainConfig struct {
	Networks map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig one reachable chain
type NetworkConfig struct {
	ChainID      uint64            `yaml:"chainId"`
	Name         string            `yaml:"name"`
	Label        string            `yaml:"label"`
	Testnet      *bool             `yaml:"testnet"` // nil is treated as mainnet
	RPCEndpoints []string          `yaml:"rpcEndpoints"`
	PrivateKey   string            `yaml:"privateKey"` // per-network override of operator.privateKey
	Enabled      bool              `yaml:"enabled"`
	Contracts    ContractAddresses `yaml:"contracts"`
}

// TokenListConfig static token list source. URL takes precedence over Path.
type TokenListConfig struct {
	URL     string `yaml:"url"`
	Path    string `yaml:"path"`
	Timeout int    `yaml:"timeout"`
}

// LedgerConfig pagination bounds for ledger and registry enumeration
type LedgerConfig struct {
	PageSize         uint64 `yaml:"pageSize"`
	MaxItems         uint64 `yaml:"maxItems"`
	RegistryPageSize uint64 `yaml:"registryPageSize"`
}

// RefreshConfig per-query refresh intervals
type RefreshConfig struct {
	Deposits             Duration `yaml:"deposits"`
	Withdraws            Duration `yaml:"withdraws"`
	XChainApprovals      Duration `yaml:"xchainApprovals"`
	XChainWithdrawHashes Duration `yaml:"xchainWithdrawHashes"`
	CanApprove           Duration `yaml:"canApprove"`
	ExecutionDelay       Duration `yaml:"executionDelay"`
	BlockTime            Duration `yaml:"blockTime"`
	TokenMeta            Duration `yaml:"tokenMeta"`
	Registry             Duration `yaml:"registry"`
	WatchedChains        []uint64 `yaml:"watchedChains"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// Duration accepts "15s" style strings or plain seconds in yaml
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if secs, err := strconv.Atoi(value.Value); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// IsTestnet reports the configured flag, defaulting to mainnet
func (n NetworkConfig) IsTestnet() bool {
	return n.Testnet != nil && *n.Testnet
}

var AppConfig *Config

// LoadConfig Load configuration file
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err == nil {
		logrus.Info("🔧 Loaded environment from .env")
	}

	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			logrus.Infof("🔧 Using local configuration file: %s", configPath)
		}
	}

	var cfg Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		logrus.Infof("✅ [%s] Loading configuration from %s", time.Now().Format("2006-01-02 15:04:05"), configPath)
	case os.IsNotExist(err):
		logrus.Warnf("⚠️ Config file %s not found, using built-in defaults", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.Infof("📋 [Config] %d networks configured, token list: %s", len(cfg.Blockchain.Networks), cfg.TokenList.source())
	AppConfig = &cfg
	return &cfg, nil
}

// Parse builds a Config from yaml bytes with defaults applied. Environment is not consulted.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects duplicate chain ids and networks without a chain id
func (c *Config) Validate() error {
	seen := make(map[uint64]string)
	for name, n := range c.Blockchain.Networks {
		if n.ChainID == 0 {
			return fmt.Errorf("network %s: chainId is required", name)
		}
		if other, ok := seen[n.ChainID]; ok {
			return fmt.Errorf("networks %s and %s share chainId %d", other, name, n.ChainID)
		}
		seen[n.ChainID] = name
	}
	return nil
}

func (t TokenListConfig) source() string {
	switch {
	case t.URL != "":
		return t.URL
	case t.Path != "":
		return t.Path
	}
	return "none"
}

func applyDefaults(c *Config) {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = 10
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "bridge"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "bridge-backend"
	}
	if c.Operator.GasLimit == 0 {
		c.Operator.GasLimit = 500000
	}
	if c.Operator.ReceiptTimeout == 0 {
		c.Operator.ReceiptTimeout = 120
	}
	if c.TokenList.Timeout == 0 {
		c.TokenList.Timeout = 10
	}
	if c.Ledger.PageSize == 0 {
		c.Ledger.PageSize = 100
	}
	if c.Ledger.MaxItems == 0 {
		c.Ledger.MaxItems = 10000
	}
	if c.Ledger.RegistryPageSize == 0 {
		c.Ledger.RegistryPageSize = 500
	}

	r := &c.Refresh
	setDefault(&r.Deposits, 30*time.Second)
	setDefault(&r.Withdraws, 30*time.Second)
	setDefault(&r.XChainApprovals, 15*time.Second)
	setDefault(&r.XChainWithdrawHashes, 15*time.Second)
	setDefault(&r.CanApprove, 30*time.Second)
	setDefault(&r.ExecutionDelay, 60*time.Second)
	setDefault(&r.BlockTime, 10*time.Second)
	setDefault(&r.TokenMeta, 60*time.Second)
	setDefault(&r.Registry, 30*time.Second)

	if len(c.Blockchain.Networks) == 0 {
		c.Blockchain.Networks = DefaultNetworks()
	}
	for name, n := range c.Blockchain.Networks {
		if n.Name == "" {
			n.Name = name
		}
		if n.Label == "" {
			n.Label = n.Name
		}
		n.Contracts = n.Contracts.withDefaults(n.ChainID)
		c.Blockchain.Networks[name] = n
	}
}

func setDefault(d *Duration, v time.Duration) {
	if d.Duration <= 0 {
		d.Duration = v
	}
}

// overrideFromEnv Override configuration
func overrideFromEnv(c *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if key := os.Getenv("OPERATOR_PRIVATE_KEY"); key != "" {
		c.Operator.PrivateKey = key
	}
	if url := os.Getenv("TOKEN_LIST_URL"); url != "" {
		c.TokenList.URL = url
	}

	for networkName, n := range c.Blockchain.Networks {
		upper := strings.ToUpper(networkName)

		envRPC := fmt.Sprintf("%s_RPC_ENDPOINTS", upper)
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			n.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}

		envPrivateKey := fmt.Sprintf("%s_PRIVATE_KEY", upper)
		if privateKey := os.Getenv(envPrivateKey); privateKey != "" {
			n.PrivateKey = privateKey
			logrus.Infof("✅ [Config] Loaded private key for network '%s' from %s", networkName, envPrivateKey)
		}

		envAccess := fmt.Sprintf("ACCESS_MANAGER_ADDRESS_%d", n.ChainID)
		if access := os.Getenv(envAccess); access != "" {
			n.Contracts.AccessManager = access
		}

		c.Blockchain.Networks[networkName] = n
	}
}

// GetNetworkConfigByChainID finds a network by chain id
func (c *Config) GetNetworkConfigByChainID(chainID uint64) (string, NetworkConfig, bool) {
	for name, n := range c.Blockchain.Networks {
		if n.ChainID == chainID {
			return name, n, true
		}
	}
	return "", NetworkConfig{}, false
}

// SigningKeyFor returns the per-network key, falling back to the operator key
func (c *Config) SigningKeyFor(n NetworkConfig) string {
	if n.PrivateKey != "" {
		return n.PrivateKey
	}
	return c.Operator.PrivateKey
}

// LogrusLevel parses the configured level, defaulting to info
func (l LogConfig) LogrusLevel() logrus.Level {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger builds the process logger from LogConfig
func (l LogConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(l.LogrusLevel())
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
