package config

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

const usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"

func validConfig() *Config {
	cfg := Default()
	cfg.DataDir = "/tmp/monterrey-test"
	cfg.Salt = "pepper"
	return cfg
}

func TestParseToken(t *testing.T) {
	tok, err := ParseToken("USDC:" + usdc + ":6:2")
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if tok.Symbol != "USDC" {
		t.Errorf("symbol = %q", tok.Symbol)
	}
	if tok.Address != common.HexToAddress(usdc) {
		t.Errorf("address = %s", tok.Address.Hex())
	}
	if tok.Decimals != 6 {
		t.Errorf("decimals = %d", tok.Decimals)
	}
	if tok.ConversionRate.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("rate = %s", tok.ConversionRate)
	}
}

func TestParseToken_Invalid(t *testing.T) {
	tests := []string{
		"",
		"USDC",
		"USDC:" + usdc + ":6",
		"USDC:0x1234:6:1",
		"USDC:" + usdc + ":x:1",
		"USDC:" + usdc + ":300:1",
		"USDC:" + usdc + ":6:-1",
		"USDC:" + usdc + ":6:1.5",
	}
	for _, s := range tests {
		if _, err := ParseToken(s); err == nil {
			t.Errorf("ParseToken(%q) should fail", s)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1"},
		{" 42 ", "42"},
		{"1e18", "1000000000000000000"},
		{"1000000000000000000000000000000", "1000000000000000000000000000000"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Errorf("ParseAmount(%q): %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "abc", "-1", "0.5", "1e-3"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Errorf("ParseAmount(%q) should fail", bad)
		}
	}
}

func TestValidate_Default(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_NoSalt(t *testing.T) {
	cfg := validConfig()
	cfg.Salt = ""
	if err := Validate(cfg); !errors.Is(err, ErrNoSalt) {
		t.Fatalf("expected ErrNoSalt, got %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tok := TokenConfig{
		Symbol:         "USDC",
		Address:        common.HexToAddress(usdc),
		Decimals:       6,
		ConversionRate: big.NewInt(1),
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty network", func(c *Config) { c.Network = " " }},
		{"padded salt", func(c *Config) { c.Salt = " pepper" }},
		{"derivation version", func(c *Config) { c.DerivationVersion = 2 }},
		{"backend type", func(c *Config) { c.Backend.Type = "leveldb" }},
		{"postgres without dsn", func(c *Config) { c.Backend.Type = BackendPostgres }},
		{"empty rpc url", func(c *Config) { c.RPC.URL = "" }},
		{"zero poll interval", func(c *Config) { c.RPC.PollInterval = 0 }},
		{"negative rate limit", func(c *Config) { c.RPC.RateLimit = -1 }},
		{"nil eth conversion", func(c *Config) { c.EthConversion = nil }},
		{"zero eth conversion", func(c *Config) { c.EthConversion = big.NewInt(0) }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}},
		{"token without symbol", func(c *Config) {
			bad := tok
			bad.Symbol = ""
			c.Tokens = []TokenConfig{bad}
		}},
		{"token zero address", func(c *Config) {
			bad := tok
			bad.Address = common.Address{}
			c.Tokens = []TokenConfig{bad}
		}},
		{"token decimals", func(c *Config) {
			bad := tok
			bad.Decimals = MaxTokenDecimals + 1
			c.Tokens = []TokenConfig{bad}
		}},
		{"token zero rate", func(c *Config) {
			bad := tok
			bad.ConversionRate = big.NewInt(0)
			c.Tokens = []TokenConfig{bad}
		}},
		{"duplicate token", func(c *Config) {
			dup := tok
			dup.Symbol = "USDC2"
			c.Tokens = []TokenConfig{tok, dup}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidate_PostgresWithDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.Type = BackendPostgres
	cfg.Backend.PostgresDSN = "postgres://localhost/monterrey"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	v := NewViper()
	v.Set(KeyDataDir, t.TempDir())
	v.Set(KeySalt, "pepper")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != DefaultNetwork {
		t.Errorf("network = %q", cfg.Network)
	}
	if cfg.Backend.Type != BackendFile {
		t.Errorf("backend = %q", cfg.Backend.Type)
	}
	if cfg.RPC.PollInterval != DefaultPollInterval {
		t.Errorf("poll interval = %s", cfg.RPC.PollInterval)
	}
	if cfg.EthConversion.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("eth conversion = %s", cfg.EthConversion)
	}
	if len(cfg.Tokens) != 0 {
		t.Errorf("tokens = %v", cfg.Tokens)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	v := NewViper()
	v.Set(KeyDataDir, t.TempDir())
	v.Set(KeySalt, "pepper")
	v.Set(KeyConfigFile, filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(v); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("MONTERREY_SALT", "from-env")
	t.Setenv("MONTERREY_RPC_URL", "http://node:8545")
	t.Setenv("MONTERREY_BACKEND_TYPE", "memory")
	t.Setenv("MONTERREY_ETH_CONVERSION", "1000")
	t.Setenv("MONTERREY_TOKENS", "USDC:"+usdc+":6:1")

	v := NewViper()
	v.Set(KeyDataDir, t.TempDir())

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Salt != "from-env" {
		t.Errorf("salt = %q", cfg.Salt)
	}
	if cfg.RPC.URL != "http://node:8545" {
		t.Errorf("rpc url = %q", cfg.RPC.URL)
	}
	if cfg.Backend.Type != BackendMemory {
		t.Errorf("backend = %q", cfg.Backend.Type)
	}
	if cfg.EthConversion.Int64() != 1000 {
		t.Errorf("eth conversion = %s", cfg.EthConversion)
	}
	if len(cfg.Tokens) != 1 || cfg.Tokens[0].Symbol != "USDC" {
		t.Errorf("tokens = %+v", cfg.Tokens)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	content := `network: sepolia
salt: file-salt
backend:
  type: badger
rpc:
  url: http://localhost:8545
  poll_interval: 1s
  rate_limit: 25
eth_conversion: "1e3"
tokens:
  - USDC:` + usdc + `:6:2
  - symbol: DAI
    address: "0x6b175474e89094c44da98b954eedeac495271d0f"
    decimals: 18
    rate: "1"
log:
  level: debug
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	v := NewViper()
	v.Set(KeyDataDir, dir)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "sepolia" {
		t.Errorf("network = %q", cfg.Network)
	}
	if cfg.Backend.Type != BackendBadger {
		t.Errorf("backend = %q", cfg.Backend.Type)
	}
	if want := filepath.Join(dir, "sepolia", "ledger"); cfg.BackendPath() != want {
		t.Errorf("backend path = %q, want %q", cfg.BackendPath(), want)
	}
	if cfg.RPC.PollInterval != time.Second {
		t.Errorf("poll interval = %s", cfg.RPC.PollInterval)
	}
	if cfg.RPC.RateLimit != 25 {
		t.Errorf("rate limit = %d", cfg.RPC.RateLimit)
	}
	if cfg.EthConversion.Int64() != 1000 {
		t.Errorf("eth conversion = %s", cfg.EthConversion)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if len(cfg.Tokens) != 2 {
		t.Fatalf("tokens = %d, want 2", len(cfg.Tokens))
	}
	if cfg.Tokens[0].Symbol != "USDC" || cfg.Tokens[0].ConversionRate.Int64() != 2 {
		t.Errorf("tokens[0] = %+v", cfg.Tokens[0])
	}
	if cfg.Tokens[1].Symbol != "DAI" || cfg.Tokens[1].Decimals != 18 {
		t.Errorf("tokens[1] = %+v", cfg.Tokens[1])
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("salt: file-salt\nnetwork: sepolia\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MONTERREY_NETWORK", "holesky")

	v := NewViper()
	v.Set(KeyDataDir, dir)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "holesky" {
		t.Errorf("network = %q, want holesky", cfg.Network)
	}
}

func TestBindFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	v := NewViper()
	if err := BindFlags(fs, v); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	args := []string{
		"--datadir", t.TempDir(),
		"--salt", "flag-salt",
		"--rpc", "http://flag:8545",
		"--token", "USDC:" + usdc + ":6:1",
		"--metrics",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Salt != "flag-salt" {
		t.Errorf("salt = %q", cfg.Salt)
	}
	if cfg.RPC.URL != "http://flag:8545" {
		t.Errorf("rpc url = %q", cfg.RPC.URL)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled")
	}
	if cfg.Metrics.Addr != DefaultMetricsAddr {
		t.Errorf("metrics addr = %q", cfg.Metrics.Addr)
	}
	// Unset flags must not clobber defaults.
	if cfg.RPC.PollInterval != DefaultPollInterval {
		t.Errorf("poll interval = %s", cfg.RPC.PollInterval)
	}
	if len(cfg.Tokens) != 1 {
		t.Errorf("tokens = %+v", cfg.Tokens)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", ConfigFileName)
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "network: "+DefaultNetwork) {
		t.Error("template missing network")
	}

	v := NewViper()
	v.Set(KeyDataDir, dir)
	v.Set(KeyConfigFile, path)
	v.Set(KeySalt, "pepper")
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load default config: %v", err)
	}
	if cfg.RPC.URL != DefaultRPCURL {
		t.Errorf("rpc url = %q", cfg.RPC.URL)
	}
	if cfg.RPC.CallTimeout != DefaultCallTimeout {
		t.Errorf("call timeout = %s", cfg.RPC.CallTimeout)
	}
}

func TestEnsureDataDirs(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Log.File = "monterrey.log"
	if err := EnsureDataDirs(cfg); err != nil {
		t.Fatalf("EnsureDataDirs: %v", err)
	}
	for _, dir := range []string{cfg.NetworkDataDir(), cfg.KeystoreDir(), cfg.LogsDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}
