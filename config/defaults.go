package config

import (
	"math/big"
	"time"

	"github.com/spf13/viper"
)

// Defaults.
const (
	DefaultNetwork      = "mainnet"
	DefaultRPCURL       = "ws://127.0.0.1:8546"
	DefaultPollInterval = 4 * time.Second
	DefaultCallTimeout  = 30 * time.Second
	DefaultMetricsAddr  = "127.0.0.1:9464"
	DefaultLogLevel     = "info"
)

// Default returns the default configuration. Salt is left empty: it must be
// supplied by the operator.
func Default() *Config {
	return &Config{
		Network:           DefaultNetwork,
		DataDir:           DefaultDataDir(),
		DerivationVersion: 1,
		Backend: BackendConfig{
			Type: BackendFile,
		},
		RPC: RPCConfig{
			URL:          DefaultRPCURL,
			PollInterval: DefaultPollInterval,
			CallTimeout:  DefaultCallTimeout,
		},
		EthConversion: big.NewInt(1),
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// SetDefaults registers Default() values on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyNetwork, d.Network)
	v.SetDefault(KeyDataDir, d.DataDir)
	v.SetDefault(KeyDerivationVersion, d.DerivationVersion)
	v.SetDefault(KeyBackendType, string(d.Backend.Type))
	v.SetDefault(KeyRPCURL, d.RPC.URL)
	v.SetDefault(KeyRPCPollInterval, d.RPC.PollInterval)
	v.SetDefault(KeyRPCCallTimeout, d.RPC.CallTimeout)
	v.SetDefault(KeyRPCRateLimit, 0)
	v.SetDefault(KeyEthConversion, d.EthConversion.String())
	v.SetDefault(KeyMetricsEnabled, false)
	v.SetDefault(KeyMetricsAddr, d.Metrics.Addr)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogJSON, false)
}
