// Package params holds the node's static configuration: where it listens,
// where it stores data, and the contract bootstrap applied on first run.
package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Node is the process-level configuration.
type Node struct {
	ListenAddr string
	DataDir    string
	LogLevel   string
	// ExchangeAddr is the exchange's own escrow account.
	ExchangeAddr string
}

// Contract is the bootstrap configuration written at first start if no
// contract info exists yet. After that the stored singleton is
// authoritative and changes only through modify.
type Contract struct {
	Name                  string
	BaseDenom             string
	ConvertibleBaseDenoms []string
	SupportedQuoteDenoms  []string
	Executors             []string
	Approvers             []string
	AskRequiredAttributes []string
	BidRequiredAttributes []string
	PricePrecision        uint32
	SizeIncrement         uint64
}

// Config bundles node and contract bootstrap settings.
type Config struct {
	Node     Node
	Contract Contract
}

// Default returns a devnet configuration: one executor, simple pair, whole
// integer prices.
func Default() Config {
	return Config{
		Node: Node{
			ListenAddr:   ":8080",
			DataDir:      "data",
			LogLevel:     "info",
			ExchangeAddr: "0x00000000000000000000000000000000000A7500",
		},
		Contract: Contract{
			Name:                 "atsd-devnet",
			BaseDenom:            "base_1",
			SupportedQuoteDenoms: []string{"quote_1", "quote_2"},
			Executors:            []string{"0x1111111111111111111111111111111111111111"},
			PricePrecision:       0,
			SizeIncrement:        1,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and the
// environment. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Node.LogLevel = v
	}
	if v := os.Getenv("EXCHANGE_ADDR"); v != "" {
		cfg.Node.ExchangeAddr = v
	}

	if v := os.Getenv("CONTRACT_NAME"); v != "" {
		cfg.Contract.Name = v
	}
	if v := os.Getenv("BASE_DENOM"); v != "" {
		cfg.Contract.BaseDenom = v
	}
	if v := os.Getenv("CONVERTIBLE_BASE_DENOMS"); v != "" {
		cfg.Contract.ConvertibleBaseDenoms = splitList(v)
	}
	if v := os.Getenv("SUPPORTED_QUOTE_DENOMS"); v != "" {
		cfg.Contract.SupportedQuoteDenoms = splitList(v)
	}
	if v := os.Getenv("EXECUTORS"); v != "" {
		cfg.Contract.Executors = splitList(v)
	}
	if v := os.Getenv("APPROVERS"); v != "" {
		cfg.Contract.Approvers = splitList(v)
	}
	if v := os.Getenv("ASK_REQUIRED_ATTRIBUTES"); v != "" {
		cfg.Contract.AskRequiredAttributes = splitList(v)
	}
	if v := os.Getenv("BID_REQUIRED_ATTRIBUTES"); v != "" {
		cfg.Contract.BidRequiredAttributes = splitList(v)
	}
	if v := os.Getenv("PRICE_PRECISION"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Contract.PricePrecision = uint32(n)
		}
	}
	if v := os.Getenv("SIZE_INCREMENT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Contract.SizeIncrement = n
		}
	}

	return cfg
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
