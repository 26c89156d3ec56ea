package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Exchange struct {
	// Owner is the only address allowed to list tokens.
	Owner common.Address
	// QuoteAsset is the ticker every token is priced in.
	QuoteAsset string
	// QuoteDecimals is used only to render quote amounts for humans.
	QuoteDecimals uint8
}

type Storage struct {
	// DataDir holds the Pebble database. Empty keeps all state in memory.
	DataDir string
	// WALFile, if set, receives one JSON line per book change.
	WALFile string
}

type API struct {
	Addr           string
	AllowedOrigins []string
	// RequireSignatures rejects state-changing requests without a valid
	// EIP-712 signature from the acting address.
	RequireSignatures bool
	ChainID           int64 // EIP-712 domain chain id
}

type Events struct {
	KafkaBrokers []string // empty disables publishing
	TradeTopic   string
	Buffer       int
}

type Log struct {
	File  string
	Level string
}

type Config struct {
	Exchange    Exchange
	Storage     Storage
	API         API
	Events      Events
	Log         Log
	GenesisFile string
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			QuoteAsset:    "ETH",
			QuoteDecimals: 9, // quote amounts are gwei
		},
		Storage: Storage{
			DataDir: "data/exchange",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			ChainID:        1337,
		},
		Events: Events{
			TradeTopic: "exchange.trades",
			Buffer:     1024,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if owner := os.Getenv("EXCHANGE_OWNER"); common.IsHexAddress(owner) {
		cfg.Exchange.Owner = common.HexToAddress(owner)
	}
	cfg.Exchange.QuoteAsset = getEnv("QUOTE_ASSET", cfg.Exchange.QuoteAsset)
	if dec := os.Getenv("QUOTE_DECIMALS"); dec != "" {
		if n, err := strconv.ParseUint(dec, 10, 8); err == nil {
			cfg.Exchange.QuoteDecimals = uint8(n)
		}
	}

	// DATA_DIR may be set to the empty string to run in memory
	if dir, ok := os.LookupEnv("DATA_DIR"); ok {
		cfg.Storage.DataDir = dir
	}
	cfg.Storage.WALFile = getEnv("WAL_FILE", cfg.Storage.WALFile)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := splitList(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.API.AllowedOrigins = origins
	}
	if v := os.Getenv("REQUIRE_SIGNATURES"); v != "" {
		cfg.API.RequireSignatures, _ = strconv.ParseBool(v)
	}
	if id := os.Getenv("CHAIN_ID"); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > 0 {
			cfg.API.ChainID = n
		}
	}

	cfg.Events.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.Events.TradeTopic = getEnv("TRADE_TOPIC", cfg.Events.TradeTopic)
	if buf := os.Getenv("TRADE_EVENT_BUFFER"); buf != "" {
		if n, err := strconv.Atoi(buf); err == nil && n > 0 {
			cfg.Events.Buffer = n
		}
	}

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.GenesisFile = getEnv("GENESIS_FILE", cfg.GenesisFile)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping empty entries.
// Example: "kafka-1:9092, kafka-2:9092"
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
