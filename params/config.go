package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Chain struct {
	RPCURL       string
	ChainID      int64
	ContractAddr string // venue contract that settles fills
	Mnemonic     string
	// SecondarySigners is K in the 1+K identity pool. Each identity keeps an
	// independent sequence counter so batches can submit in parallel.
	SecondarySigners int
}

type Matcher struct {
	Interval     time.Duration // matching round cadence
	BatchSize    int           // fills per settlement batch
	MaxInflight  int           // concurrent settlement submissions
	BatchTimeout time.Duration // per-batch settlement timeout
}

type Log struct {
	File         string
	PebblePath   string
	KafkaBrokers []string // empty disables the Kafka sink
	KafkaTopic   string
}

type API struct {
	Addr string
}

type Config struct {
	Chain   Chain
	Matcher Matcher
	Log     Log
	API     API
}

func Default() Config {
	return Config{
		Chain: Chain{
			RPCURL:           "http://localhost:8545",
			ChainID:          1337,
			SecondarySigners: 2,
		},
		Matcher: Matcher{
			Interval:     time.Second,
			BatchSize:    2,
			MaxInflight:  3,
			BatchTimeout: 30 * time.Second,
		},
		Log: Log{
			File:       "data/matchd.log",
			PebblePath: "data/rounds",
			KafkaTopic: "matchd.rounds",
		},
		API: API{
			Addr: ":8080",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if it exists) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Chain.RPCURL = getEnv("RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.ContractAddr = getEnv("CONTRACT_ADDR", cfg.Chain.ContractAddr)
	cfg.Chain.Mnemonic = getEnv("MNEMONIC", cfg.Chain.Mnemonic)
	if id := os.Getenv("CHAIN_ID"); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Chain.ChainID = n
		}
	}
	if k := os.Getenv("SECONDARY_SIGNERS"); k != "" {
		if n, err := strconv.Atoi(k); err == nil && n >= 0 {
			cfg.Chain.SecondarySigners = n
		}
	}

	if ms := os.Getenv("MATCH_INTERVAL_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.Matcher.Interval = time.Duration(n) * time.Millisecond
		}
	}
	if bs := os.Getenv("BATCH_SIZE"); bs != "" {
		if n, err := strconv.Atoi(bs); err == nil && n > 0 {
			cfg.Matcher.BatchSize = n
		}
	}
	if mi := os.Getenv("MAX_INFLIGHT"); mi != "" {
		if n, err := strconv.Atoi(mi); err == nil && n > 0 {
			cfg.Matcher.MaxInflight = n
		}
	}
	if ms := os.Getenv("BATCH_TIMEOUT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.Matcher.BatchTimeout = time.Duration(n) * time.Millisecond
		}
	}

	// Setting LOG_FILE to an empty string disables the file core and logs
	// to the console only.
	if f, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.Log.File = f
	}
	cfg.Log.PebblePath = getEnv("ROUNDS_DB", cfg.Log.PebblePath)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Log.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.Log.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Log.KafkaTopic)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	return cfg
}

// Validate checks the settings the process cannot start without.
func (c Config) Validate() error {
	if c.Chain.Mnemonic == "" {
		return fmt.Errorf("MNEMONIC is required")
	}
	if c.Chain.ContractAddr == "" {
		return fmt.Errorf("CONTRACT_ADDR is required")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
