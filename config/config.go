package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de polycopy.
type Config struct {
	Wallets   []string        `yaml:"wallets"`
	MyWallet  string          `yaml:"my_wallet"` // wallet propia, solo para el reporte de equity
	Paper     PaperConfig     `yaml:"paper"`
	Ingest    IngestConfig    `yaml:"ingest"`
	API       APIConfig       `yaml:"api"`
	Live      LiveConfig      `yaml:"live"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Intents   IntentsConfig   `yaml:"intents"`
	Log       LogConfig       `yaml:"log"`
}

// PaperConfig controla el ledger simulado y el sizing.
type PaperConfig struct {
	StartEquity      float64 `yaml:"start_equity"`
	SlippageBps      float64 `yaml:"slippage_bps"`
	SizeMode         string  `yaml:"size_mode"`         // LEADER_PCT | FIXED
	FixedCapUSDC     float64 `yaml:"fixed_cap_usdc"`    // solo FIXED; 0 = sin tope
	FallbackFraction float64 `yaml:"fallback_fraction"` // LEADER_PCT sin equity del leader
	LoopMillis       int     `yaml:"loop_ms"`
	BatchLimit       int     `yaml:"batch_limit"`
}

// IngestConfig controla el polling de la Data API y el feed en vivo.
type IngestConfig struct {
	PollMillis        int  `yaml:"poll_ms"`
	PageLimit         int  `yaml:"page_limit"`
	MaxPages          int  `yaml:"max_pages"`
	Workers           int  `yaml:"workers"`
	RTDSEnabled       bool `yaml:"rtds_enabled"`
	HistoricalEnabled bool `yaml:"historical_enabled"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	DataBase  string `yaml:"data_base"`
	GammaBase string `yaml:"gamma_base"`
	CLOBBase  string `yaml:"clob_base"`
	RTDSURL   string `yaml:"rtds_url"`
}

// LiveConfig controla la réplica real en el CLOB.
type LiveConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DryRun          bool    `yaml:"dry_run"`
	RPCURL          string  `yaml:"rpc_url"`
	PrivateKey      string  `yaml:"-"` // solo desde env
	MinBalanceMATIC float64 `yaml:"min_balance_matic"`
	MaxGasGwei      float64 `yaml:"max_gas_gwei"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// CacheConfig controla la cache de equity de leaders y metadata de mercados.
type CacheConfig struct {
	RedisURL         string `yaml:"redis_url"` // vacío = cache en memoria
	EquityTTLSeconds int    `yaml:"equity_ttl_seconds"`
}

// DashboardConfig controla la API HTTP de solo lectura.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
}

// TrackerConfig controla el seguimiento de posiciones abiertas de leaders.
type TrackerConfig struct {
	Leaders       []string `yaml:"leaders"`
	Category      string   `yaml:"category"`       // "all" = sin filtro
	SizeThreshold float64  `yaml:"size_threshold"` // shares mínimas por posición
	PollMillis    int      `yaml:"poll_ms"`
	Workers       int      `yaml:"workers"`
}

// IntentsConfig apunta al fichero de reglas del comando simulate.
type IntentsConfig struct {
	RulesPath string `yaml:"rules_path"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML (opcional) y el .env si
// existe. Las variables de entorno pisan al YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	cfg := Config{
		Paper:  PaperConfig{SlippageBps: 50},
		Ingest: IngestConfig{RTDSEnabled: true, HistoricalEnabled: true},
		Live:   LiveConfig{DryRun: true},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// sin archivo: solo entorno y defaults
		case err != nil:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval devuelve el intervalo del poller de la Data API.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Ingest.PollMillis) * time.Millisecond
}

// LoopInterval devuelve el intervalo del worker del ledger.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.Paper.LoopMillis) * time.Millisecond
}

// TrackerInterval devuelve el intervalo del tracker de posiciones.
func (c *Config) TrackerInterval() time.Duration {
	return time.Duration(c.Tracker.PollMillis) * time.Millisecond
}

// TrackerCategory devuelve la categoría a filtrar; vacío significa todas.
func (c *Config) TrackerCategory() string {
	if strings.EqualFold(c.Tracker.Category, "all") {
		return ""
	}
	return c.Tracker.Category
}

// EquityTTL devuelve la vida en cache del valor de un leader.
func (c *Config) EquityTTL() time.Duration {
	return time.Duration(c.Cache.EquityTTLSeconds) * time.Second
}

// StartEquity devuelve el capital inicial del follower.
func (c *Config) StartEquity() decimal.Decimal {
	return decimal.NewFromFloat(c.Paper.StartEquity)
}

// SizingPolicy traduce la sección paper a la política del dominio.
func (c *Config) SizingPolicy() domain.SizingPolicy {
	mode, _ := domain.ParseSizeMode(c.Paper.SizeMode) // ya validado
	return domain.SizingPolicy{
		Mode:             mode,
		SlippageBps:      decimal.NewFromFloat(c.Paper.SlippageBps),
		FixedCapPerTrade: decimal.NewFromFloat(c.Paper.FixedCapUSDC),
		FallbackFraction: decimal.NewFromFloat(c.Paper.FallbackFraction),
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"DB_PATH":           &cfg.Storage.DSN,
		"MY_WALLET":         &cfg.MyWallet,
		"PAPER_SIZE_MODE":   &cfg.Paper.SizeMode,
		"DATA_API_BASE":     &cfg.API.DataBase,
		"GAMMA_API_BASE":    &cfg.API.GammaBase,
		"CLOB_HOST":         &cfg.API.CLOBBase,
		"RTDS_URL":          &cfg.API.RTDSURL,
		"RPC_URL":           &cfg.Live.RPCURL,
		"PRIVATE_KEY":       &cfg.Live.PrivateKey,
		"REDIS_URL":         &cfg.Cache.RedisURL,
		"LOG_LEVEL":         &cfg.Log.Level,
		"LOG_FORMAT":        &cfg.Log.Format,
		"SPORTS_CATEGORY":   &cfg.Tracker.Category,
		"FOLLOW_RULES_PATH": &cfg.Intents.RulesPath,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("WALLETS"); v != "" {
		cfg.Wallets = splitWallets(v)
	}
	if v := os.Getenv("SPORTS_LEADERS"); v != "" {
		cfg.Tracker.Leaders = splitWallets(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Dashboard.Addr = ":" + strings.TrimPrefix(v, ":")
	}

	floats := map[string]*float64{
		"PAPER_START_EQUITY":      &cfg.Paper.StartEquity,
		"PAPER_SLIPPAGE_BPS":      &cfg.Paper.SlippageBps,
		"PAPER_FIXED_CAP":         &cfg.Paper.FixedCapUSDC,
		"PAPER_FALLBACK_FRACTION": &cfg.Paper.FallbackFraction,
		"MIN_BALANCE_MATIC":       &cfg.Live.MinBalanceMATIC,
		"MAX_GAS_GWEI":            &cfg.Live.MaxGasGwei,
		"SPORTS_SIZE_THRESHOLD":   &cfg.Tracker.SizeThreshold,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("env %s=%q: %w", key, v, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"POLL_INTERVAL_MS":        &cfg.Ingest.PollMillis,
		"PAPER_LOOP_MS":           &cfg.Paper.LoopMillis,
		"EQUITY_TTL_SECONDS":      &cfg.Cache.EquityTTLSeconds,
		"SPORTS_POLL_INTERVAL_MS": &cfg.Tracker.PollMillis,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("env %s=%q: %w", key, v, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"RTDS_ENABLED":              &cfg.Ingest.RTDSEnabled,
		"HISTORICAL_INGEST_ENABLED": &cfg.Ingest.HistoricalEnabled,
		"LIVE_TRADING_ENABLED":      &cfg.Live.Enabled,
		"LIVE_DRY_RUN":              &cfg.Live.DryRun,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			*dst = parseBool(v)
		}
	}
	return nil
}

// parseBool acepta "true"/"1"/"yes"; cualquier otro valor es false.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "on":
		return true
	}
	return false
}

func splitWallets(v string) []string {
	var out []string
	for _, w := range strings.Split(v, ",") {
		if w = domain.NormalizeWallet(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	for i, w := range cfg.Wallets {
		cfg.Wallets[i] = domain.NormalizeWallet(w)
	}
	if cfg.Paper.StartEquity == 0 {
		cfg.Paper.StartEquity = 100000
	}
	if cfg.Paper.SizeMode == "" {
		cfg.Paper.SizeMode = string(domain.SizeLeaderPct)
	}
	cfg.Paper.SizeMode = strings.ToUpper(cfg.Paper.SizeMode)
	if cfg.Paper.FallbackFraction <= 0 {
		cfg.Paper.FallbackFraction = domain.DefaultFallbackFraction.InexactFloat64()
	}
	if cfg.Paper.LoopMillis <= 0 {
		cfg.Paper.LoopMillis = 10000
	}
	if cfg.Paper.BatchLimit <= 0 {
		cfg.Paper.BatchLimit = 5000
	}
	if cfg.Ingest.PollMillis <= 0 {
		cfg.Ingest.PollMillis = 10000
	}
	if cfg.Ingest.PageLimit <= 0 {
		cfg.Ingest.PageLimit = 500
	}
	if cfg.Ingest.MaxPages <= 0 {
		cfg.Ingest.MaxPages = 40
	}
	if cfg.Ingest.Workers <= 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.RTDSURL == "" {
		cfg.API.RTDSURL = "wss://ws-live-data.polymarket.com"
	}
	if cfg.Live.RPCURL == "" {
		cfg.Live.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Live.MinBalanceMATIC <= 0 {
		cfg.Live.MinBalanceMATIC = 0.2
	}
	if cfg.Live.MaxGasGwei <= 0 {
		cfg.Live.MaxGasGwei = 150
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "./data/trades.db"
	}
	if cfg.Cache.EquityTTLSeconds <= 0 {
		cfg.Cache.EquityTTLSeconds = 300
	}
	if cfg.Dashboard.Addr == "" {
		cfg.Dashboard.Addr = ":3000"
	}
	for i, w := range cfg.Tracker.Leaders {
		cfg.Tracker.Leaders[i] = domain.NormalizeWallet(w)
	}
	if cfg.Tracker.Category == "" {
		cfg.Tracker.Category = "sports"
	}
	cfg.Tracker.Category = strings.ToLower(strings.TrimSpace(cfg.Tracker.Category))
	if cfg.Tracker.SizeThreshold <= 0 {
		cfg.Tracker.SizeThreshold = 1
	}
	if cfg.Tracker.PollMillis <= 0 {
		cfg.Tracker.PollMillis = 60000
	}
	if cfg.Tracker.Workers <= 0 {
		cfg.Tracker.Workers = 3
	}
	if cfg.Intents.RulesPath == "" {
		cfg.Intents.RulesPath = "follow-rules.json"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if _, err := domain.ParseSizeMode(c.Paper.SizeMode); err != nil {
		return err
	}
	if c.Paper.SlippageBps < 0 {
		return fmt.Errorf("paper.slippage_bps must be >= 0, got %v", c.Paper.SlippageBps)
	}
	if c.Paper.StartEquity <= 0 {
		return fmt.Errorf("paper.start_equity must be > 0, got %v", c.Paper.StartEquity)
	}
	if c.Paper.FixedCapUSDC < 0 {
		return fmt.Errorf("paper.fixed_cap_usdc must be >= 0, got %v", c.Paper.FixedCapUSDC)
	}
	if c.Live.Enabled && !c.Live.DryRun && c.Live.PrivateKey == "" {
		return errors.New("live trading requires PRIVATE_KEY")
	}
	return nil
}
