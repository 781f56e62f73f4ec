package rarity

import (
	"time"

	"go.uber.org/zap"

	dbBadger "github.com/kailas-cloud/rarity/internal/db/badger"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
	"github.com/kailas-cloud/rarity/internal/usecase/uniqueness"
)

// Option configures the Client.
type Option func(*clientConfig)

type thresholdOverride struct {
	similarity    float64
	maxCandidates int
}

type clientConfig struct {
	driver   string // "valkey", "redis" or "postgres"
	addrs    []string
	password string
	dsn      string
	maxConns int32

	embedder        Embedder
	openAIKey       string
	openAIBaseURL   string
	openAIModel     string
	instruction     string
	embedRatePerSec float64
	embedRateBurst  int
	embedCacheTTL   time.Duration

	moderation        bool
	moderationKey     string
	moderationBaseURL string
	moderationModel   string
	moderationTimeout time.Duration
	strictThreshold   float64

	vectorDimensions int
	hnswM            int
	hnswEFConstruct  int
	keyPrefix        string

	windows      []string
	types        *uniqueness.ContentTypes
	thresholds   map[ContentType]thresholdOverride
	dreams       *bool
	strictDreams *bool
	maxTextRunes int

	localCache bool
	badger     dbBadger.Config
	ttls       cache.TTLs
	logger     *zap.Logger
}

// WithValkey configures the client to store content in a Valkey instance.
func WithValkey(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithRedis configures the client to store content in a Redis instance.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithPostgres configures the client to store content in PostgreSQL with pgvector.
// Intermediate results are then cached in process (see WithLocalCache).
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.driver = "postgres"
		c.dsn = dsn
	}
}

// WithEmbedder sets a custom text embedding provider.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithOpenAI uses an OpenAI-compatible embeddings API. Empty baseURL means api.openai.com.
func WithOpenAI(apiKey, baseURL, model string) Option {
	return func(c *clientConfig) {
		c.openAIKey = apiKey
		c.openAIBaseURL = baseURL
		c.openAIModel = model
	}
}

// WithEmbeddingInstruction prepends an instruction prefix to every embedded text.
func WithEmbeddingInstruction(instruction string) Option {
	return func(c *clientConfig) {
		c.instruction = instruction
	}
}

// WithEmbeddingRateLimit caps provider calls per second. Calls above the limit
// use the local fallback vector.
func WithEmbeddingRateLimit(perSecond float64, burst int) Option {
	return func(c *clientConfig) {
		c.embedRatePerSec = perSecond
		c.embedRateBurst = burst
	}
}

// WithOpenAIModeration screens submissions with the OpenAI moderation endpoint,
// reusing the WithOpenAI credentials.
func WithOpenAIModeration() Option {
	return func(c *clientConfig) {
		c.moderation = true
	}
}

// WithModerationTimeout bounds a moderation call. Defaults to 3s.
func WithModerationTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.moderationTimeout = d
	}
}

// WithStrictThreshold sets the category score above which strict mode rejects.
func WithStrictThreshold(score float64) Option {
	return func(c *clientConfig) {
		c.strictThreshold = score
	}
}

// WithVectorDimensions sets the embedding dimension. Defaults to 1536.
func WithVectorDimensions(dim int) Option {
	return func(c *clientConfig) {
		c.vectorDimensions = dim
	}
}

// WithHNSW configures HNSW index parameters (M and EF construction).
// Defaults: M=16, EFConstruct=200.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	}
}

// WithKeyPrefix namespaces every key and index. Defaults to "rarity:".
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) {
		c.keyPrefix = prefix
	}
}

// WithWindows selects the look-back windows: "today", "week", "month", "year",
// a day count ("90d") or a Go duration ("36h"). Defaults to today, week and month.
func WithWindows(names ...string) Option {
	return func(c *clientConfig) {
		c.windows = names
	}
}

// WithThresholds overrides the similarity threshold and candidate cap of one content type.
func WithThresholds(typ ContentType, similarity float64, maxCandidates int) Option {
	return func(c *clientConfig) {
		if c.thresholds == nil {
			c.thresholds = make(map[ContentType]thresholdOverride)
		}
		c.thresholds[typ] = thresholdOverride{similarity: similarity, maxCandidates: maxCandidates}
	}
}

// WithDreams enables or disables dream submissions. Enabled by default.
func WithDreams(enabled bool) Option {
	return func(c *clientConfig) {
		c.dreams = &enabled
	}
}

// WithStrictDreamModeration toggles strict moderation for dreams. On by default.
func WithStrictDreamModeration(strict bool) Option {
	return func(c *clientConfig) {
		c.strictDreams = &strict
	}
}

// WithMaxTextRunes caps submission length for every content type.
func WithMaxTextRunes(n int) Option {
	return func(c *clientConfig) {
		c.maxTextRunes = n
	}
}

// WithLocalCache keeps intermediate results in an in-process store instead of
// the database. Always on for WithPostgres.
func WithLocalCache() Option {
	return func(c *clientConfig) {
		c.localCache = true
	}
}

// WithLogger sets the logger. Defaults to a no-op logger; nil keeps the default.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
