package rarity

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/rarity/internal/config"
	dbBadger "github.com/kailas-cloud/rarity/internal/db/badger"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
	"github.com/kailas-cloud/rarity/internal/usecase/uniqueness"
)

// NewFromEnv creates a Client from config/{env}.yaml, the same file rarityd
// reads (ENV selects it for the daemon). opts are applied after the file.
func NewFromEnv(env string, opts ...Option) (*Client, error) {
	fc, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("rarity: %w", err)
	}
	return New(append([]Option{withConfig(fc)}, opts...)...)
}

// withConfig maps a validated file config onto the client settings.
func withConfig(fc config.Config) Option {
	return func(c *clientConfig) {
		c.driver = fc.Database.Driver
		c.addrs = fc.Database.Addrs
		c.password = fc.Database.Password
		c.dsn = fc.Database.DSN
		c.maxConns = fc.Database.MaxConns

		c.localCache = fc.Cache.Driver == config.DriverBadger
		c.badger = dbBadger.Config{
			Dir:        fc.Cache.Badger.Dir,
			InMemory:   fc.Cache.Badger.InMemory,
			GCInterval: seconds(fc.Cache.Badger.GCIntervalSec),
		}
		c.ttls = cache.TTLs{
			Moderation: seconds(fc.Cache.ModerationTTL),
			Similar:    seconds(fc.Cache.SimilarTTL),
			Temporal:   seconds(fc.Cache.TemporalTTL),
			TotalCount: seconds(fc.Cache.TotalCountTTL),
		}

		ec := fc.Embedding
		c.openAIKey = ec.APIKey
		c.openAIBaseURL = ec.BaseURL
		c.openAIModel = ec.Model
		c.vectorDimensions = ec.Dimensions
		c.instruction = ec.Instruction
		c.embedRatePerSec = ec.RatePerSec
		c.embedRateBurst = ec.RateBurst
		c.embedCacheTTL = seconds(ec.CacheTTL)

		mc := fc.Moderation
		c.moderation = mc.Enabled && mc.APIKey != ""
		c.moderationKey = mc.APIKey
		c.moderationBaseURL = mc.BaseURL
		c.moderationModel = mc.Model
		c.moderationTimeout = fc.ModerationTimeout()
		c.strictThreshold = mc.StrictThreshold

		c.hnswM = fc.Index.HNSWM
		c.hnswEFConstruct = fc.Index.HNSWEFConstruct
		c.keyPrefix = fc.Storage.KeyPrefix
		c.windows = fc.Windows
		c.types = &uniqueness.ContentTypes{
			Post:  typeConfig(fc.ContentTypes.Post),
			Dream: typeConfig(fc.ContentTypes.Dream),
		}
	}
}

func typeConfig(c config.ContentTypeConfig) uniqueness.TypeConfig {
	return uniqueness.TypeConfig{
		Thresholds: content.Thresholds{
			Similarity:    c.SimilarityThreshold,
			MaxCandidates: c.MaxCandidates,
		},
		Allowed:          c.IsAllowed(),
		StrictModeration: c.StrictModeration,
		MaxTextRunes:     c.MaxTextRunes,
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
