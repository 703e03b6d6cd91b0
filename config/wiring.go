package config

import (
	"time"

	"modsecmon/bancache"
	"modsecmon/geodb"
	"modsecmon/logging"
	"modsecmon/reputation"
	"modsecmon/verdict"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// A crashed holder blocks other deciders for at most redisLockTTL.
const (
	redisLockTTL  = 30 * time.Second
	redisLockWait = 10 * time.Second
)

// Observers are the optional metric hooks of an engine. Nil fields are skipped.
type Observers struct {
	Verdict    verdict.Observer
	Reputation reputation.Observer
}

// BuildEngine is the composition root shared by the command line check and the daemon.
// The returned close function releases the results log and the Redis client.
func (c Config) BuildEngine(logger zerolog.Logger, obs Observers) (e *verdict.Engine, closeFn func(), err error) {
	policy, err := c.Policy()
	if err != nil {
		return
	}

	if c.GeoIPData != "" {
		db := geodb.New(logger, geodb.NewGeoIPFileSystem())
		if loadErr := db.Load(c.GeoIPData); loadErr != nil {
			logger.Warn().Err(loadErr).Str("path", c.GeoIPData).Msg("GeoIP data set not loaded; decisions carry no country")
		} else {
			policy.Locator = db
		}
	}

	var closers []func()
	closeFn = func() {
		for _, f := range closers {
			f()
		}
	}

	var cache *bancache.Cache
	var locker bancache.Locker
	if c.BanCacheRedis != "" {
		client := redis.NewClient(&redis.Options{Addr: c.BanCacheRedis})
		closers = append(closers, func() { client.Close() })
		cache = bancache.New(logger, &bancache.RedisFileSystem{Client: client}, c.BanCacheKey, time.Now)
		locker = bancache.NewRedisLocker(client, c.BanCacheKey+":lock", redisLockTTL, redisLockWait)
	} else {
		cache = bancache.New(logger, &bancache.FileSystemImpl{}, c.BanCachePath, time.Now)
		locker = bancache.NewFileLocker(c.BanCachePath + ".lock")
	}

	var rl verdict.ResultsLogger
	if c.ResultsLog != "" {
		var frl *logging.FileResultsLogger
		frl, err = logging.NewFileResultsLogger(logging.OSResultsFileSystem{}, c.ResultsLog, logger)
		if err != nil {
			closeFn()
			return
		}
		rl = frl
		closers = append(closers, func() { frl.Close() })
	} else {
		rl = logging.NewZerologResultsLogger(logger)
	}

	providers := c.BuildProviders(logger, obs.Reputation)
	if len(providers) == 0 {
		logger.Warn().Msg("No reputation providers enabled; only the allowlist and the ban list apply")
	}

	e = verdict.NewEngine(logger, policy, cache, locker, providers, c.AlertSink(logger), rl, obs.Verdict)
	return
}
