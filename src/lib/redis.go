package lib

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

// AcquireDailyLock takes the run-once-per-day lock for a named job via SETNX.
// Multiple replicas run the same cron; only the holder does the work. When
// redis is unreachable the lock is granted, a duplicate run is harmless and
// strictly better than no run.
func AcquireDailyLock(ctx context.Context, job string, now time.Time) bool {
	rdb := GetRedisClient()
	if rdb == nil {
		return true
	}
	key := fmt.Sprintf("%s:%s", job, now.UTC().Format("2006-01-02"))
	ok, err := rdb.SetNX(ctx, key, "1", 25*time.Hour).Result()
	if err != nil {
		log.Printf("[redis] Error acquiring lock %s: %s\n", key, err.Error())
		return true
	}
	return ok
}
