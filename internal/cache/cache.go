// Package cache keeps detection results in Redis, keyed by image content and scan parameters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facecascade/internal/detector"
	"github.com/dudu/facecascade/internal/render"
)

const keyPrefix = "facecascade:detect:"

// Cache stores render.Result documents with a fixed expiration.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    logrus.FieldLogger
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New connects to Redis and checks the connection with a ping.
func New(ctx context.Context, opts Options, log logrus.FieldLogger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	log.WithField("addr", opts.Addr).Info("connected to redis")
	return NewWithClient(client, opts.TTL, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, ttl time.Duration, log logrus.FieldLogger) *Cache {
	return &Cache{client: client, ttl: ttl, log: log}
}

// Key derives the cache key of an encoded image scanned with params.
func Key(image []byte, params detector.ScanParams) string {
	h := sha256.New()
	h.Write(image)
	h.Write([]byte(strconv.FormatFloat(params.MinFaceSize, 'g', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(params.ScaleFactor, 'g', -1, 64)))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key. A miss is not an error.
func (c *Cache) Get(ctx context.Context, key string) (render.Result, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return render.Result{}, false, nil
	}
	if err != nil {
		return render.Result{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var res render.Result
	if err := jsoniter.Unmarshal(data, &res); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("dropping unreadable cache entry")
		c.client.Del(ctx, key)
		return render.Result{}, false, nil
	}
	return res, true, nil
}

// Set stores res under key.
func (c *Cache) Set(ctx context.Context, key string, res render.Result) error {
	data, err := render.Marshal(res)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
