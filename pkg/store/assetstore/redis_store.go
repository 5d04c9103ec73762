package assetstore

import (
	"bytes"
	"context"
	"io"

	"github.com/flokli/assetcache/pkg/util"
	"github.com/redis/go-redis/v9"
)

var _ AssetStore = &RedisStore{}

// RedisStore keeps each asset as a string value in redis.
// Payloads are buffered during upload and written with a single command,
// so partially written assets are never visible.
// SETNX makes create-if-absent atomic across all processes sharing the database.
type RedisStore struct {
	client redis.UniversalClient
	prefix string

	reservations *reservations
	exclusion
}

// NewRedisStore returns a store using client, with all keys prefixed with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client:       client,
		prefix:       prefix,
		reservations: newReservations(),
		exclusion:    newExclusion(),
	}
}

// NewRedisStoreFromURL parses a redis://[user:password@]host:port/db URL.
func NewRedisStoreFromURL(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisStore(client, prefix), nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func (rs *RedisStore) redisKey(key string) string {
	return rs.prefix + key
}

// copyIn reads r into a fresh buffer, inside the write region.
func (rs *RedisStore) copyIn(ctx context.Context, r io.Reader) ([]byte, error) {
	unlock, err := rs.lockWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, util.ContextReader(ctx, r)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (rs *RedisStore) Upload(ctx context.Context, key string, r io.Reader, overwrite bool) error {
	if err := checkUpload(key, r); err != nil {
		return err
	}

	if overwrite {
		contents, err := rs.copyIn(ctx, r)
		if err != nil {
			return err
		}
		return rs.client.Set(ctx, rs.redisKey(key), contents, 0).Err()
	}

	if !rs.reservations.tryReserve(key) {
		return alreadyExists(key)
	}
	defer rs.reservations.release(key)

	// skip the copy if the key is obviously taken, SETNX below has the final say
	n, err := rs.client.Exists(ctx, rs.redisKey(key)).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return alreadyExists(key)
	}

	contents, err := rs.copyIn(ctx, r)
	if err != nil {
		return err
	}

	ok, err := rs.client.SetNX(ctx, rs.redisKey(key), contents, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return alreadyExists(key)
	}
	return nil
}

// size returns the length of the value, or ErrNotFound.
func (rs *RedisStore) size(ctx context.Context, key string) (int64, error) {
	var exists *redis.IntCmd
	var strlen *redis.IntCmd
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, rs.redisKey(key))
		strlen = pipe.StrLen(ctx, rs.redisKey(key))
		return nil
	})
	if err != nil {
		return 0, err
	}
	if exists.Val() == 0 {
		return 0, notFound(key)
	}
	return strlen.Val(), nil
}

func (rs *RedisStore) Download(ctx context.Context, key string, w io.Writer, br BytesRange) error {
	if err := checkDownload(key, w); err != nil {
		return err
	}

	size, err := rs.size(ctx, key)
	if err != nil {
		return err
	}
	offset, n, err := br.Resolve(size)
	if err != nil {
		return err
	}

	unlock, err := rs.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if n == 0 {
		return nil
	}

	// GETRANGE takes an inclusive end offset
	contents, err := rs.client.GetRange(ctx, rs.redisKey(key), offset, offset+n-1).Bytes()
	if err != nil {
		return err
	}
	if int64(len(contents)) != n {
		// the value got replaced in the meantime
		return io.ErrUnexpectedEOF
	}
	_, err = w.Write(contents)
	return err
}

func (rs *RedisStore) Copy(ctx context.Context, sourceKey, targetKey string) error {
	if err := checkKey(sourceKey); err != nil {
		return err
	}
	if err := checkKey(targetKey); err != nil {
		return err
	}

	contents, err := rs.client.Get(ctx, rs.redisKey(sourceKey)).Bytes()
	if err == redis.Nil {
		return notFound(sourceKey)
	}
	if err != nil {
		return err
	}

	unlock, err := rs.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return rs.Upload(ctx, targetKey, bytes.NewReader(contents), false)
}

func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		// nothing can be stored under the empty key
		return nil
	}
	return rs.client.Del(ctx, rs.redisKey(key)).Err()
}

func (rs *RedisStore) PublicURL(key string) (string, bool) {
	return "", false
}
