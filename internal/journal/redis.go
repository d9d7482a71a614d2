package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Journal = (*Redis)(nil)

const redisWaitAOFTimeout = 5 * time.Second

// Redis keeps the journal in Redis lists so consumers on different hosts can
// share it. Each reservation step runs as one Lua script, which makes moving
// lines between the pool and a token atomic.
//
// Keys, all under miniq:journal:{<name>}: so they share one cluster slot:
//
//	lines          list of unreserved lines
//	res:<token>    list of lines held by token
//	deadlines      sorted set of token -> deadline (unix ms)
//	reads          hash of tokens that have been read
type Redis struct {
	client redis.UniversalClient
	opts   Options
	prefix string
}

var (
	reserveScript = redis.NewScript(`
local moved = 0
for i = 1, tonumber(ARGV[1]) do
  local line = redis.call('LMOVE', KEYS[1], KEYS[2], 'LEFT', 'RIGHT')
  if not line then break end
  moved = moved + 1
end
if moved > 0 then
  redis.call('ZADD', KEYS[3], ARGV[3], ARGV[2])
end
return moved
`)

	requeueScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, token in ipairs(expired) do
  local key = ARGV[2] .. token
  local held = redis.call('LRANGE', key, 0, -1)
  for i = #held, 1, -1 do
    redis.call('LPUSH', KEYS[2], held[i])
  end
  redis.call('DEL', key)
  redis.call('ZREM', KEYS[1], token)
  redis.call('HDEL', KEYS[3], token)
end
return #expired
`)

	readScript = redis.NewScript(`
local deadline = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not deadline or tonumber(deadline) <= tonumber(ARGV[2]) then
  return {'expired'}
end
if redis.call('HSETNX', KEYS[3], ARGV[1], '1') == 0 then
  return {'read'}
end
local out = {'ok'}
for _, line in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
  table.insert(out, line)
end
return out
`)

	cancelScript = redis.NewScript(`
local held = redis.call('LRANGE', KEYS[1], 0, -1)
for i = #held, 1, -1 do
  redis.call('LPUSH', KEYS[2], held[i])
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
return #held
`)

	commitScript = redis.NewScript(`
local deadline = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not deadline or tonumber(deadline) <= tonumber(ARGV[2]) then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)
)

// NewRedis returns a journal named name on client. The caller owns the
// client; Close does not close it.
func NewRedis(client redis.UniversalClient, name string, opts ...Option) *Redis {
	return &Redis{
		client: client,
		opts:   buildOptions(opts),
		prefix: "miniq:journal:{" + name + "}:",
	}
}

func (r *Redis) linesKey() string { return r.prefix + "lines" }
func (r *Redis) deadlinesKey() string { return r.prefix + "deadlines" }
func (r *Redis) readsKey() string { return r.prefix + "reads" }
func (r *Redis) tokenKey(token string) string { return r.prefix + "res:" + token }

// Write pushes lines onto the pool. With WithRedisWaitAOF the push and a
// WAITAOF share one pipelined connection, since WAITAOF only covers writes
// issued on its own connection.
func (r *Redis) Write(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	if err := validateLines(lines); err != nil {
		return err
	}
	values := make([]any, len(lines))
	for i, line := range lines {
		values[i] = line
	}
	if !r.opts.RedisWaitAOF {
		if err := r.client.RPush(ctx, r.linesKey(), values...).Err(); err != nil {
			return fmt.Errorf("journal write: %w", err)
		}
		return nil
	}

	var wait *redis.Cmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.linesKey(), values...)
		wait = pipe.Do(ctx, "WAITAOF", 1, 0, redisWaitAOFTimeout.Milliseconds())
		return nil
	})
	if err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	acked, err := wait.Int64Slice()
	if err != nil {
		return fmt.Errorf("journal write: waitaof: %w", err)
	}
	if len(acked) == 0 || acked[0] < 1 {
		return fmt.Errorf("journal write: %w: local aof not fsynced within %s", ErrNotDurable, redisWaitAOFTimeout)
	}
	return nil
}

// Sync round-trips a PING. Redis applies each write before acknowledging it,
// so Sync adds no durability of its own: without WithRedisWaitAOF the lines
// survive a server crash only as far as its appendonly/appendfsync settings
// allow.
func (r *Redis) Sync(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("journal sync: %w", err)
	}
	return nil
}

func (r *Redis) requeueExpired(ctx context.Context) error {
	nowMs := strconv.FormatInt(r.opts.Now().UnixMilli(), 10)
	err := requeueScript.Run(ctx, r.client,
		[]string{r.deadlinesKey(), r.linesKey(), r.readsKey()},
		nowMs, r.prefix+"res:",
	).Err()
	if err != nil {
		return fmt.Errorf("journal requeue expired: %w", err)
	}
	return nil
}

// ReadReserve moves up to n lines from the pool under a new token.
func (r *Redis) ReadReserve(ctx context.Context, n int, timeout time.Duration) (string, error) {
	if n <= 0 {
		return "", nil
	}
	if err := r.requeueExpired(ctx); err != nil {
		return "", err
	}
	token := uuid.NewString()
	deadline := r.opts.Now().Add(timeout).UnixMilli()
	moved, err := reserveScript.Run(ctx, r.client,
		[]string{r.linesKey(), r.tokenKey(token), r.deadlinesKey()},
		n, token, deadline,
	).Int64()
	if err != nil {
		return "", fmt.Errorf("journal reserve: %w", err)
	}
	if moved == 0 {
		return "", nil
	}
	return token, nil
}

// Read returns the lines held by token.
func (r *Redis) Read(ctx context.Context, token string) ([]string, error) {
	if err := r.requeueExpired(ctx); err != nil {
		return nil, err
	}
	out, err := readScript.Run(ctx, r.client,
		[]string{r.tokenKey(token), r.deadlinesKey(), r.readsKey()},
		token, r.opts.Now().UnixMilli(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("journal read: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("journal read: empty script reply")
	}
	switch out[0] {
	case "expired":
		return nil, ErrTokenExpired
	case "read":
		return nil, ErrAlreadyRead
	}
	return out[1:], nil
}

// ReadCancel returns token's lines to the front of the pool.
func (r *Redis) ReadCancel(ctx context.Context, token string) error {
	err := cancelScript.Run(ctx, r.client,
		[]string{r.tokenKey(token), r.linesKey(), r.deadlinesKey(), r.readsKey()},
		token,
	).Err()
	if err != nil {
		return fmt.Errorf("journal cancel: %w", err)
	}
	return nil
}

// Commit deletes token's lines.
func (r *Redis) Commit(ctx context.Context, token string) error {
	if err := r.requeueExpired(ctx); err != nil {
		return err
	}
	ok, err := commitScript.Run(ctx, r.client,
		[]string{r.tokenKey(token), r.deadlinesKey(), r.readsKey()},
		token, r.opts.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	if ok == 0 {
		return ErrTokenExpired
	}
	return nil
}

// Pending returns the number of unreserved lines.
func (r *Redis) Pending(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.linesKey()).Result()
}

// Close is a no-op; the caller owns the client.
func (r *Redis) Close() error {
	return nil
}
