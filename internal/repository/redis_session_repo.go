package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hitoshi/microblog/internal/model"
)

const (
	redisSessionPrefix     = "session:"
	redisUserSessionPrefix = "user_sessions:"
)

// extendTTL はキーの残りTTLが指定ミリ秒より短い場合だけTTLを延長する。
// TTL未設定（作成直後のSet）も延長の対象とする。
var extendTTL = redis.NewScript(`
local current = redis.call('PTTL', KEYS[1])
if current < tonumber(ARGV[1]) then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッション本体は session:<id> にTTL付きで保存し、
// ユーザー単位の一括削除のため user_sessions:<user_id> のSetでIDを管理する。
type RedisSessionRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

// NewRedisClient はREDIS_URL形式の接続文字列からRedisクライアントを生成し、疎通確認を行う。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

type redisSession struct {
	UserID    int64     `json:"user_id"`
	Remember  bool      `json:"remember"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Create はセッションを作成する。有効期限をキーのTTLとして設定する。
// user_sessions のTTLは保持するセッションのうち最も長いものに合わせ、短縮はしない。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %s", session.ID)
	}

	data, err := json.Marshal(redisSession{
		UserID:    session.UserID,
		Remember:  session.Remember,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	userKey := userSessionsKey(session.UserID)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisSessionPrefix+session.ID, data, ttl)
	pipe.SAdd(ctx, userKey, session.ID)
	extendTTL.Eval(ctx, pipe, []string{userKey}, ttl.Milliseconds())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れ・存在しない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.client.Get(ctx, redisSessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var s redisSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}

	return &model.Session{
		ID:        id,
		UserID:    s.UserID,
		Remember:  s.Remember,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisSessionPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	userKey := userSessionsKey(userID)
	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, redisSessionPrefix+id)
	}
	keys = append(keys, userKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired はRedisのTTLで期限切れキーが消えるため常に0を返す。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func userSessionsKey(userID int64) string {
	return redisUserSessionPrefix + strconv.FormatInt(userID, 10)
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
