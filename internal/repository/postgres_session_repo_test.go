package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/microblog/internal/model"
)

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// NewPostgresSessionRepoが正しく初期化されることを検証
func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestPostgresSessionRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	sessions := NewPostgresSessionRepo(db)
	ctx := context.Background()

	alice := mustCreateUser(t, users, "alice")
	now := time.Now()

	active := &model.Session{ID: "active", UserID: alice.ID, Remember: true, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	expired := &model.Session{ID: "expired", UserID: alice.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)}
	for _, s := range []*model.Session{active, expired} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := sessions.FindByID(ctx, "active")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil || got.UserID != alice.ID || !got.Remember {
		t.Fatalf("FindByID(active) = %+v", got)
	}

	got, err = sessions.FindByID(ctx, "expired")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got != nil {
		t.Errorf("期限切れセッションはnilであるべき: %+v", got)
	}

	n, err := sessions.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired = %d, want 1", n)
	}

	if err := sessions.DeleteByUserID(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteByUserID: %v", err)
	}
	got, _ = sessions.FindByID(ctx, "active")
	if got != nil {
		t.Error("DeleteByUserID後もセッションが残っている")
	}
}

func TestPostgresSessionRepo_CascadeOnUserDelete(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	sessions := NewPostgresSessionRepo(db)
	ctx := context.Background()

	alice := mustCreateUser(t, users, "alice")
	now := time.Now()
	if err := sessions.Create(ctx, &model.Session{ID: "s1", UserID: alice.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := users.DeleteByID(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	got, _ := sessions.FindByID(ctx, "s1")
	if got != nil {
		t.Error("ユーザー削除でセッションもCASCADE削除されるべき")
	}
}

// RedisSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestRedisSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*RedisSessionRepo)(nil)
}

func TestRedisSessionRepo_Create_RejectsExpired(t *testing.T) {
	repo := NewRedisSessionRepo(nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	err := repo.Create(context.Background(), &model.Session{ID: "x", UserID: 1, ExpiresAt: now})
	if err == nil {
		t.Error("有効期限が過去のセッションはエラーであるべき")
	}
}

func TestUserSessionsKey(t *testing.T) {
	if got := userSessionsKey(42); got != "user_sessions:42" {
		t.Errorf("userSessionsKey(42) = %q", got)
	}
}
