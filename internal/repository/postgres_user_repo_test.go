package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/microblog/internal/model"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// NewPostgresUserRepoが正しく初期化されることを検証
func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestUniqueViolationField(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantField string
		wantOK    bool
	}{
		{
			name:      "username制約",
			err:       &pq.Error{Code: "23505", Constraint: "users_username_key"},
			wantField: "username",
			wantOK:    true,
		},
		{
			name:      "email制約",
			err:       &pq.Error{Code: "23505", Constraint: "users_email_key"},
			wantField: "email",
			wantOK:    true,
		},
		{
			name:      "ラップされたエラー",
			err:       errors.Join(errors.New("insert"), &pq.Error{Code: "23505", Constraint: "users_email_key"}),
			wantField: "email",
			wantOK:    true,
		},
		{
			name:   "外部キー違反は対象外",
			err:    &pq.Error{Code: "23503", Constraint: "posts_user_id_fkey"},
			wantOK: false,
		},
		{
			name:   "nil",
			err:    nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, ok := uniqueViolationField(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if field != tt.wantField {
				t.Errorf("field = %q, want %q", field, tt.wantField)
			}
		})
	}
}

func TestPostgresUserRepo_CreateAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	alice := mustCreateUser(t, repo, "alice")
	if alice.ID == 0 {
		t.Fatal("IDが採番されていない")
	}
	if alice.CreatedAt.IsZero() || alice.LastSeen.IsZero() {
		t.Error("タイムスタンプが設定されていない")
	}

	byName, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if byName == nil || byName.ID != alice.ID {
		t.Fatalf("FindByUsername = %+v, want id %d", byName, alice.ID)
	}

	byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if byEmail == nil || byEmail.Username != "alice" {
		t.Fatalf("FindByEmail = %+v", byEmail)
	}

	byID, err := repo.FindByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID == nil || byID.Email != "alice@example.com" {
		t.Fatalf("FindByID = %+v", byID)
	}

	missing, err := repo.FindByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("FindByUsername(nobody): %v", err)
	}
	if missing != nil {
		t.Errorf("存在しないユーザーはnilであるべき: %+v", missing)
	}
}

func TestPostgresUserRepo_Create_Duplicate(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	mustCreateUser(t, repo, "alice")

	err := repo.Create(ctx, &model.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	if !errors.Is(err, model.ErrDuplicateKey) {
		t.Fatalf("ユーザー名重複はDUPLICATE_KEYであるべき: %v", err)
	}

	err = repo.Create(ctx, &model.User{Username: "alice2", Email: "alice@example.com", PasswordHash: "x"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateKey {
		t.Fatalf("メール重複はDUPLICATE_KEYであるべき: %v", err)
	}
}

func TestPostgresUserRepo_UpdateProfile(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	alice := mustCreateUser(t, repo, "alice")
	mustCreateUser(t, repo, "bob")

	if err := repo.UpdateProfile(ctx, alice.ID, "alicia", "こんにちは"); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	got, _ := repo.FindByID(ctx, alice.ID)
	if got.Username != "alicia" || got.AboutMe != "こんにちは" {
		t.Errorf("更新結果 = %+v", got)
	}

	if err := repo.UpdateProfile(ctx, alice.ID, "bob", ""); !errors.Is(err, model.ErrDuplicateKey) {
		t.Errorf("既存ユーザー名への変更はDUPLICATE_KEYであるべき: %v", err)
	}
}

func TestPostgresUserRepo_TouchLastSeen(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	alice := mustCreateUser(t, repo, "alice")
	later := alice.LastSeen.Add(time.Hour)
	if err := repo.TouchLastSeen(ctx, alice.ID, later); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}
	got, _ := repo.FindByID(ctx, alice.ID)
	if !got.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, later)
	}
}

func TestPostgresUserRepo_DeleteByID(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	alice := mustCreateUser(t, repo, "alice")
	if err := repo.DeleteByID(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	got, _ := repo.FindByID(ctx, alice.ID)
	if got != nil {
		t.Error("削除後も取得できてしまう")
	}
	if err := repo.DeleteByID(ctx, alice.ID); err == nil {
		t.Error("存在しないユーザーの削除はエラーであるべき")
	}
}
