// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/microblog/internal/model"
	"github.com/hitoshi/microblog/internal/repository"
)

// SessionRevoker はユーザーの全セッションを失効させるインターフェース。
type SessionRevoker interface {
	DeleteByUserID(ctx context.Context, userID int64) error
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithBcryptCost はパスワードハッシュのコストを指定する。
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// Service はユーザー管理のサービス層。
// 登録、認証情報の検証、プロフィール更新、退会処理を提供する。
type Service struct {
	userRepo repository.UserRepository
	sessions SessionRevoker
	validate *validator.Validate
	cost     int

	// dummyHash はユーザーが存在しない場合の比較に使う。
	dummyHash []byte
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessions SessionRevoker,
	opts ...Option,
) *Service {
	s := &Service{
		userRepo: userRepo,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("microblog-dummy-password"), s.cost)
	if err != nil {
		panic(fmt.Sprintf("failed to generate dummy hash: %v", err))
	}
	s.dummyHash = hash
	return s
}

type registerInput struct {
	Username string `validate:"required,max=64"`
	Email    string `validate:"required,email,max=120"`
	Password string `validate:"required"`
}

// Register は新規ユーザーを登録する。
// ユーザー名・メールアドレスが既に使われている場合はDUPLICATE_KEYを返し、何も保存しない。
// 平文パスワードは保存もログ出力もしない。
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	in := registerInput{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewInvalidInputError(validationReason(err))
	}

	existing, err := s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateKeyError("username")
	}
	existing, err = s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateKeyError("email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, model.NewInvalidInputError("パスワードが長すぎます")
	}
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
	}
	// 事前確認後の同時登録は一意制約でDUPLICATE_KEYになる
	if err := s.userRepo.Create(ctx, user); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// VerifyCredential はユーザー名とパスワードを検証し、一致すればユーザーを返す。
// ユーザーが存在しない場合とパスワード不一致の場合は同じAUTH_FAILUREを返す。
// ユーザーが存在しない場合もダミーハッシュと比較し、応答時間を揃える。
func (s *Service) VerifyCredential(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, model.NewAuthFailureError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewAuthFailureError()
	}
	return user, nil
}

// TouchLastSeen は最終アクセス日時を更新する。
func (s *Service) TouchLastSeen(ctx context.Context, userID int64, now time.Time) error {
	if err := s.userRepo.TouchLastSeen(ctx, userID, now); err != nil {
		return fmt.Errorf("最終アクセス日時の更新に失敗しました: %w", err)
	}
	return nil
}

// GetByUsername はユーザー名でユーザーを取得する。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(username)
	}
	return user, nil
}

// GetByID はIDでユーザーを取得する。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(strconv.FormatInt(userID, 10))
	}
	return user, nil
}

type profileInput struct {
	Username string `validate:"required,max=64"`
}

// UpdateProfile はユーザー名と自己紹介を更新し、更新後のユーザーを返す。
// 自己紹介は前後の空白を除いて140文字以内である必要がある。
// 自己紹介はそのまま保存し、表示時のエスケープはレンダラーが行う。
func (s *Service) UpdateProfile(ctx context.Context, userID int64, username, aboutMe string) (*model.User, error) {
	in := profileInput{Username: strings.TrimSpace(username)}
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewInvalidInputError(validationReason(err))
	}
	aboutMe = strings.TrimSpace(aboutMe)
	if utf8.RuneCountInString(aboutMe) > model.MaxAboutMeLength {
		return nil, model.NewInvalidInputError(
			fmt.Sprintf("自己紹介は%d文字以内で入力してください", model.MaxAboutMeLength))
	}

	current, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Username != current.Username {
		other, err := s.userRepo.FindByUsername(ctx, in.Username)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if other != nil {
			return nil, model.NewDuplicateKeyError("username")
		}
	}

	if err := s.userRepo.UpdateProfile(ctx, userID, in.Username, aboutMe); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	current.Username = in.Username
	current.AboutMe = aboutMe
	return current, nil
}

// Withdraw はユーザーの退会処理を実行する。
// セッションを全て失効させた後にユーザーを削除する。
// 投稿とフォロー関係はユーザーと同一トランザクションで削除される。
func (s *Service) Withdraw(ctx context.Context, userID int64) error {
	if _, err := s.GetByID(ctx, userID); err != nil {
		return err
	}

	slog.Info("退会処理を開始します", slog.Int64("user_id", userID))

	if s.sessions != nil {
		if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.Int64("user_id", userID))
	return nil
}

// validationReason はvalidatorのエラーを利用者向けの説明に変換する。
func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%sは必須です", field)
	case "max":
		return fmt.Sprintf("%sは%s文字以内で入力してください", field, fe.Param())
	case "email":
		return "メールアドレスの形式が正しくありません"
	default:
		return fmt.Sprintf("%sが不正です", field)
	}
}
