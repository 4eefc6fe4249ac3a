// Package feed はタイムラインの組み立てとRSS出力を提供する。
package feed

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/microblog/internal/model"
)

// TimelineSource はタイムラインの投稿列を提供するインターフェース。
type TimelineSource interface {
	Timeline(ctx context.Context, userID int64) iter.Seq2[model.Post, error]
}

// UserLookup はユーザー名からユーザーを取得するインターフェース。
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// PostLister は投稿者の投稿一覧を取得するインターフェース。
type PostLister interface {
	PostsBy(ctx context.Context, authorID int64) ([]model.Post, error)
}

// HTMLFormatter は投稿本文をRSSのdescriptionに載せるHTMLへ変換する。
type HTMLFormatter interface {
	HTML(text string) string
}

// Assembler はタイムラインとRSSを組み立てる。
type Assembler struct {
	source    TimelineSource
	users     UserLookup
	posts     PostLister
	formatter HTMLFormatter
}

// NewAssembler はAssemblerの新しいインスタンスを生成する。
func NewAssembler(source TimelineSource, users UserLookup, posts PostLister, formatter HTMLFormatter) *Assembler {
	return &Assembler{source: source, users: users, posts: posts, formatter: formatter}
}

// Timeline は自身とフォロー中ユーザーの投稿を新しい順に返す。
// 返すシーケンスは遅延評価で、rangeのたびに最新の状態を問い合わせる。
// 同時刻の投稿は後から作成されたものが先に来る。
func (a *Assembler) Timeline(ctx context.Context, userID int64) iter.Seq2[model.Post, error] {
	return a.source.Timeline(ctx, userID)
}

// Collect はシーケンスを全て読み出してスライスにする。
// 途中でエラーが発生した場合はそこで打ち切ってエラーを返す。
func Collect(seq iter.Seq2[model.Post, error]) ([]model.Post, error) {
	var posts []model.Post
	for p, err := range seq {
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// RSS は指定ユーザー自身の投稿をRSS 2.0で出力する。
// baseURLはリンクの組み立てに使う公開URL。
func (a *Assembler) RSS(ctx context.Context, username, baseURL string) ([]byte, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	posts, err := a.posts.PostsBy(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	profileURL, err := url.JoinPath(baseURL, "user", user.Username)
	if err != nil {
		return nil, fmt.Errorf("プロフィールURLの生成に失敗しました: %w", err)
	}

	f := &feeds.Feed{
		Title:       user.Username + " - microblog",
		Link:        &feeds.Link{Href: profileURL},
		Description: a.formatter.HTML(user.AboutMe),
		Author:      &feeds.Author{Name: user.Username},
		Created:     user.CreatedAt,
	}
	if len(posts) > 0 {
		f.Updated = posts[0].Timestamp
	}

	for _, p := range posts {
		id := strconv.FormatInt(p.ID, 10)
		f.Items = append(f.Items, &feeds.Item{
			Id:          profileURL + "#post-" + id,
			Title:       itemTitle(p.Body),
			Link:        &feeds.Link{Href: profileURL + "#post-" + id},
			Description: a.formatter.HTML(p.Body),
			Author:      &feeds.Author{Name: user.Username},
			Created:     p.Timestamp.In(time.UTC),
		})
	}

	out, err := f.ToRss()
	if err != nil {
		return nil, fmt.Errorf("RSSの生成に失敗しました: %w", err)
	}
	return []byte(out), nil
}

// itemTitle は本文の先頭40文字をタイトルとして使う。
func itemTitle(body string) string {
	const maxRunes = 40
	r := []rune(body)
	if len(r) <= maxRunes {
		return body
	}
	return string(r[:maxRunes]) + "…"
}
