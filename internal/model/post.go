package model

import "time"

// MaxPostLength は投稿本文の最大文字数（rune数）。
const MaxPostLength = 140

// MaxAboutMeLength は自己紹介の最大文字数（rune数）。
const MaxAboutMeLength = 140

// Post はユーザーの短文投稿を表す。
// AuthorUsername、AuthorEmailはタイムライン表示用にusersとJOINして取得される。
type Post struct {
	ID             int64
	Body           string
	Timestamp      time.Time
	UserID         int64
	AuthorUsername string
	AuthorEmail    string
}

// FollowCounts はユーザーのフォロワー数とフォロー数を表す。
type FollowCounts struct {
	Followers int
	Followees int
}
