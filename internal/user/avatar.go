package user

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// AvatarURL はメールアドレスからGravatarの画像URLを生成する。
// メールアドレスは前後の空白を除去し小文字化してからハッシュするため、大文字小文字を区別しない。
func AvatarURL(email string, size int) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=identicon&s=%d", hex.EncodeToString(sum[:]), size)
}
