package repository

import (
	"errors"

	"github.com/lib/pq"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// uniqueViolationField は一意制約違反エラーから重複した項目名を返す。
// 一意制約違反でない場合はokがfalseになる。
func uniqueViolationField(err error) (field string, ok bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pgUniqueViolation {
		return "", false
	}

	switch pqErr.Constraint {
	case "users_username_key":
		return "username", true
	case "users_email_key":
		return "email", true
	default:
		return pqErr.Constraint, true
	}
}
