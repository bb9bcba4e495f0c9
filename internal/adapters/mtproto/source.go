package mtproto

import (
	"errors"
	"regexp"
	"strings"
)

// ErrSourceInvalid возвращается для нераспознанного адреса чата.
var ErrSourceInvalid = errors.New("некорректный адрес чата")

var (
	usernameRe = regexp.MustCompile(`(?i)^(?:@|https?://t\.me/|t\.me/)?([a-z0-9_]{4,32})/?$`)
	inviteRe   = regexp.MustCompile(`(?i)^(?:https?://)?t\.me/(?:\+|joinchat/)([a-z0-9_-]{8,})/?$`)
)

// Source — разобранный адрес чата: публичное имя или хеш приглашения.
type Source struct {
	Username   string
	InviteHash string
}

// ParseSource приводит адрес чата к каноничному виду.
func ParseSource(input string) (Source, error) {
	trim := strings.TrimSpace(input)
	if m := inviteRe.FindStringSubmatch(trim); len(m) == 2 {
		return Source{InviteHash: m[1]}, nil
	}
	if m := usernameRe.FindStringSubmatch(trim); len(m) == 2 && !isDigits(m[1]) {
		return Source{Username: strings.ToLower(m[1])}, nil
	}
	return Source{}, ErrSourceInvalid
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
