package classify

import (
	"regexp"
	"sort"
	"strings"

	"tg-meme-pulse/internal/domain"
)

// TopAccounts — сколько профилей попадает в рейтинг упоминаний.
const TopAccounts = 8

var (
	xPostRe      = regexp.MustCompile(`(?i)https?://(?:www\.|mobile\.)?(?:x|twitter)\.com/([A-Za-z0-9_]{1,15})/status/\d+`)
	tiktokPostRe = regexp.MustCompile(`(?i)https?://(?:www\.|m\.)?tiktok\.com/@([A-Za-z0-9_.]{2,24})/video/\d+`)
)

// LocalStats считает уникальных отправителей, число сообщений и самые
// упоминаемые профили по ссылкам на посты x.com, twitter.com и tiktok.
func LocalStats(messages []domain.Message) domain.UserStats {
	users := make(map[string]struct{})
	for _, m := range messages {
		users[m.User] = struct{}{}
	}
	return domain.UserStats{
		UniqueUserCount:      len(users),
		MessageCount:         len(messages),
		TopMentionedAccounts: rankAccounts(messages, TopAccounts),
	}
}

type mention struct {
	url   string
	pos   int
	count int
}

func rankAccounts(messages []domain.Message, limit int) []domain.AccountMention {
	index := make(map[string]*mention)
	var order []*mention
	add := func(url string, pos int) {
		m, ok := index[url]
		if !ok {
			m = &mention{url: url, pos: pos}
			index[url] = m
			order = append(order, m)
		}
		m.count++
	}
	pos := 0
	for _, msg := range messages {
		for _, match := range xPostRe.FindAllStringSubmatchIndex(msg.Text, -1) {
			handle := strings.ToLower(msg.Text[match[2]:match[3]])
			add("https://x.com/"+handle, pos+match[0])
		}
		for _, match := range tiktokPostRe.FindAllStringSubmatchIndex(msg.Text, -1) {
			handle := strings.ToLower(msg.Text[match[2]:match[3]])
			add("https://www.tiktok.com/@"+handle, pos+match[0])
		}
		pos += len(msg.Text) + 1
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].pos < order[j].pos
	})
	if len(order) > limit {
		order = order[:limit]
	}
	out := make([]domain.AccountMention, 0, len(order))
	for _, m := range order {
		out = append(out, domain.AccountMention{URL: m.url, Count: m.count})
	}
	return out
}
