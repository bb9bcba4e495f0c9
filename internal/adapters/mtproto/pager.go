package mtproto

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gotd/td/tg"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

var _ domain.HistoryPager = (*Client)(nil)

type peer struct {
	input tg.InputPeerClass
	label string
}

// HistoryPage читает страницу истории через messages.getHistory.
func (c *Client) HistoryPage(ctx context.Context, source string, offsetID int, offsetDate time.Time, limit int) ([]domain.SourceMessage, error) {
	api, err := c.apiClient()
	if err != nil {
		return nil, err
	}
	p, err := c.resolve(ctx, api, source)
	if err != nil {
		return nil, err
	}
	req := &tg.MessagesGetHistoryRequest{Peer: p.input, Limit: limit}
	if offsetID > 0 {
		req.OffsetID = offsetID
	} else if !offsetDate.IsZero() {
		req.OffsetDate = int(offsetDate.Unix())
	}

	start := time.Now()
	res, err := api.MessagesGetHistory(ctx, req)
	metrics.ObserveNetworkRequest("mtproto", "messages_get_history", p.label, start, err)
	if err != nil {
		return nil, fmt.Errorf("messages.getHistory: %w", err)
	}

	var (
		messages []tg.MessageClass
		users    []tg.UserClass
		chats    []tg.ChatClass
	)
	switch v := res.(type) {
	case *tg.MessagesMessages:
		messages, users, chats = v.Messages, v.Users, v.Chats
	case *tg.MessagesMessagesSlice:
		messages, users, chats = v.Messages, v.Users, v.Chats
	case *tg.MessagesChannelMessages:
		messages, users, chats = v.Messages, v.Users, v.Chats
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("messages.getHistory: неожиданный ответ %T", res)
	}
	return convertMessages(messages, users, chats, p.label), nil
}

func convertMessages(messages []tg.MessageClass, users []tg.UserClass, chats []tg.ChatClass, chatLabel string) []domain.SourceMessage {
	userByID := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			userByID[user.ID] = user
		}
	}
	channelByID := make(map[int64]*tg.Channel, len(chats))
	for _, ch := range chats {
		if channel, ok := ch.(*tg.Channel); ok {
			channelByID[channel.ID] = channel
		}
	}

	out := make([]domain.SourceMessage, 0, len(messages))
	for _, m := range messages {
		var msg *tg.Message
		switch v := m.(type) {
		case *tg.Message:
			msg = v
		case *tg.MessageService:
			out = append(out, domain.SourceMessage{
				ID:      v.ID,
				Time:    time.Unix(int64(v.Date), 0).UTC(),
				Sender:  chatLabel,
				Service: true,
			})
			continue
		case *tg.MessageEmpty:
			out = append(out, domain.SourceMessage{ID: v.ID, Sender: chatLabel, Service: true})
			continue
		default:
			continue
		}
		sm := domain.SourceMessage{
			ID:     msg.ID,
			Time:   time.Unix(int64(msg.Date), 0).UTC(),
			Text:   msg.Message,
			Sender: chatLabel,
		}
		if from, ok := msg.GetFromID(); ok {
			switch f := from.(type) {
			case *tg.PeerUser:
				sm.Sender = "id_" + strconv.FormatInt(f.UserID, 10)
				if u, ok := userByID[f.UserID]; ok {
					if u.Username != "" {
						sm.Sender = "@" + u.Username
					}
					sm.Bot = u.Bot
				}
			case *tg.PeerChannel:
				sm.Sender = channelLabel(f.ChannelID, channelByID[f.ChannelID])
			case *tg.PeerChat:
				sm.Sender = "id_" + strconv.FormatInt(f.ChatID, 10)
			}
		}
		out = append(out, sm)
	}
	return out
}

func channelLabel(id int64, ch *tg.Channel) string {
	if ch != nil && ch.Username != "" {
		return "@" + ch.Username
	}
	return "id_" + strconv.FormatInt(id, 10)
}

// resolve находит InputPeer по адресу чата и кеширует результат.
func (c *Client) resolve(ctx context.Context, api *tg.Client, source string) (peer, error) {
	c.mu.Lock()
	p, ok := c.peers[source]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	parsed, err := ParseSource(source)
	if err != nil {
		return peer{}, fmt.Errorf("%s: %w", source, err)
	}
	start := time.Now()
	if parsed.InviteHash != "" {
		p, err = resolveInvite(ctx, api, parsed.InviteHash)
		metrics.ObserveNetworkRequest("mtproto", "messages_check_chat_invite", "invite", start, err)
	} else {
		p, err = resolveUsername(ctx, api, parsed.Username)
		metrics.ObserveNetworkRequest("mtproto", "contacts_resolve_username", parsed.Username, start, err)
	}
	if err != nil {
		return peer{}, err
	}
	c.mu.Lock()
	c.peers[source] = p
	c.mu.Unlock()
	c.log.Debug().Str("source", source).Str("peer", p.label).Msg("mtproto: чат найден")
	return p, nil
}

func resolveUsername(ctx context.Context, api *tg.Client, username string) (peer, error) {
	res, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return peer{}, fmt.Errorf("contacts.resolveUsername %s: %w", username, err)
	}
	switch pc := res.Peer.(type) {
	case *tg.PeerChannel:
		for _, ch := range res.Chats {
			if channel, ok := ch.(*tg.Channel); ok && channel.ID == pc.ChannelID {
				return channelPeer(channel), nil
			}
		}
	case *tg.PeerChat:
		return peer{input: &tg.InputPeerChat{ChatID: pc.ChatID}, label: "@" + username}, nil
	case *tg.PeerUser:
		for _, u := range res.Users {
			if user, ok := u.(*tg.User); ok && user.ID == pc.UserID {
				return peer{input: &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, label: "@" + username}, nil
			}
		}
	}
	return peer{}, fmt.Errorf("contacts.resolveUsername %s: чат не найден в ответе", username)
}

func resolveInvite(ctx context.Context, api *tg.Client, hash string) (peer, error) {
	res, err := api.MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		return peer{}, fmt.Errorf("messages.checkChatInvite: %w", err)
	}
	var chat tg.ChatClass
	switch v := res.(type) {
	case *tg.ChatInviteAlready:
		chat = v.Chat
	case *tg.ChatInvitePeek:
		chat = v.Chat
	default:
		return peer{}, fmt.Errorf("messages.checkChatInvite: аккаунт не состоит в чате по приглашению")
	}
	switch ch := chat.(type) {
	case *tg.Channel:
		return channelPeer(ch), nil
	case *tg.Chat:
		return peer{input: &tg.InputPeerChat{ChatID: ch.ID}, label: "id_" + strconv.FormatInt(ch.ID, 10)}, nil
	}
	return peer{}, fmt.Errorf("messages.checkChatInvite: неподдерживаемый тип чата %T", chat)
}

func channelPeer(ch *tg.Channel) peer {
	return peer{
		input: &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
		label: channelLabel(ch.ID, ch),
	}
}
