package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

const (
	maxParticipantsShown = 3
	maxChatNameLen       = 100
	maxSharedLinks       = 3
)

type messengerExport struct {
	Participants []struct {
		Name string `json:"name"`
	} `json:"participants"`
	Messages []messengerMessage `json:"messages"`
	Title    string             `json:"title"`
}

type messengerMessage struct {
	SenderName  string            `json:"sender_name"`
	TimestampMS int64             `json:"timestamp_ms"`
	Content     string            `json:"content"`
	Photos      []json.RawMessage `json:"photos"`
	Videos      []json.RawMessage `json:"videos"`
	AudioFiles  []json.RawMessage `json:"audio_files"`
	Gifs        []json.RawMessage `json:"gifs"`
	Sticker     json.RawMessage   `json:"sticker"`
	Share       *struct {
		Link string `json:"link"`
	} `json:"share"`
	Reactions []json.RawMessage `json:"reactions"`
}

type chatMessage struct {
	sender string
	text   string
	at     time.Time
}

type chatContext struct {
	name          string
	participants  []string
	threadType    string
	mediaTypes    []string
	sharedLinks   []string
	reactionCount int
}

// parseMessenger reads a Messenger JSON export and groups consecutive
// messages from one sender that are at most window apart. A JSON file
// without a messages array is not an export and yields no records.
func parseMessenger(content []byte, window time.Duration) ([]models.Record, error) {
	var export messengerExport
	if err := json.Unmarshal(content, &export); err != nil {
		return nil, fmt.Errorf("parse messenger export: %w", err)
	}
	if len(export.Messages) == 0 {
		return nil, nil
	}

	chat := chatContext{name: fixMojibake(export.Title)}
	if chat.name == "" {
		chat.name = "Unknown Chat"
	}
	for _, p := range export.Participants {
		name := fixMojibake(p.Name)
		if name == "" {
			name = "Unknown"
		}
		chat.participants = append(chat.participants, name)
	}

	// Exports are newest first.
	var msgs []chatMessage
	for i := len(export.Messages) - 1; i >= 0; i-- {
		if m, ok := toChatMessage(export.Messages[i]); ok {
			msgs = append(msgs, m)
		}
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	chat.threadType = threadType(chat.participants, msgs)
	chat.mediaTypes, chat.sharedLinks = mediaInfo(export.Messages)
	for _, m := range export.Messages {
		chat.reactionCount += len(m.Reactions)
	}

	var records []models.Record
	group := []chatMessage{msgs[0]}
	for _, m := range msgs[1:] {
		prev := group[len(group)-1]
		if m.sender == prev.sender && m.at.Sub(prev.at) <= window {
			group = append(group, m)
			continue
		}
		records = append(records, formatGroup(group, chat))
		group = []chatMessage{m}
	}
	records = append(records, formatGroup(group, chat))
	return records, nil
}

func toChatMessage(m messengerMessage) (chatMessage, bool) {
	text := m.Content
	if text == "" {
		switch {
		case len(m.Photos) > 0:
			text = "[Photo]"
		case len(m.Sticker) > 0 && string(m.Sticker) != "null":
			text = "[Sticker]"
		case len(m.Videos) > 0:
			text = "[Video]"
		case len(m.AudioFiles) > 0:
			text = "[Audio]"
		case len(m.Gifs) > 0:
			text = "[GIF]"
		case m.Share != nil && m.Share.Link != "":
			text = "[Shared: " + m.Share.Link + "]"
		case m.Share != nil:
			text = "[Shared content]"
		default:
			return chatMessage{}, false
		}
	}
	sender := fixMojibake(m.SenderName)
	if sender == "" {
		sender = "Unknown"
	}
	return chatMessage{
		sender: sender,
		text:   fixMojibake(text),
		at:     time.UnixMilli(m.TimestampMS).Local(),
	}, true
}

// threadType is individual for two participants, broadcast when one sender
// wrote over 90% of the messages in a chat of more than ten, and group otherwise.
func threadType(participants []string, msgs []chatMessage) string {
	if len(participants) == 2 {
		return "individual"
	}
	if len(participants) > 10 && len(msgs) > 0 {
		counts := map[string]int{}
		top := 0
		for _, m := range msgs {
			counts[m.sender]++
			if counts[m.sender] > top {
				top = counts[m.sender]
			}
		}
		if float64(top)/float64(len(msgs)) > 0.9 {
			return "broadcast"
		}
	}
	return "group"
}

func mediaInfo(msgs []messengerMessage) (types []string, links []string) {
	seen := map[string]bool{}
	for _, m := range msgs {
		if len(m.Photos) > 0 {
			seen["photo"] = true
		}
		if len(m.Videos) > 0 {
			seen["video"] = true
		}
		if len(m.AudioFiles) > 0 {
			seen["audio"] = true
		}
		if len(m.Gifs) > 0 {
			seen["gif"] = true
		}
		if len(m.Sticker) > 0 && string(m.Sticker) != "null" {
			seen["sticker"] = true
		}
		if m.Share != nil && m.Share.Link != "" && !contains(links, m.Share.Link) {
			links = append(links, m.Share.Link)
		}
	}
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, links
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func participantsLabel(names []string) string {
	if len(names) <= maxParticipantsShown {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s (+%d others)", strings.Join(names[:maxParticipantsShown], ", "), len(names)-maxParticipantsShown)
}

func formatGroup(group []chatMessage, chat chatContext) models.Record {
	first, last := group[0], group[len(group)-1]
	texts := make([]string, len(group))
	for i, m := range group {
		texts[i] = m.text
	}
	md := map[string]interface{}{
		"date":              first.at.Format(dateLayout),
		"sender":            first.sender,
		"chat_name":         utils.Truncate(chat.name, maxChatNameLen-3),
		"participants":      participantsLabel(chat.participants),
		"participant_count": len(chat.participants),
		"message_count":     len(group),
		"thread_type":       chat.threadType,
		"is_group_chat":     chat.threadType != "individual",
	}
	if len(chat.mediaTypes) > 0 {
		md["has_media"] = true
		md["media_types"] = strings.Join(chat.mediaTypes, ", ")
	}
	if len(chat.sharedLinks) > 0 {
		links := chat.sharedLinks
		if len(links) > maxSharedLinks {
			links = links[:maxSharedLinks]
		}
		md["shared_links"] = strings.Join(links, ", ")
	}
	if chat.reactionCount > 0 {
		md["reaction_count"] = chat.reactionCount
	}
	if !last.at.Equal(first.at) {
		md["date_end"] = last.at.Format(dateLayout)
	}
	return models.Record{
		Content:  first.sender + ": " + strings.Join(texts, " "),
		Metadata: md,
	}
}
