package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// DefaultWhatsAppGroupWindow joins WhatsApp messages from one sender sent within it.
const DefaultWhatsAppGroupWindow = 30 * time.Minute

// whatsAppSniffLines is how many non-blank lines are checked for a message
// header before a .txt file is treated as plain text.
const whatsAppSniffLines = 5

// whatsAppLines match one message header each; groups are date, time, sender
// and the first line of text. Dates use slashes or dots.
var whatsAppLines = []*regexp.Regexp{
	// [DD/MM/YYYY, HH:MM:SS] Sender: text
	regexp.MustCompile(`^\[(\d{1,2}[/.]\d{1,2}[/.]\d{2,4}),\s*(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp][Mm])?)\]\s*([^:]+):\s*(.*)`),
	// DD/MM/YYYY, HH:MM - Sender: text, with an optional AM/PM
	regexp.MustCompile(`^(\d{1,2}[/.]\d{1,2}[/.]\d{2,4}),\s*(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp][Mm])?)\s*-\s*([^:]+):\s*(.*)`),
}

var whatsAppChatNames = []*regexp.Regexp{
	regexp.MustCompile(`(?i)WhatsApp Chat with (.+)`),
	regexp.MustCompile(`(?i)Chat WhatsApp z (.+)`),
	regexp.MustCompile(`(?i)WhatsApp-chat met (.+)`),
}

// Day-first layouts are tried before month-first ones.
var whatsAppDateLayouts = []string{"2/1/2006", "2/1/06", "1/2/2006", "1/2/06"}

var (
	whatsAppClockLayouts = []string{"15:04", "15:04:05"}
	whatsAppAMPMLayouts  = []string{"3:04 PM", "3:04:05 PM", "3:04PM", "3:04:05PM"}
)

// isWhatsAppExport reports whether a .txt file is a WhatsApp chat export:
// either its name follows the export naming or one of its first lines is a
// message header.
func isWhatsAppExport(path string, content []byte) bool {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, re := range whatsAppChatNames {
		if re.MatchString(stem) {
			return true
		}
	}
	text, _ := extractPlain(content)
	seen := 0
	for _, line := range strings.Split(text, "\n") {
		line = cleanChatLine(line)
		if line == "" {
			continue
		}
		if whatsAppHeader(line) != nil {
			return true
		}
		seen++
		if seen >= whatsAppSniffLines {
			break
		}
	}
	return false
}

// whatsAppChatName extracts the other party from the export file name, or
// returns the bare file name.
func whatsAppChatName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, re := range whatsAppChatNames {
		if m := re.FindStringSubmatch(stem); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return stem
}

func cleanChatLine(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "\ufeff\u200e"))
}

func whatsAppHeader(line string) []string {
	for _, re := range whatsAppLines {
		if m := re.FindStringSubmatch(line); m != nil {
			return m
		}
	}
	return nil
}

// parseWhatsApp reads a WhatsApp chat export. Lines that do not start a
// message continue the previous one; consecutive messages from one sender at
// most window apart form a single record. Unparseable timestamps fall back
// to now.
func parseWhatsApp(content []byte, chatName string, window time.Duration, now time.Time) []models.Record {
	text, _ := extractPlain(content)

	var msgs []chatMessage
	for _, raw := range strings.Split(text, "\n") {
		line := cleanChatLine(raw)
		if m := whatsAppHeader(line); m != nil {
			msgs = append(msgs, chatMessage{
				sender: strings.TrimSpace(m[3]),
				text:   strings.TrimSpace(m[4]),
				at:     parseWhatsAppTime(m[1], m[2], now),
			})
			continue
		}
		if len(msgs) > 0 {
			last := &msgs[len(msgs)-1]
			last.text += "\n" + strings.TrimRight(raw, "\r")
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	var records []models.Record
	group := []chatMessage{msgs[0]}
	for _, m := range msgs[1:] {
		prev := group[len(group)-1]
		if m.sender == prev.sender && m.at.Sub(prev.at) <= window {
			group = append(group, m)
			continue
		}
		records = append(records, whatsAppRecord(group, chatName))
		group = []chatMessage{m}
	}
	return append(records, whatsAppRecord(group, chatName))
}

func parseWhatsAppTime(date, clock string, now time.Time) time.Time {
	date = strings.ReplaceAll(date, ".", "/")
	clock = strings.ToUpper(strings.TrimSpace(clock))
	clocks := whatsAppClockLayouts
	if strings.HasSuffix(clock, "AM") || strings.HasSuffix(clock, "PM") {
		clocks = whatsAppAMPMLayouts
	}
	for _, d := range whatsAppDateLayouts {
		for _, c := range clocks {
			if t, err := time.ParseInLocation(d+" "+c, date+" "+clock, time.Local); err == nil {
				return t
			}
		}
	}
	return now
}

func whatsAppRecord(group []chatMessage, chatName string) models.Record {
	first, last := group[0], group[len(group)-1]
	texts := make([]string, len(group))
	for i, m := range group {
		texts[i] = strings.TrimSpace(m.text)
	}
	md := map[string]interface{}{
		"date":          first.at.Format(dateLayout),
		"sender":        first.sender,
		"chat_name":     chatName,
		"message_count": len(group),
	}
	if !last.at.Equal(first.at) {
		md["date_end"] = last.at.Format(dateLayout)
	}
	return models.Record{
		Content:  first.sender + ": " + strings.Join(texts, " "),
		Metadata: md,
	}
}
