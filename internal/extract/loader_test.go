package extract

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loaderNow = time.Date(2024, 3, 13, 12, 0, 0, 0, time.Local)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newTestLoader() *Loader {
	return NewLoader(WithClock(func() time.Time { return loaderNow }))
}

func TestLoader_Supports(t *testing.T) {
	l := NewLoader()
	assert.True(t, l.Supports("/a/notes.TXT"))
	assert.True(t, l.Supports("inbox.mbox"))
	assert.True(t, l.Supports("message_1.json"))
	assert.False(t, l.Supports("image.png"))
	assert.False(t, l.Supports("Makefile"))
	assert.Len(t, SupportedExtensions(), len(supportedExtensions))
}

func TestLoader_Text(t *testing.T) {
	path := writeFile(t, "notes.md", "# Packing list\npassport, charger")
	mtime := time.Date(2023, 7, 1, 9, 30, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	recs, err := newTestLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	md := recs[0].Metadata
	assert.Equal(t, "# Packing list\npassport, charger", recs[0].Content)
	assert.Equal(t, SourceText, md["source_type"])
	assert.Equal(t, "notes.md", md["filename"])
	assert.Equal(t, path, md["file_path"])
	assert.Equal(t, "2024-03-13T12:00:00", md["indexed_at"])
	assert.Equal(t, "2023-07-01T09:30:00", md["date"])
	assert.Equal(t, "Packing list", md["title"])
}

func TestLoader_EmptyText(t *testing.T) {
	path := writeFile(t, "empty.txt", "  \n ")
	recs, err := newTestLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLoader_Errors(t *testing.T) {
	l := newTestLoader()
	_, err := l.Load(context.Background(), writeFile(t, "photo.png", "x"))
	assert.Error(t, err)

	_, err = l.Load(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "folder.txt")
	require.NoError(t, os.Mkdir(dir, 0o755))
	_, err = l.Load(context.Background(), dir)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx, writeFile(t, "a.txt", "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

const plainEmail = "From: Anna Nowak <anna@example.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?UTF-8?Q?Wyjazd_do_Zakopanego?=\r\n" +
	"Date: Tue, 12 Mar 2024 10:15:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hotel booked for Friday.\r\n"

func TestLoader_Email(t *testing.T) {
	path := writeFile(t, "trip.eml", plainEmail)
	recs, err := newTestLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	md := recs[0].Metadata
	assert.Equal(t, SourceEmail, md["source_type"])
	assert.Equal(t, "Wyjazd do Zakopanego", md["subject"])
	assert.Equal(t, "Anna Nowak", md["sender"])
	assert.Equal(t, "anna@example.com", md["sender_email"])
	assert.Equal(t, "me@example.com", md["recipient"])
	want := time.Date(2024, 3, 12, 10, 15, 0, 0, time.UTC).Local().Format(dateLayout)
	assert.Equal(t, want, md["date"])
	assert.Contains(t, recs[0].Content, "Subject: Wyjazd do Zakopanego\n")
	assert.Contains(t, recs[0].Content, "From: Anna Nowak <anna@example.com>\n")
	assert.Contains(t, recs[0].Content, "Hotel booked for Friday.")
}

func TestLoader_EmailMultipart(t *testing.T) {
	raw := "From: jan@example.com\r\n" +
		"Subject: Invoice\r\n" +
		"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
		"\r\n" +
		"--outer\r\n" +
		"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
		"\r\n" +
		"--inner\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>HTML body</p>\r\n" +
		"--inner\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"UGxh\r\naW4gYm9keQ==\r\n" +
		"--inner--\r\n" +
		"--outer\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
		"\r\n" +
		"attached secret\r\n" +
		"--outer--\r\n"
	recs, err := newTestLoader().Load(context.Background(), writeFile(t, "invoice.eml", raw))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Contains(t, recs[0].Content, "Plain body")
	assert.NotContains(t, recs[0].Content, "HTML body")
	assert.NotContains(t, recs[0].Content, "attached secret")
	assert.Equal(t, "jan@example.com", recs[0].Metadata["sender"])
}

func TestLoader_EmailHTMLOnly(t *testing.T) {
	raw := "From: shop@example.com\r\n" +
		"Subject: Order\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<html><body><p>Order shipped</p></body></html>\r\n"
	recs, err := newTestLoader().Load(context.Background(), writeFile(t, "order.eml", raw))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Content, "Order shipped")
	assert.NotContains(t, recs[0].Content, "<p>")
}

func TestLoader_Mbox(t *testing.T) {
	mbox := "From anna@example.com Tue Mar 12 10:15:00 2024\n" +
		"From: anna@example.com\nSubject: First\n\nfirst body\n>From the start\n" +
		"From jan@example.com Wed Mar 13 08:00:00 2024\n" +
		"From: jan@example.com\nSubject: Second\n\nsecond body\n"
	recs, err := newTestLoader().Load(context.Background(), writeFile(t, "inbox.mbox", mbox))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "First", recs[0].Metadata["subject"])
	assert.Contains(t, recs[0].Content, "From the start")
	assert.Equal(t, "Second", recs[1].Metadata["subject"])
	assert.Equal(t, "inbox.mbox", recs[1].Metadata["filename"])
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// ms returns a Messenger timestamp offset from a fixed base.
func ms(offset time.Duration) int64 {
	return time.Date(2021, 12, 20, 18, 0, 0, 0, time.UTC).Add(offset).UnixMilli()
}

func TestLoader_Messenger(t *testing.T) {
	// Newest first, as exported.
	export := `{
  "participants": [{"name": "Ewa"}, {"name": "PaweÅ\u0082"}],
  "title": "Ewa",
  "messages": [
    {"sender_name": "Ewa", "timestamp_ms": ` + itoa(ms(20*time.Minute)) + `, "content": "See you"},
    {"sender_name": "PaweÅ\u0082", "timestamp_ms": ` + itoa(ms(10*time.Minute)) + `, "photos": [{"uri": "a.jpg"}], "reactions": [{"reaction": "x"}]},
    {"sender_name": "Ewa", "timestamp_ms": ` + itoa(ms(2*time.Minute)) + `, "content": "in December", "share": {"link": "https://example.com/hotel"}},
    {"sender_name": "Ewa", "timestamp_ms": ` + itoa(ms(0)) + `, "content": "Vacation"},
    {"sender_name": "Ewa", "timestamp_ms": ` + itoa(ms(-time.Minute)) + `}
  ]
}`
	recs, err := newTestLoader().Load(context.Background(), writeFile(t, "message_1.json", export))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, "Ewa: Vacation in December", first.Content)
	assert.Equal(t, SourceMessenger, first.Metadata["source_type"])
	assert.Equal(t, "Ewa", first.Metadata["sender"])
	assert.Equal(t, 2, first.Metadata["message_count"])
	assert.Equal(t, "individual", first.Metadata["thread_type"])
	assert.Equal(t, false, first.Metadata["is_group_chat"])
	assert.Equal(t, "Ewa, Paweł", first.Metadata["participants"])
	assert.Equal(t, 2, first.Metadata["participant_count"])
	assert.Equal(t, time.UnixMilli(ms(0)).Local().Format(dateLayout), first.Metadata["date"])
	assert.Equal(t, time.UnixMilli(ms(2*time.Minute)).Local().Format(dateLayout), first.Metadata["date_end"])
	assert.Equal(t, "photo", first.Metadata["media_types"])
	assert.Equal(t, "https://example.com/hotel", first.Metadata["shared_links"])
	assert.Equal(t, 1, first.Metadata["reaction_count"])

	assert.Equal(t, "Paweł: [Photo]", recs[1].Content)
	assert.NotContains(t, recs[1].Metadata, "date_end")
	assert.Equal(t, "Ewa: See you", recs[2].Content)
}

func TestLoader_MessengerGroupWindow(t *testing.T) {
	export := `{"participants": [{"name": "A"}, {"name": "B"}, {"name": "C"}, {"name": "D"}],
  "messages": [
    {"sender_name": "A", "timestamp_ms": ` + itoa(ms(3*time.Minute)) + `, "content": "two"},
    {"sender_name": "A", "timestamp_ms": ` + itoa(ms(0)) + `, "content": "one"}
  ]}`
	path := writeFile(t, "message_1.json", export)

	recs, err := NewLoader(WithGroupWindow(time.Minute)).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "group", recs[0].Metadata["thread_type"])
	assert.Equal(t, true, recs[0].Metadata["is_group_chat"])
	assert.Equal(t, "A, B, C (+1 others)", recs[0].Metadata["participants"])
	assert.Equal(t, "Unknown Chat", recs[0].Metadata["chat_name"])

	recs, err = NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A: one two", recs[0].Content)
}

func TestLoader_JSONNotExport(t *testing.T) {
	recs, err := newTestLoader().Load(context.Background(), writeFile(t, "config.json", `{"name": "x"}`))
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = newTestLoader().Load(context.Background(), writeFile(t, "broken.json", `{`))
	assert.Error(t, err)
}

func TestThreadType(t *testing.T) {
	names := make([]string, 12)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	var msgs []chatMessage
	for i := 0; i < 18; i++ {
		msgs = append(msgs, chatMessage{sender: "a"})
	}
	msgs = append(msgs, chatMessage{sender: "b"}, chatMessage{sender: "b"})
	assert.Equal(t, "group", threadType(names, msgs))

	msgs = append(msgs, chatMessage{sender: "a"})
	assert.Equal(t, "broadcast", threadType(names, msgs))
	assert.Equal(t, "individual", threadType(names[:2], msgs))
}
