package extract

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

var headerDecoder = new(mime.WordDecoder)

func decodeHeader(v string) string {
	if v == "" {
		return ""
	}
	out, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return strings.TrimSpace(out)
}

// parseEmail turns one RFC 5322 message into a record. now is used when the
// message has no readable Date header.
func parseEmail(raw []byte, now time.Time) (models.Record, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return models.Record{}, fmt.Errorf("parse email: %w", err)
	}
	subject := decodeHeader(msg.Header.Get("Subject"))
	from := decodeHeader(msg.Header.Get("From"))
	to := decodeHeader(msg.Header.Get("To"))

	date, err := msg.Header.Date()
	if err != nil {
		date = now
	}

	plain, html, err := readBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return models.Record{}, err
	}
	body := strings.Join(plain, "\n")
	if strings.TrimSpace(body) == "" && len(html) > 0 {
		var parts []string
		for _, h := range html {
			if text, _, err := extractHTML([]byte(h)); err == nil && text != "" {
				parts = append(parts, text)
			}
		}
		body = strings.Join(parts, "\n")
	}

	md := map[string]interface{}{
		"subject":   subject,
		"recipient": to,
		"date":      date.Local().Format(dateLayout),
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		md["sender"] = addr.Name
		if addr.Name == "" {
			md["sender"] = addr.Address
		}
		md["sender_email"] = addr.Address
	} else if from != "" {
		md["sender"] = from
	}

	var b strings.Builder
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", subject)
	}
	if from != "" {
		fmt.Fprintf(&b, "From: %s\n", from)
	}
	if to != "" {
		fmt.Fprintf(&b, "To: %s\n", to)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(body))
	return models.Record{Content: b.String(), Metadata: md}, nil
}

// readBody walks a MIME body and returns its text/plain and text/html parts.
// Attachments and other media types are skipped.
func readBody(contentType, transferEncoding string, r io.Reader) (plain, html []string, err error) {
	mediaType, params, perr := mime.ParseMediaType(contentType)
	if perr != nil {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return plain, html, nil
			}
			if err != nil {
				return plain, html, fmt.Errorf("read multipart body: %w", err)
			}
			if disp, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disp == "attachment" {
				continue
			}
			p, h, err := readBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return plain, html, err
			}
			plain = append(plain, p...)
			html = append(html, h...)
		}
	}
	if mediaType != "text/plain" && mediaType != "text/html" {
		return nil, nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, &newlineStripper{r: r})
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	text, _ := extractPlain(b)
	if mediaType == "text/html" {
		return nil, []string{text}, nil
	}
	return []string{text}, nil, nil
}

// newlineStripper drops CR and LF so wrapped base64 decodes.
type newlineStripper struct {
	r io.Reader
}

func (n *newlineStripper) Read(p []byte) (int, error) {
	for {
		k, err := n.r.Read(p)
		j := 0
		for _, c := range p[:k] {
			if c != '\r' && c != '\n' {
				p[j] = c
				j++
			}
		}
		if j > 0 || err != nil {
			return j, err
		}
	}
}

// splitMbox splits an mbox file into raw messages on "From " separator lines.
func splitMbox(content []byte) [][]byte {
	var (
		msgs [][]byte
		cur  bytes.Buffer
	)
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if bytes.HasPrefix(line, []byte("From ")) {
			if cur.Len() > 0 {
				msgs = append(msgs, append([]byte(nil), cur.Bytes()...))
				cur.Reset()
			}
			continue
		}
		if bytes.HasPrefix(line, []byte(">From ")) {
			line = line[1:]
		}
		cur.Write(line)
		cur.WriteByte('\n')
	}
	if len(bytes.TrimSpace(cur.Bytes())) > 0 {
		msgs = append(msgs, cur.Bytes())
	}
	return msgs
}
