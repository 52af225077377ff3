package mailer

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

// Attachment is a single file carried by a Message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is a multipart/mixed email with a text part and an optional attachment.
type Message struct {
	From       string
	To         string
	Subject    string
	Body       string
	Date       time.Time
	MessageID  string // generated when empty
	Attachment *Attachment
}

// WriteTo renders the message in RFC 5322 form with CRLF line endings.
func (msg *Message) WriteTo(w io.Writer) (int64, error) {
	gm, err := msg.compose()
	if err != nil {
		return 0, err
	}
	return gm.WriteTo(w)
}

// compose builds the go-mail message. Address errors wrap ErrAddress.
func (msg *Message) compose() (*gomail.Msg, error) {
	if msg.MessageID == "" {
		msg.MessageID = NewMessageID(msg.From)
	}
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}

	gm := gomail.NewMsg()
	if err := gm.From(msg.From); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrAddress, msg.From, err)
	}
	if err := gm.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrAddress, msg.To, err)
	}
	gm.Subject(msg.Subject)
	gm.SetDateWithValue(date)
	gm.SetMessageIDWithValue(strings.Trim(msg.MessageID, "<>"))
	gm.SetBodyString(gomail.TypeTextPlain, msg.Body)

	if a := msg.Attachment; a != nil {
		err := gm.AttachReader(a.Name, bytes.NewReader(a.Data),
			gomail.WithFileContentType(gomail.ContentType(a.ContentType)))
		if err != nil {
			return nil, fmt.Errorf("attaching %s: %w", a.Name, err)
		}
	}
	return gm, nil
}

// NewMessageID returns a unique Message-ID whose domain part is taken from
// the sender address, falling back to "kindle-beam.local".
func NewMessageID(from string) string {
	domain := "kindle-beam.local"
	if a, err := mail.ParseAddress(from); err == nil {
		if at := strings.LastIndexByte(a.Address, '@'); at >= 0 && at < len(a.Address)-1 {
			domain = a.Address[at+1:]
		}
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
