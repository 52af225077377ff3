package kindlebeam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/mailer"
)

// Delivery constants.
const (
	// MessageBody is the text part of every email. Kindle ignores it.
	MessageBody = "Sent via Kindle Beam"

	// EPUBContentType is the MIME type of the attachment.
	EPUBContentType = "application/epub+zip"

	// FallbackAttachmentName is used when a title has no usable characters.
	FallbackAttachmentName = "article.epub"

	// maxAttachmentStem bounds the attachment name before ".epub", in runes.
	maxAttachmentStem = 50
)

// Deliverer hands a finished EPUB to its destination.
// Implementations must not remove the artifact.
type Deliverer interface {
	Deliver(ctx context.Context, artifact, title string) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, artifact, title string) error

func (f DelivererFunc) Deliver(ctx context.Context, artifact, title string) error {
	return f(ctx, artifact, title)
}

// Sender sends one composed message. *mailer.Mailer implements it.
type Sender interface {
	Send(ctx context.Context, msg *mailer.Message) error
}

// SMTPDeliverer emails the EPUB as an attachment.
type SMTPDeliverer struct {
	sender Sender
	from   string
	to     string
	logger *slog.Logger
}

// NewSMTPDeliverer creates a deliverer sending from -> to through sender.
func NewSMTPDeliverer(sender Sender, from, to string, logger *slog.Logger) *SMTPDeliverer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SMTPDeliverer{sender: sender, from: from, to: to, logger: logger}
}

// MailerConfig maps the SMTP keys of a config to mailer settings.
func MailerConfig(cfg *config.Config) mailer.Config {
	security := mailer.ImplicitTLS
	if cfg.SMTPStartTLS {
		security = mailer.StartTLS
	}
	return mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		Security: security,
	}
}

// NewSMTPDelivererFromConfig wires a mailer for cfg.
func NewSMTPDelivererFromConfig(cfg *config.Config, logger *slog.Logger, opts ...mailer.Option) *SMTPDeliverer {
	if logger != nil {
		opts = append([]mailer.Option{mailer.WithLogger(logger)}, opts...)
	}
	m := mailer.New(MailerConfig(cfg), opts...)
	return NewSMTPDeliverer(m, cfg.Sender(), cfg.KindleEmail, logger)
}

// Deliver reads the artifact and sends it. Authentication rejections wrap
// ErrDeliveryAuth, every other mail failure wraps ErrDeliveryTransport.
func (d *SMTPDeliverer) Deliver(ctx context.Context, artifact, title string) error {
	data, err := os.ReadFile(artifact) // #nosec G304 -- artifact path created by the pipeline
	if err != nil {
		return fmt.Errorf("%w: reading artifact: %v", ErrIO, err)
	}

	msg := &mailer.Message{
		From:    d.from,
		To:      d.to,
		Subject: title,
		Body:    MessageBody,
		Attachment: &mailer.Attachment{
			Name:        AttachmentName(title),
			ContentType: EPUBContentType,
			Data:        data,
		},
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return classifyDelivery(err)
	}
	d.logger.Info("email sent", "to", d.to, "attachment", msg.Attachment.Name)
	return nil
}

// classifyDelivery maps mailer errors onto the pipeline taxonomy.
func classifyDelivery(err error) error {
	switch {
	case errors.Is(err, ErrDeliveryAuth), errors.Is(err, ErrDeliveryTransport):
		return err
	case errors.Is(err, mailer.ErrAuth):
		return fmt.Errorf("%w: %w", ErrDeliveryAuth, err)
	default:
		return fmt.Errorf("%w: %w", ErrDeliveryTransport, err)
	}
}

// FileDeliverer copies the EPUB to a local path instead of sending it.
// It backs the dry-run mode of the send command.
type FileDeliverer struct {
	Path string
}

// Deliver copies artifact to d.Path, creating parent directories.
func (d *FileDeliverer) Deliver(_ context.Context, artifact, _ string) error {
	if err := os.MkdirAll(filepath.Dir(d.Path), 0o750); err != nil {
		return fmt.Errorf("%w: creating output directory: %v", ErrIO, err)
	}

	src, err := os.Open(artifact) // #nosec G304 -- artifact path created by the pipeline
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(d.Path) // #nosec G304 -- output path is user-provided
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("%w: copying artifact: %v", ErrIO, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// AttachmentName derives a mail-safe file name from a title: diacritics are
// folded to their base letters, only letters, digits, '_', spaces and '-'
// are kept, and the result is cut to 50 runes before ".epub" is appended.
func AttachmentName(title string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	count := 0
	for _, r := range folded {
		if count == maxAttachmentStem {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || unicode.IsSpace(r) {
			if unicode.IsSpace(r) {
				r = ' '
			}
			b.WriteRune(r)
			count++
		}
	}

	stem := strings.TrimSpace(b.String())
	if stem == "" {
		return FallbackAttachmentName
	}
	return stem + ".epub"
}
