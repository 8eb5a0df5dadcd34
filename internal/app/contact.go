package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"portfolioapi/internal/util"
	"portfolioapi/pkg/domain"
)

const (
	contactSuccessMessage = "Message sent successfully!"
	emailOffQualifier     = " (email notification is not configured)"
)

// emailPattern accepts anything shaped like local@domain.tld.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var contactValidator = newContactValidator()

func newContactValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("looseemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

// contactMessages holds the reason shown for each field and failed tag.
var contactMessages = map[string]map[string]string{
	"name": {
		"required": "Name is required",
		"min":      "Name must be at least 2 characters",
	},
	"email": {
		"required":   "Email is required",
		"looseemail": "Invalid email address",
	},
	"subject": {
		"required": "Subject is required",
	},
	"message": {
		"required": "Message is required",
		"min":      "Message must be at least 10 characters",
		"max":      "Message must be at most 500 characters",
	},
}

// ValidateContact trims every field and checks the form rules. All invalid
// fields are reported at once.
func ValidateContact(in domain.ContactInput) (domain.ContactInput, error) {
	out := domain.ContactInput{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
	}
	if err := contactValidator.Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return domain.ContactInput{}, fmt.Errorf("validate contact: %w", err)
		}
		verr := &ValidationError{}
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), contactIssue(fe))
		}
		return domain.ContactInput{}, verr
	}
	out.Subject = canonicalSubject(out.Subject)
	return out, nil
}

func contactIssue(fe validator.FieldError) string {
	if msg, ok := contactMessages[fe.Field()][fe.Tag()]; ok {
		return msg
	}
	return "Invalid " + fe.Field()
}

// canonicalSubject folds the known categories to their lowercase form and
// leaves free text alone.
func canonicalSubject(subject string) string {
	for _, known := range domain.KnownSubjects {
		if strings.EqualFold(subject, known) {
			return known
		}
	}
	return subject
}

// ContactResult is what a successful submission reports back.
type ContactResult struct {
	Contact domain.ContactMessage
	Message string
}

// SubmitContact validates, persists and then notifies in the background.
// Notification never affects the result.
func (a *App) SubmitContact(ctx context.Context, in domain.ContactInput, meta domain.ContactMeta) (ContactResult, error) {
	clean, err := ValidateContact(in)
	if err != nil {
		return ContactResult{}, err
	}
	msg, err := a.store.CreateContact(ctx, domain.NewContact{ContactInput: clean, Meta: meta})
	if err != nil {
		return ContactResult{}, storageErr("create contact", err)
	}
	a.notifyAsync(util.LoggerFromContext(ctx), msg)

	text := contactSuccessMessage
	if !a.EmailConfigured() {
		text += emailOffQualifier
	}
	return ContactResult{Contact: msg, Message: text}, nil
}

// notifyAsync detaches from the request context so a client disconnect
// does not cancel delivery.
func (a *App) notifyAsync(logger *slog.Logger, msg domain.ContactMessage) {
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.notifyTimeout)
		defer cancel()
		if err := a.notifier.NotifyContact(ctx, msg); err != nil {
			nerr := &NotificationError{ContactID: msg.ID, Err: err}
			logger.Warn("contact notification failed", "contact_id", msg.ID, "transport", a.notifier.Name(), "err", nerr)
			return
		}
		logger.Debug("contact notification sent", "contact_id", msg.ID, "transport", a.notifier.Name())
	}()
}

// ListContacts returns every message, oldest first.
func (a *App) ListContacts(ctx context.Context) ([]domain.ContactMessage, error) {
	list, err := a.store.ListContacts(ctx)
	if err != nil {
		return nil, storageErr("list contacts", err)
	}
	return list, nil
}

// MarkContactRead flags a message as read. Unknown ids are ignored.
func (a *App) MarkContactRead(ctx context.Context, id string) error {
	if err := a.store.MarkContactRead(ctx, strings.TrimSpace(id)); err != nil {
		return storageErr("mark contact read", err)
	}
	return nil
}
