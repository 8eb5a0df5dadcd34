package domain

import "time"

// Subject categories offered by the contact form. Any other non-empty text
// is accepted as a free-text subject.
const (
	SubjectCollaboration = "collaboration"
	SubjectProject       = "project"
	SubjectConsultation  = "consultation"
	SubjectGeneral       = "general"
	SubjectOther         = "other"
)

// KnownSubjects lists the closed set of contact subject categories.
var KnownSubjects = []string{
	SubjectCollaboration,
	SubjectProject,
	SubjectConsultation,
	SubjectGeneral,
	SubjectOther,
}

// ContactInput is an untrusted contact form submission. The validate tags
// are checked after trimming; min and max count characters.
type ContactInput struct {
	Name    string `json:"name" validate:"required,min=2"`
	Email   string `json:"email" validate:"required,looseemail"`
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message" validate:"required,min=10,max=500"`
}

// ContactMeta is request metadata captured alongside a submission.
type ContactMeta struct {
	ClientIP  string `json:"clientIp,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// NewContact is what the store needs to create a ContactMessage.
type NewContact struct {
	ContactInput
	Meta ContactMeta
}

type ContactMessage struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Subject   string      `json:"subject"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"createdAt"`
	IsRead    bool        `json:"isRead"`
	Meta      ContactMeta `json:"meta"`
}

// NewCvFile describes an uploaded CV before it is persisted.
type NewCvFile struct {
	Filename     string
	OriginalName string
	FilePath     string
	SizeBytes    int64
	PageCount    int
}

type CvFile struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	FilePath     string    `json:"filePath"`
	SizeBytes    int64     `json:"sizeBytes"`
	PageCount    int       `json:"pageCount"`
	UploadedAt   time.Time `json:"uploadedAt"`
	IsActive     bool      `json:"isActive"`
}

// NewUser carries an already hashed credential.
type NewUser struct {
	Username     string
	PasswordHash string
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
