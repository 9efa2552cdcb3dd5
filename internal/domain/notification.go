package domain

import "time"

// Notification event statuses.
const (
	EventQueued     = "queued"
	EventProcessing = "processing"
	EventProcessed  = "processed"
	EventPartial    = "partial"
	EventFailed     = "failed"
)

// Resource identifies what a notification event is about.
type Resource struct {
	Type  string `json:"type"  gorm:"type:varchar(32)"`
	ID    string `json:"id"    gorm:"type:varchar(64);index"`
	Title string `json:"title" gorm:"type:varchar(255)"`
}

// Actor is the user whose action produced the event.
type Actor struct {
	UserID      string `json:"user_id,omitempty"      gorm:"type:varchar(64)"`
	DisplayName string `json:"display_name,omitempty" gorm:"type:varchar(255)"`
}

// Recipients lists who should be told about an event. Emails that resolve to
// an account are treated as that account.
type Recipients struct {
	UserIDs []string `json:"user_ids"`
	Emails  []string `json:"emails"`
}

// NotificationEvent is a queued domain event awaiting fan-out. Status moves
// queued → processing → processed|partial|failed once per processing attempt.
type NotificationEvent struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	EventType   string         `json:"event_type"  gorm:"type:varchar(64);not null;index"`
	Resource    Resource       `json:"resource"    gorm:"embedded;embeddedPrefix:resource_"`
	Actor       Actor          `json:"actor"       gorm:"embedded;embeddedPrefix:actor_"`
	Payload     map[string]any `json:"payload"     gorm:"serializer:json"`
	Recipients  Recipients     `json:"recipients"  gorm:"serializer:json"`
	DedupeKey   string         `json:"dedupe_key,omitempty" gorm:"type:varchar(255)"`
	Status      string         `json:"status"      gorm:"type:varchar(16);not null;index"`
	ChatError   string         `json:"chat_error,omitempty" gorm:"type:text"`
	Error       string         `json:"error,omitempty"      gorm:"type:text"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName returns the database table name for NotificationEvent.
func (NotificationEvent) TableName() string { return "notification_events" }

// Notification is one in-app notification document for a single user. Its id
// is deterministic when the originating event carried a dedupe key.
type Notification struct {
	ID           string    `json:"id"            gorm:"type:varchar(64);primaryKey"`
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);not null;index:idx_user_notifications,priority:1"`
	EventID      string    `json:"event_id"      gorm:"type:char(36);index"`
	EventType    string    `json:"event_type"    gorm:"type:varchar(64);not null"`
	Title        string    `json:"title"         gorm:"type:varchar(255);not null"`
	Body         string    `json:"body"          gorm:"type:text"`
	ResourceType string    `json:"resource_type" gorm:"type:varchar(32)"`
	ResourceID   string    `json:"resource_id"   gorm:"type:varchar(64)"`
	ActorName    string    `json:"actor_name,omitempty" gorm:"type:varchar(255)"`
	Read         bool      `json:"read"          gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index:idx_user_notifications,priority:2"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Mail outbox statuses.
const (
	MailPending = "pending"
	MailSent    = "sent"
	MailError   = "error"
)

// MailMessage is an outbox row drained by the email dispatcher.
type MailMessage struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	To        string `gorm:"column:recipient;type:varchar(320);not null"`
	Subject   string `gorm:"type:varchar(255);not null"`
	Text      string `gorm:"type:text"`
	HTML      string `gorm:"type:text"`
	EventID   string `gorm:"type:char(36);index"`
	Status    string `gorm:"type:varchar(16);not null;index"`
	Attempts  int    `gorm:"not null;default:0"`
	Error     string `gorm:"type:text"`
	SentAt    *time.Time
	CreatedAt time.Time `gorm:"index"`
}

// TableName returns the database table name for MailMessage.
func (MailMessage) TableName() string { return "mail_outbox" }
