// Package domain defines the persistence models for users, usage records,
// transcription tasks, and transcripts. These types are mapped with GORM and
// form the core data layer of the transcription backend.
package domain

import (
	"time"
)

// User is an account that owns usage records, tasks, and transcripts.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique login identifier, stored lower-cased.
//   - PasswordHash: bcrypt hash; never serialized.
//   - Name: optional display name.
//   - IsPremium: selects the premium monthly allowance.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//
// Users are hard-deleted; owned rows are removed with them.
type User struct {
	ID           string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"       gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"           gorm:"type:varchar(255);not null"`
	Name         string    `json:"name"        gorm:"type:varchar(255);not null;default:''"`
	IsPremium    bool      `json:"is_premium"  gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// UsageRecord is an immutable ledger entry debiting a user's quota. It is
// written only in the same transaction as the Transcript it pays for.
//
// TaskID is set when the charge comes from an asynchronous task; the unique
// index guarantees a task is never charged twice. TranscriptID is unique so a
// transcript has exactly one usage record.
type UsageRecord struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"user_id"       gorm:"type:char(36);not null;index:idx_usage_user_created,priority:1"`
	TranscriptID string    `json:"transcript_id" gorm:"type:char(36);not null;uniqueIndex:ux_usage_transcript"`
	TaskID       *string   `json:"task_id,omitempty" gorm:"type:char(36);uniqueIndex:ux_usage_task"`
	Minutes      float64   `json:"minutes"       gorm:"not null;check:minutes >= 0"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index:idx_usage_user_created,priority:2"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UsageRecord.
func (UsageRecord) TableName() string { return "usage_records" }

// TranscriptionTask tracks one asynchronous transcription request from
// submission to its single terminal transition.
type TranscriptionTask struct {
	ID        string     `json:"id"                 gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"user_id"            gorm:"type:char(36);not null;index:idx_task_user"`
	Status    TaskStatus `json:"status"             gorm:"type:varchar(16);not null;index:idx_task_status;check:status IN ('pending','completed','failed')"`
	AudioURL  string     `json:"audio_url"          gorm:"type:text;not null"`
	FileName  string     `json:"file_name"          gorm:"type:varchar(512);not null;default:''"`
	Text      *string    `json:"text,omitempty"     gorm:"type:text"`
	Minutes   *float64   `json:"duration,omitempty"`
	Language  *string    `json:"language,omitempty" gorm:"type:varchar(32)"`
	Error     *string    `json:"error,omitempty"    gorm:"type:varchar(255)"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TranscriptionTask.
func (TranscriptionTask) TableName() string { return "transcription_tasks" }

// Transcript is the persisted result of a successful transcription.
type Transcript struct {
	ID        string    `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"        gorm:"type:char(36);not null;index:idx_transcript_user_created,priority:1"`
	TaskID    *string   `json:"task_id,omitempty" gorm:"type:char(36);index"`
	Title     string    `json:"title"          gorm:"type:varchar(255);not null;default:''"`
	FileName  string    `json:"file_name"      gorm:"type:varchar(512);not null;default:''"`
	AudioURL  string    `json:"audio_url"      gorm:"type:text;not null"`
	Text      string    `json:"text"           gorm:"type:text;not null"`
	Minutes   float64   `json:"duration"       gorm:"not null;check:minutes >= 0"`
	Language  string    `json:"language"       gorm:"type:varchar(32);not null;default:''"`
	CreatedAt time.Time `json:"created_at"     gorm:"index:idx_transcript_user_created,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Transcript.
func (Transcript) TableName() string { return "transcripts" }
