// Package types defines the domain model shared by the store, the catalog
// synchronizer, the delivery pipeline and the job engine.
package types

import "time"

// UserStatus is the access-control state of a user.
type UserStatus string

const (
	StatusGuest   UserStatus = "guest"
	StatusPending UserStatus = "pending"
	StatusActive  UserStatus = "active"
	StatusExpired UserStatus = "expired"
	StatusBlocked UserStatus = "blocked"
)

// IsValid reports whether s is a known user status.
func (s UserStatus) IsValid() bool {
	switch s {
	case StatusGuest, StatusPending, StatusActive, StatusExpired, StatusBlocked:
		return true
	}
	return false
}

// User is a chat user as known to the access-control layer.
// ChatUserID is the external messenger identifier; ID is the internal row id.
type User struct {
	ID         int64
	ChatUserID int64
	Status     UserStatus
	Note       string
	ExpiresAt  *time.Time
	WarnedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ItemKind distinguishes folders from files in the catalog.
type ItemKind string

const (
	KindFolder ItemKind = "folder"
	KindFile   ItemKind = "file"
)

// FileHandle is the platform-issued content handle pair returned by the
// messenger on upload. UniqueID identifies the bytes and is used for
// invalidation; ID is what gets sent.
type FileHandle struct {
	ID       string
	UniqueID string
}

// CatalogItem is one node of the mirrored storage tree, unique by Path.
type CatalogItem struct {
	ID          int64
	Path        string
	Kind        ItemKind
	Title       string
	StorageID   string
	Size        *int64
	ParentPath  *string
	Handle      *FileHandle
	Fingerprint string
	SeenAt      string // store timestamp, lexicographically comparable
	Deleted     bool
	UpdatedAt   time.Time
}

// JobKind selects the worker code path for a job.
type JobKind string

const (
	JobDownload    JobKind = "download"
	JobSyncCatalog JobKind = "sync_catalog"
)

// JobState is the job state machine position.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state is sticky.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// Job is one unit of asynchronous work handed to the worker through the queue.
// Correlation deduplicates enqueues: (ChatID, ItemID, Correlation) is unique.
type Job struct {
	ID          int64
	ChatID      int64
	UserID      int64
	ItemID      int64
	Kind        JobKind
	State       JobState
	Attempt     int
	LastError   string
	Correlation string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AuditResult is the terminal outcome recorded for a download job.
type AuditResult string

const (
	AuditSucceeded AuditResult = "succeeded"
	AuditFailed    AuditResult = "failed"
)

// AuditMode records which delivery path produced the outcome.
type AuditMode string

const (
	ModeCachedHandle AuditMode = "cached_handle"
	ModeUpload       AuditMode = "upload"
)

// DownloadAudit is the single per-job record of a terminal download outcome.
type DownloadAudit struct {
	ID        int64
	JobID     int64
	ChatID    int64
	UserID    int64
	ItemID    int64
	Result    AuditResult
	Mode      AuditMode // empty when the job never reached a delivery path
	Bytes     *int64
	Error     string
	CreatedAt time.Time
}

// Session is a short-lived token row backing compact UI callbacks.
// Scope is only set for search sessions.
type Session struct {
	Token     string
	UserID    int64
	Query     string
	Scope     string
	CreatedAt time.Time
}
