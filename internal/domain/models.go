// Package domain defines the persistence models for learning sessions,
// chat transcripts, scripted answers, and progress tracking. These types are
// mapped with GORM and form the core data layer of the Ecombot backend.
package domain

import (
	"time"
)

// Session lifecycle statuses. Transitions to paused/completed are set by
// explicit client signals, never inferred.
const (
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
)

// Message speaker roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Activity progress statuses. The state machine is locked → started →
// completed, monotonic; completed is terminal. An absent row is treated the
// same as locked.
const (
	ActivityLocked     = "locked"
	ActivityStarted    = "started"
	ActivityCompleted  = "completed"
	ActivityNotStarted = "not_started" // overview default for absent rows
)

// ChatSession is one learner's traversal instance through the activity flow.
// A learner may hold several sessions; the canonical one is the most recently
// updated (see repo.CanonicalSession). The (user_id, session_id) pair is
// unique: starting the same session key twice returns the existing row.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the owning learner; indexed for retrieval.
//   - SessionID: opaque client-supplied session key, unique per learner.
//   - CurrentActivity: pointer into the activity flow (e.g., "kegiatan_3").
//   - Status: active | paused | completed.
//   - CompletedAt: set once when the session is explicitly completed.
type ChatSession struct {
	ID              string     `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          string     `json:"user_id"          gorm:"type:varchar(64);not null;index:idx_user_sessions;uniqueIndex:ux_user_session,priority:1"`
	SessionID       string     `json:"session_id"       gorm:"type:varchar(128);not null;uniqueIndex:ux_user_session,priority:2"`
	CurrentActivity string     `json:"current_activity" gorm:"type:varchar(64);not null"`
	Status          string     `json:"status"           gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','paused','completed')"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"       gorm:"index"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage is one turn in a session transcript. The log is append-only:
// rows are never updated or deleted by normal flow.
//
// Seq is a per-session sequence number, strictly increasing and gap-free.
// It is assigned under the engine's per-session critical section and backed
// by a unique index so stable pagination survives identical timestamps.
type ChatMessage struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string    `json:"session_id"  gorm:"type:char(36);not null;index:idx_session_msgs,priority:1;uniqueIndex:ux_session_seq,priority:1"`
	Role       string    `json:"role"        gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Character  string    `json:"character,omitempty" gorm:"type:varchar(64)"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	ActivityID string    `json:"activity_id" gorm:"type:varchar(64);not null;index"`
	Seq        int64     `json:"seq"         gorm:"not null;uniqueIndex:ux_session_seq,priority:2"`
	Payload    string    `json:"payload,omitempty" gorm:"type:text"` // optional structured metadata (JSON)
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_session_msgs,priority:2"`

	// Session is the parent traversal. Messages are cascade-deleted if
	// their session is removed.
	Session ChatSession `json:"-" gorm:"belongsTo;foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// AnswerRecord stores one learner response to one scripted question.
// Uniqueness on (session_id, question_id) makes resubmission an update in
// place, never a duplicate row.
type AnswerRecord struct {
	ID           string     `json:"id"            gorm:"type:char(36);primaryKey"`
	SessionID    string     `json:"session_id"    gorm:"type:char(36);not null;index;uniqueIndex:ux_session_question,priority:1"`
	QuestionID   string     `json:"question_id"   gorm:"type:varchar(128);not null;uniqueIndex:ux_session_question,priority:2"`
	StorageKey   string     `json:"storage_key"   gorm:"type:varchar(128)"`
	AnswerText   string     `json:"answer_text"   gorm:"type:text;not null"`
	AnswerType   string     `json:"answer_type"   gorm:"type:varchar(16);not null;check:answer_type IN ('essay','discussion','challenge','creative','reflective')"`
	QuestionText string     `json:"question_text" gorm:"type:text"` // denormalized for audit
	ActivityID   string     `json:"activity_id"   gorm:"type:varchar(64);not null;index"`
	ImageRef     string     `json:"image_ref,omitempty" gorm:"type:varchar(255)"`
	IsSubmitted  bool       `json:"is_submitted"  gorm:"not null;default:false"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Session ChatSession `json:"-" gorm:"belongsTo;foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for AnswerRecord.
func (AnswerRecord) TableName() string { return "user_answers" }

// AnswerTypeValid reports whether t is one of the recognized answer kinds.
func AnswerTypeValid(t string) bool {
	switch t {
	case "essay", "discussion", "challenge", "creative", "reflective":
		return true
	}
	return false
}

// ActivityProgress tracks completion state for one (session, activity) pair.
// Re-marking a completed activity is a no-op: status never regresses and the
// first CompletedAt is kept for auditability.
type ActivityProgress struct {
	ID             string     `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID      string     `json:"session_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_session_activity,priority:1"`
	ActivityID     string     `json:"activity_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_session_activity,priority:2"`
	Status         string     `json:"status"      gorm:"type:varchar(16);not null;default:'started';check:status IN ('locked','started','completed')"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	Session ChatSession `json:"-" gorm:"belongsTo;foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ActivityProgress.
func (ActivityProgress) TableName() string { return "activity_progress" }

// UserProgress is the denormalized per (learner, session) aggregate used by
// read views. TotalAnswers is always recomputed by counting submitted
// AnswerRecords, never incremented blindly, so it tolerates concurrent or
// repeated submissions.
type UserProgress struct {
	ID              string     `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          string     `json:"user_id"          gorm:"type:varchar(64);not null;index;uniqueIndex:ux_user_progress,priority:1"`
	SessionID       string     `json:"session_id"       gorm:"type:char(36);not null;uniqueIndex:ux_user_progress,priority:2"`
	CurrentActivity string     `json:"current_activity" gorm:"type:varchar(64)"`
	TotalAnswers    int64      `json:"total_answers"    gorm:"not null;default:0"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the database table name for UserProgress.
func (UserProgress) TableName() string { return "user_progress" }

// ComicProgress records how far a learner has read one comic episode.
// LastPage is monotonic non-decreasing; Finish is gated on a page threshold
// unless the client marks the episode complete explicitly.
type ComicProgress struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;index;uniqueIndex:ux_user_comic,priority:1"`
	ComicSlug   string    `json:"comic_slug"   gorm:"type:varchar(100);not null;uniqueIndex:ux_user_comic,priority:2"`
	EpisodeSlug string    `json:"episode_slug" gorm:"type:varchar(100);not null;uniqueIndex:ux_user_comic,priority:3"`
	LastPage    int       `json:"last_page"    gorm:"not null;default:0"`
	Finish      bool      `json:"finish"       gorm:"not null;default:false"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for ComicProgress.
func (ComicProgress) TableName() string { return "comic_progress" }

// Feedback is a free-form message from a (possibly anonymous) visitor.
type Feedback struct {
	ID        string    `json:"id"              gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name,omitempty"  gorm:"type:varchar(100)"`
	Email     string    `json:"email,omitempty" gorm:"type:varchar(255)"`
	Message   string    `json:"message"         gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"      gorm:"index"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }

// KnowledgeVector persists one corpus snippet together with its embedding so
// the semantic retriever can rebuild its in-memory index without re-embedding
// the whole corpus on every start. The embedding is stored as a JSON array of
// float32 values; snippets are scored in memory by cosine similarity.
type KnowledgeVector struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	DocOrder  int       `json:"doc_order"  gorm:"not null;index"` // original corpus position, used for tie-breaking
	Content   string    `json:"content"    gorm:"type:text;not null"`
	Metadata  string    `json:"metadata"   gorm:"type:text"` // JSON
	Embedding string    `json:"-"          gorm:"type:text;not null"`
	Model     string    `json:"model"      gorm:"type:varchar(64);not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for KnowledgeVector.
func (KnowledgeVector) TableName() string { return "knowledge_vectors" }
