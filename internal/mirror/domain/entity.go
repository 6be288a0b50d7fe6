package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Data type names used for checkpoints, sync ordering and API payloads.
const (
	DataTypeAccount             = "account"
	DataTypeCourse              = "course"
	DataTypeAssignment          = "assignment"
	DataTypeConversationStarter = "conversation_starter"
	DataTypeConversation        = "conversation"
	DataTypeMessage             = "message"
)

// SyncOrder lists data types parents-first. Conversation denormalization
// looks up accounts, courses, assignments and starters synced earlier in the
// same pass, so the order is load-bearing.
var SyncOrder = []string{
	DataTypeAccount,
	DataTypeCourse,
	DataTypeAssignment,
	DataTypeConversationStarter,
	DataTypeConversation,
	DataTypeMessage,
}

// UpstreamType maps a local data type to the object tag the upstream API
// understands. The upstream still calls accounts "user".
func UpstreamType(dataType string) string {
	if dataType == DataTypeAccount {
		return "user"
	}
	return dataType
}

// Account mirrors one upstream user record. Email is extracted from the
// nested identity-provider structure and may legitimately be absent.
type Account struct {
	ID              string         `json:"id" gorm:"primaryKey;size:100"`
	Email           *string        `json:"email" gorm:"size:255;index"`
	UserSignedUp    bool           `json:"user_signed_up"`
	Role            *string        `json:"role" gorm:"size:100"`
	CompanyOptedOut bool           `json:"is_company_opted_out"`
	SeenTooltipTour bool           `json:"has_seen_tooltip_tour"`
	CreatedDate     *time.Time     `json:"created_date"`
	ModifiedDate    *time.Time     `json:"modified_date"`
	RawData         datatypes.JSON `json:"raw_data" gorm:"type:jsonb"`
	LastSynced      time.Time      `json:"last_synced"`
}

func (Account) TableName() string { return "accounts" }

// Course keeps every name-candidate field; the display name is resolved at
// read time by CourseDisplayName, never stored pre-resolved.
type Course struct {
	ID           string         `json:"id" gorm:"primaryKey;size:100"`
	Name         *string        `json:"name" gorm:"size:500"`
	NameText     *string        `json:"name_text" gorm:"size:500"`
	Title        *string        `json:"title" gorm:"size:500"`
	CreatedDate  *time.Time     `json:"created_date"`
	ModifiedDate *time.Time     `json:"modified_date"`
	RawData      datatypes.JSON `json:"raw_data" gorm:"type:jsonb"`
	LastSynced   time.Time      `json:"last_synced"`
}

func (Course) TableName() string { return "courses" }

// Assignment's CourseID is a weak reference; it may dangle when the course
// has not been synced yet and is never enforced by a constraint.
type Assignment struct {
	ID                 string         `json:"id" gorm:"primaryKey;size:100"`
	Name               *string        `json:"name" gorm:"size:500"`
	NameText           *string        `json:"name_text" gorm:"size:500"`
	AssignmentName     *string        `json:"assignment_name" gorm:"size:500"`
	AssignmentNameText *string        `json:"assignment_name_text" gorm:"size:500"`
	Title              *string        `json:"title" gorm:"size:500"`
	CourseID           *string        `json:"course_id" gorm:"size:100;index"`
	CreatedDate        *time.Time     `json:"created_date"`
	ModifiedDate       *time.Time     `json:"modified_date"`
	RawData            datatypes.JSON `json:"raw_data" gorm:"type:jsonb"`
	LastSynced         time.Time      `json:"last_synced"`
}

func (Assignment) TableName() string { return "assignments" }

// ConversationStarter's ActivityLabel is the lower-cased upstream title,
// classified into feature buckets at read time by ClassifyActivity.
type ConversationStarter struct {
	ID            string         `json:"id" gorm:"primaryKey;size:100"`
	Name          *string        `json:"name" gorm:"size:500"`
	NameText      *string        `json:"name_text" gorm:"size:500"`
	ActivityLabel *string        `json:"activity_label" gorm:"size:100"`
	CreatedDate   *time.Time     `json:"created_date"`
	ModifiedDate  *time.Time     `json:"modified_date"`
	RawData       datatypes.JSON `json:"raw_data" gorm:"type:jsonb"`
	LastSynced    time.Time      `json:"last_synced"`
}

func (ConversationStarter) TableName() string { return "conversation_starters" }

// Conversation carries weak references plus display values denormalized at
// sync time. A referent not yet synced leaves its denormalized field nil.
type Conversation struct {
	ID             string         `json:"id" gorm:"primaryKey;size:100"`
	AccountID      *string        `json:"account_id" gorm:"size:100;index"`
	AccountEmail   *string        `json:"account_email" gorm:"size:255"`
	CourseID       *string        `json:"course_id" gorm:"size:100;index"`
	CourseName     *string        `json:"course_name" gorm:"size:500"`
	AssignmentID   *string        `json:"assignment_id" gorm:"size:100;index"`
	AssignmentName *string        `json:"assignment_name" gorm:"size:500"`
	StarterID      *string        `json:"conversation_starter_id" gorm:"size:100;index"`
	StarterName    *string        `json:"conversation_starter_name" gorm:"size:500"`
	MessageCount   int            `json:"message_count"`
	CreatedDate    *time.Time     `json:"created_date"`
	ModifiedDate   *time.Time     `json:"modified_date"`
	RawData        datatypes.JSON `json:"raw_data" gorm:"type:jsonb"`
	LastSynced     time.Time      `json:"last_synced"`
}

func (Conversation) TableName() string { return "conversations" }

// Message keeps both role fields; the upstream populates them inconsistently
// so callers go through IsUserMessage instead of reading either directly.
type Message struct {
	ID             string         `json:"id" gorm:"primaryKey;size:100"`
	ConversationID *string        `json:"conversation_id" gorm:"size:100;index"`
	Role           *string        `json:"role" gorm:"size:50"`
	RoleOption     *string        `json:"role_option_message_role" gorm:"size:50"`
	Text           *string        `json:"text" gorm:"type:text"`
	CreatedDate    *time.Time     `json:"created_date"`
	ModifiedDate   *time.Time     `json:"modified_date"`
	RawData        datatypes.JSON `json:"raw_data" gorm:"type:jsonb"`
	LastSynced     time.Time      `json:"last_synced"`
}

func (Message) TableName() string { return "messages" }

// IsUserMessage treats either role field saying "user" as a user message.
func (m *Message) IsUserMessage() bool {
	return (m.RoleOption != nil && *m.RoleOption == "user") ||
		(m.Role != nil && *m.Role == "user")
}
