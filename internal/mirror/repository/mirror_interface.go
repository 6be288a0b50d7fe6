package repository

import (
	"aadash-backend/internal/mirror/domain"

	"gorm.io/gorm"
)

// MirrorRepository is the write/lookup surface over the mirrored entities.
// Upserts run inside the transaction handed to them so one page commits
// atomically; lookups read committed state for cross-reference resolution.
type MirrorRepository interface {
	// RunInTransaction wraps one page's writes. A returned error rolls the
	// whole page back.
	RunInTransaction(fn func(tx *gorm.DB) error) error

	UpsertAccount(tx *gorm.DB, account *domain.Account) error
	UpsertCourse(tx *gorm.DB, course *domain.Course) error
	UpsertAssignment(tx *gorm.DB, assignment *domain.Assignment) error
	UpsertConversationStarter(tx *gorm.DB, starter *domain.ConversationStarter) error
	UpsertConversation(tx *gorm.DB, conversation *domain.Conversation) error
	UpsertMessage(tx *gorm.DB, message *domain.Message) error

	// Find* return (nil, nil) when the id is unknown; dangling weak
	// references are expected.
	FindAccount(id string) (*domain.Account, error)
	FindCourse(id string) (*domain.Course, error)
	FindAssignment(id string) (*domain.Assignment, error)
	FindConversationStarter(id string) (*domain.ConversationStarter, error)

	// Count returns local rows for one data type; Counts covers all of them.
	Count(dataType string) (int64, error)
	Counts() (map[string]int64, error)
}
