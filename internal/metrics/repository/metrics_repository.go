package repository

import (
	"time"

	"aadash-backend/internal/mirror/domain"

	"gorm.io/gorm"
)

// RefCount is a grouped count keyed by a weak-reference id.
type RefCount struct {
	RefID string
	Count int64
}

// DateCount is a per-day conversation count.
type DateCount struct {
	Day   string
	Count int64
}

// ConversationFilter narrows the dashboard conversation listing.
type ConversationFilter struct {
	EmailContains  string
	CourseContains string
	DateStart      *time.Time
	DateEnd        *time.Time
	Limit          int
}

// MetricsRepository is the read-only query surface over the mirror. All
// methods tolerate a partially populated mirror; dangling references simply
// fall out of joins.
type MetricsRepository interface {
	AccountCount() (int64, error)
	ConversationCount() (int64, error)
	MessageCount() (int64, error)
	// UserMessageCount applies the OR-semantics role predicate: either the
	// legacy or the structured role field saying "user" counts.
	UserMessageCount() (int64, error)
	DistinctCourseCount() (int64, error)
	DistinctAssignmentCount() (int64, error)

	ConversationsByCourse() ([]RefCount, error)
	ConversationsByAssignment() ([]RefCount, error)
	ConversationsByStarter() ([]RefCount, error)
	ConversationsByDay() ([]DateCount, error)

	CoursesByID(ids []string) (map[string]*domain.Course, error)
	AssignmentsByID(ids []string) (map[string]*domain.Assignment, error)
	StartersByID(ids []string) (map[string]*domain.ConversationStarter, error)

	ListConversations(filter ConversationFilter) ([]*domain.Conversation, error)
	ListMessages(conversationID string) ([]*domain.Message, error)
}

type metricsRepository struct {
	db *gorm.DB
}

func NewMetricsRepository(db *gorm.DB) MetricsRepository {
	return &metricsRepository{db: db}
}

func (r *metricsRepository) AccountCount() (int64, error) {
	var count int64
	err := r.db.Model(&domain.Account{}).Count(&count).Error
	return count, err
}

func (r *metricsRepository) ConversationCount() (int64, error) {
	var count int64
	err := r.db.Model(&domain.Conversation{}).Count(&count).Error
	return count, err
}

func (r *metricsRepository) MessageCount() (int64, error) {
	var count int64
	err := r.db.Model(&domain.Message{}).Count(&count).Error
	return count, err
}

func (r *metricsRepository) UserMessageCount() (int64, error) {
	var count int64
	err := r.db.Model(&domain.Message{}).
		Where("role_option = ? OR role = ?", "user", "user").
		Count(&count).Error
	return count, err
}

func (r *metricsRepository) DistinctCourseCount() (int64, error) {
	var count int64
	err := r.db.Model(&domain.Conversation{}).
		Where("course_id IS NOT NULL").
		Distinct("course_id").
		Count(&count).Error
	return count, err
}

func (r *metricsRepository) DistinctAssignmentCount() (int64, error) {
	var count int64
	err := r.db.Model(&domain.Conversation{}).
		Where("assignment_id IS NOT NULL").
		Distinct("assignment_id").
		Count(&count).Error
	return count, err
}

func (r *metricsRepository) ConversationsByCourse() ([]RefCount, error) {
	return r.groupedCounts("course_id")
}

func (r *metricsRepository) ConversationsByAssignment() ([]RefCount, error) {
	return r.groupedCounts("assignment_id")
}

func (r *metricsRepository) ConversationsByStarter() ([]RefCount, error) {
	return r.groupedCounts("starter_id")
}

func (r *metricsRepository) groupedCounts(column string) ([]RefCount, error) {
	var rows []RefCount
	err := r.db.Model(&domain.Conversation{}).
		Select(column+" AS ref_id, COUNT(*) AS count").
		Where(column+" IS NOT NULL").
		Group(column).
		Scan(&rows).Error
	return rows, err
}

func (r *metricsRepository) ConversationsByDay() ([]DateCount, error) {
	var rows []DateCount
	err := r.db.Model(&domain.Conversation{}).
		Select("DATE(created_date) AS day, COUNT(*) AS count").
		Where("created_date IS NOT NULL").
		Group("DATE(created_date)").
		Order("day").
		Scan(&rows).Error
	return rows, err
}

func (r *metricsRepository) CoursesByID(ids []string) (map[string]*domain.Course, error) {
	var courses []*domain.Course
	if err := r.db.Where("id IN ?", ids).Find(&courses).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Course, len(courses))
	for _, course := range courses {
		byID[course.ID] = course
	}
	return byID, nil
}

func (r *metricsRepository) AssignmentsByID(ids []string) (map[string]*domain.Assignment, error) {
	var assignments []*domain.Assignment
	if err := r.db.Where("id IN ?", ids).Find(&assignments).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Assignment, len(assignments))
	for _, assignment := range assignments {
		byID[assignment.ID] = assignment
	}
	return byID, nil
}

func (r *metricsRepository) StartersByID(ids []string) (map[string]*domain.ConversationStarter, error) {
	var starters []*domain.ConversationStarter
	if err := r.db.Where("id IN ?", ids).Find(&starters).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.ConversationStarter, len(starters))
	for _, starter := range starters {
		byID[starter.ID] = starter
	}
	return byID, nil
}

func (r *metricsRepository) ListConversations(filter ConversationFilter) ([]*domain.Conversation, error) {
	query := r.db.Model(&domain.Conversation{})
	if filter.EmailContains != "" {
		query = query.Where("account_email LIKE ?", "%"+filter.EmailContains+"%")
	}
	if filter.CourseContains != "" {
		query = query.Where("course_name LIKE ?", "%"+filter.CourseContains+"%")
	}
	if filter.DateStart != nil {
		query = query.Where("created_date >= ?", *filter.DateStart)
	}
	if filter.DateEnd != nil {
		query = query.Where("created_date < ?", *filter.DateEnd)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	var conversations []*domain.Conversation
	err := query.Order("created_date DESC").Limit(limit).Find(&conversations).Error
	return conversations, err
}

func (r *metricsRepository) ListMessages(conversationID string) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_date").
		Find(&messages).Error
	return messages, err
}
