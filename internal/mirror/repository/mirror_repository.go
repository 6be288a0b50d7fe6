package repository

import (
	"fmt"

	"aadash-backend/internal/mirror/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// mirrorRepository implements MirrorRepository on gorm.
type mirrorRepository struct {
	db *gorm.DB
}

func NewMirrorRepository(db *gorm.DB) MirrorRepository {
	return &mirrorRepository{db: db}
}

func (r *mirrorRepository) RunInTransaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// upsert is create-or-overwrite keyed on the upstream external id. Re-syncing
// an already-present id rewrites every mutable column (last write wins).
func upsert(tx *gorm.DB, entity interface{}) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(entity).Error
}

func (r *mirrorRepository) UpsertAccount(tx *gorm.DB, account *domain.Account) error {
	return upsert(tx, account)
}

func (r *mirrorRepository) UpsertCourse(tx *gorm.DB, course *domain.Course) error {
	return upsert(tx, course)
}

func (r *mirrorRepository) UpsertAssignment(tx *gorm.DB, assignment *domain.Assignment) error {
	return upsert(tx, assignment)
}

func (r *mirrorRepository) UpsertConversationStarter(tx *gorm.DB, starter *domain.ConversationStarter) error {
	return upsert(tx, starter)
}

func (r *mirrorRepository) UpsertConversation(tx *gorm.DB, conversation *domain.Conversation) error {
	return upsert(tx, conversation)
}

func (r *mirrorRepository) UpsertMessage(tx *gorm.DB, message *domain.Message) error {
	return upsert(tx, message)
}

func (r *mirrorRepository) FindAccount(id string) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.Where("id = ?", id).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *mirrorRepository) FindCourse(id string) (*domain.Course, error) {
	var course domain.Course
	if err := r.db.Where("id = ?", id).First(&course).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

func (r *mirrorRepository) FindAssignment(id string) (*domain.Assignment, error) {
	var assignment domain.Assignment
	if err := r.db.Where("id = ?", id).First(&assignment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &assignment, nil
}

func (r *mirrorRepository) FindConversationStarter(id string) (*domain.ConversationStarter, error) {
	var starter domain.ConversationStarter
	if err := r.db.Where("id = ?", id).First(&starter).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &starter, nil
}

func (r *mirrorRepository) Count(dataType string) (int64, error) {
	model, err := modelFor(dataType)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.db.Model(model).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *mirrorRepository) Counts() (map[string]int64, error) {
	counts := make(map[string]int64, len(domain.SyncOrder))
	for _, dataType := range domain.SyncOrder {
		count, err := r.Count(dataType)
		if err != nil {
			return nil, err
		}
		counts[dataType] = count
	}
	return counts, nil
}

func modelFor(dataType string) (interface{}, error) {
	switch dataType {
	case domain.DataTypeAccount:
		return &domain.Account{}, nil
	case domain.DataTypeCourse:
		return &domain.Course{}, nil
	case domain.DataTypeAssignment:
		return &domain.Assignment{}, nil
	case domain.DataTypeConversationStarter:
		return &domain.ConversationStarter{}, nil
	case domain.DataTypeConversation:
		return &domain.Conversation{}, nil
	case domain.DataTypeMessage:
		return &domain.Message{}, nil
	}
	return nil, fmt.Errorf("unknown data type %q", dataType)
}
