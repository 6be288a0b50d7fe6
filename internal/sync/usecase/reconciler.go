package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aadash-backend/internal/mirror/domain"
	"aadash-backend/internal/mirror/repository"
	"aadash-backend/pkg/upstream"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reconciler maps one raw upstream record onto one local row. Records
// without an external id are skipped silently; everything else is an
// idempotent upsert that rewrites all mutable fields and keeps the raw
// payload verbatim.
type Reconciler struct {
	mirror repository.MirrorRepository
	now    func() time.Time
}

func NewReconciler(mirror repository.MirrorRepository) *Reconciler {
	return &Reconciler{mirror: mirror, now: func() time.Time { return time.Now().UTC() }}
}

// Reconcile applies one record inside the page transaction. Returns false
// when the record was skipped for lacking an id.
func (r *Reconciler) Reconcile(tx *gorm.DB, dataType string, raw upstream.Record) (bool, error) {
	id, _ := raw["_id"].(string)
	if id == "" {
		return false, nil
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("encoding raw payload for %s %s: %w", dataType, id, err)
	}

	switch dataType {
	case domain.DataTypeAccount:
		return true, r.reconcileAccount(tx, id, raw, rawJSON)
	case domain.DataTypeCourse:
		return true, r.reconcileCourse(tx, id, raw, rawJSON)
	case domain.DataTypeAssignment:
		return true, r.reconcileAssignment(tx, id, raw, rawJSON)
	case domain.DataTypeConversationStarter:
		return true, r.reconcileConversationStarter(tx, id, raw, rawJSON)
	case domain.DataTypeConversation:
		return true, r.reconcileConversation(tx, id, raw, rawJSON)
	case domain.DataTypeMessage:
		return true, r.reconcileMessage(tx, id, raw, rawJSON)
	}
	return false, fmt.Errorf("unknown data type %q", dataType)
}

func (r *Reconciler) reconcileAccount(tx *gorm.DB, id string, raw upstream.Record, rawJSON []byte) error {
	account := &domain.Account{
		ID:              id,
		Email:           domain.ExtractAccountEmail(raw),
		UserSignedUp:    domain.BoolField(raw, "user_signed_up"),
		Role:            domain.StringField(raw, "role_option_roles"),
		CompanyOptedOut: domain.BoolField(raw, "is_company_opted_out_boolean"),
		SeenTooltipTour: domain.BoolField(raw, "has_seen_tooltip_tour_boolean"),
		CreatedDate:     domain.TimeField(raw, "Created Date"),
		ModifiedDate:    domain.TimeField(raw, "Modified Date"),
		RawData:         datatypes.JSON(rawJSON),
		LastSynced:      r.now(),
	}
	return r.mirror.UpsertAccount(tx, account)
}

func (r *Reconciler) reconcileCourse(tx *gorm.DB, id string, raw upstream.Record, rawJSON []byte) error {
	course := &domain.Course{
		ID:           id,
		Name:         domain.StringField(raw, "name"),
		NameText:     domain.StringField(raw, "name_text"),
		Title:        domain.StringField(raw, "title"),
		CreatedDate:  domain.TimeField(raw, "Created Date"),
		ModifiedDate: domain.TimeField(raw, "Modified Date"),
		RawData:      datatypes.JSON(rawJSON),
		LastSynced:   r.now(),
	}
	return r.mirror.UpsertCourse(tx, course)
}

func (r *Reconciler) reconcileAssignment(tx *gorm.DB, id string, raw upstream.Record, rawJSON []byte) error {
	assignment := &domain.Assignment{
		ID:                 id,
		Name:               domain.StringField(raw, "name"),
		NameText:           domain.StringField(raw, "name_text"),
		AssignmentName:     domain.StringField(raw, "assignment_name"),
		AssignmentNameText: domain.StringField(raw, "assignment_name_text"),
		Title:              domain.StringField(raw, "title"),
		CourseID:           domain.StringField(raw, "course"),
		CreatedDate:        domain.TimeField(raw, "Created Date"),
		ModifiedDate:       domain.TimeField(raw, "Modified Date"),
		RawData:            datatypes.JSON(rawJSON),
		LastSynced:         r.now(),
	}
	return r.mirror.UpsertAssignment(tx, assignment)
}

func (r *Reconciler) reconcileConversationStarter(tx *gorm.DB, id string, raw upstream.Record, rawJSON []byte) error {
	var label *string
	if title := domain.StringField(raw, "title_text"); title != nil {
		lowered := strings.ToLower(*title)
		label = &lowered
	}
	starter := &domain.ConversationStarter{
		ID:            id,
		Name:          domain.StringField(raw, "name", "name_text"),
		NameText:      domain.StringField(raw, "name_text"),
		ActivityLabel: label,
		CreatedDate:   domain.TimeField(raw, "Created Date"),
		ModifiedDate:  domain.TimeField(raw, "Modified Date"),
		RawData:       datatypes.JSON(rawJSON),
		LastSynced:    r.now(),
	}
	return r.mirror.UpsertConversationStarter(tx, starter)
}

func (r *Reconciler) reconcileConversation(tx *gorm.DB, id string, raw upstream.Record, rawJSON []byte) error {
	conversation := &domain.Conversation{
		ID:           id,
		AccountID:    domain.ConversationAccountID(raw),
		CourseID:     domain.ConversationCourseID(raw),
		AssignmentID: domain.ConversationAssignmentID(raw),
		StarterID:    domain.ConversationStarterRefID(raw),
		MessageCount: domain.IntField(raw, "message_count"),
		CreatedDate:  domain.TimeField(raw, "Created Date"),
		ModifiedDate: domain.TimeField(raw, "Modified Date"),
		RawData:      datatypes.JSON(rawJSON),
		LastSynced:   r.now(),
	}

	// Best-effort denormalization: these lookups only hit when the referent
	// was synced in an earlier phase of the same pass. A miss leaves the
	// field nil; never an error.
	if conversation.AccountID != nil {
		if account, err := r.mirror.FindAccount(*conversation.AccountID); err == nil && account != nil {
			conversation.AccountEmail = account.Email
		}
	}
	if conversation.CourseID != nil {
		if course, err := r.mirror.FindCourse(*conversation.CourseID); err == nil && course != nil {
			name := firstNonNil(course.Name, course.NameText, course.Title)
			conversation.CourseName = name
		}
	}
	if conversation.AssignmentID != nil {
		if assignment, err := r.mirror.FindAssignment(*conversation.AssignmentID); err == nil && assignment != nil {
			name := firstNonNil(assignment.AssignmentNameText, assignment.NameText,
				assignment.AssignmentName, assignment.Name, assignment.Title)
			conversation.AssignmentName = name
		}
	}
	if conversation.StarterID != nil {
		if starter, err := r.mirror.FindConversationStarter(*conversation.StarterID); err == nil && starter != nil {
			conversation.StarterName = firstNonNil(starter.Name, starter.NameText)
		}
	}

	return r.mirror.UpsertConversation(tx, conversation)
}

func (r *Reconciler) reconcileMessage(tx *gorm.DB, id string, raw upstream.Record, rawJSON []byte) error {
	message := &domain.Message{
		ID:             id,
		ConversationID: domain.StringField(raw, "conversation"),
		Role:           domain.StringField(raw, "role"),
		RoleOption:     domain.StringField(raw, "role_option_message_role"),
		Text:           domain.StringField(raw, "text"),
		CreatedDate:    domain.TimeField(raw, "Created Date"),
		ModifiedDate:   domain.TimeField(raw, "Modified Date"),
		RawData:        datatypes.JSON(rawJSON),
		LastSynced:     r.now(),
	}
	return r.mirror.UpsertMessage(tx, message)
}

func firstNonNil(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			return c
		}
	}
	return nil
}
