package domain

import (
	"strings"
	"time"
)

// Activity buckets derived from conversation starter titles.
const (
	ActivityQuiz     = "quiz"
	ActivityReview   = "review"
	ActivityTakeaway = "takeaway"
	ActivitySimplify = "simplify"
	ActivityStudy    = "study"
	ActivityMotivate = "motivate"
	ActivityOther    = "other"
)

var activityVocabulary = map[string]string{
	"quiz me":            ActivityQuiz,
	"review terms":       ActivityReview,
	"key takeaways":      ActivityTakeaway,
	"simplify a concept": ActivitySimplify,
	"study hacks":        ActivityStudy,
	"motivate me":        ActivityMotivate,
}

// NamedActivities are the six buckets that get their own dashboard counter.
// ActivityOther is deliberately excluded.
var NamedActivities = []string{
	ActivityQuiz, ActivityReview, ActivityTakeaway,
	ActivitySimplify, ActivityStudy, ActivityMotivate,
}

// ClassifyActivity maps a starter title to its feature bucket. Unrecognized
// titles classify as ActivityOther, never an error.
func ClassifyActivity(title string) string {
	if activity, ok := activityVocabulary[strings.ToLower(strings.TrimSpace(title))]; ok {
		return activity
	}
	return ActivityOther
}

// ParseUpstreamTime parses the upstream's ISO8601 timestamps, which end in a
// literal Z. Unparseable or empty input yields nil.
func ParseUpstreamTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// StringField returns the first non-empty string among the given keys.
func StringField(raw map[string]interface{}, keys ...string) *string {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok && v != "" {
			value := v
			return &value
		}
	}
	return nil
}

// BoolField returns the value of the first key present as a bool.
func BoolField(raw map[string]interface{}, keys ...string) bool {
	for _, key := range keys {
		if v, ok := raw[key].(bool); ok {
			return v
		}
	}
	return false
}

// IntField reads a numeric field; upstream JSON numbers decode as float64.
func IntField(raw map[string]interface{}, key string) int {
	switch v := raw[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// TimeField parses an upstream timestamp field.
func TimeField(raw map[string]interface{}, key string) *time.Time {
	if v, ok := raw[key].(string); ok {
		return ParseUpstreamTime(v)
	}
	return nil
}

// ExtractAccountEmail digs the email out of the nested identity-provider
// structure. Accounts provisioned through Cognito keep it under a different
// branch than password accounts; either may be missing.
func ExtractAccountEmail(raw map[string]interface{}) *string {
	auth, ok := raw["authentication"].(map[string]interface{})
	if !ok {
		return nil
	}
	if branch, ok := auth["email"].(map[string]interface{}); ok {
		if email, ok := branch["email"].(string); ok && email != "" {
			return &email
		}
	}
	if branch, ok := auth["API - AWS Cognito"].(map[string]interface{}); ok {
		if email, ok := branch["email"].(string); ok && email != "" {
			return &email
		}
	}
	return nil
}

// CourseDisplayName resolves the course's display name from its candidate
// fields in priority order, falling back to a truncated-id label.
func CourseDisplayName(raw map[string]interface{}, id string) string {
	if name := StringField(raw, "name_text", "course_name", "full_name_text", "name", "title"); name != nil {
		return *name
	}
	return "Course " + shortID(id)
}

// AssignmentDisplayName resolves an assignment name the same way.
func AssignmentDisplayName(raw map[string]interface{}, id string) string {
	if name := StringField(raw, "assignment_name_text", "name_text", "assignment_name", "name", "title"); name != nil {
		return *name
	}
	return "Assignment " + shortID(id)
}

// Weak reference extraction from conversation payloads. Older records use
// the bare field names; newer ones carry custom-variable aliases.

func ConversationAccountID(raw map[string]interface{}) *string {
	return StringField(raw, "user", "user_id")
}

func ConversationCourseID(raw map[string]interface{}) *string {
	return StringField(raw, "course_custom_variable_parent", "course", "course_id", "Course")
}

func ConversationAssignmentID(raw map[string]interface{}) *string {
	return StringField(raw, "assignment_custom_variable_parent", "assignment", "assignment_id", "Assignment")
}

func ConversationStarterRefID(raw map[string]interface{}) *string {
	return StringField(raw, "conversation_starter_custom_conversation_starter", "conversation_starter", "starter_id")
}

var excludedEmailDomains = []string{"@modia.ai", "@theinstitutes.org"}

// IsExcludedEmail reports whether the address belongs to an internal domain
// that is filtered out of dashboard listings and metrics.
func IsExcludedEmail(email string) bool {
	if email == "" {
		return false
	}
	lower := strings.ToLower(email)
	for _, domain := range excludedEmailDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
