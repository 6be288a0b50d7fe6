package usecase

import (
	"encoding/json"
	"log"
	"math"
	"time"

	"aadash-backend/internal/metrics/repository"
	"aadash-backend/internal/mirror/domain"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	cacheTTL  = 10 * time.Minute
	cacheSize = 16
)

// Stats is the headline counter trio.
type Stats struct {
	Users         int64 `json:"users"`
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
}

// Metrics is the full dashboard aggregate.
type Metrics struct {
	TotalUsers         int64            `json:"total_users"`
	TotalConversations int64            `json:"total_conversations"`
	TotalMessages      int64            `json:"total_messages"`
	UserMessages       int64            `json:"user_messages"`
	AvgMessagesPerConv float64          `json:"avg_messages_per_conv"`
	UniqueCourses      int64            `json:"unique_courses"`
	UniqueAssignments  int64            `json:"unique_assignments"`
	ConvsPerCourse     map[string]int64 `json:"convs_per_course"`
	ConvsPerAssignment map[string]int64 `json:"convs_per_assignment"`
	ActivityCounts     map[string]int64 `json:"activity_counts"`
}

// ConversationSummary is one dashboard listing row.
type ConversationSummary struct {
	ID             string     `json:"id"`
	CreatedDate    *time.Time `json:"created_date"`
	AccountEmail   string     `json:"user_email"`
	CourseName     string     `json:"course"`
	AssignmentName string     `json:"assignment"`
	StarterName    string     `json:"conversation_starter"`
	MessageCount   int        `json:"message_count"`
}

// MetricsUsecase aggregates dashboard reads over the mirror behind a TTL
// cache. Every method degrades to empty/zero results on failure: a partially
// populated mirror is the normal steady state, not an error.
type MetricsUsecase struct {
	repo  repository.MetricsRepository
	cache *lru.LRU[string, interface{}]
}

func NewMetricsUsecase(repo repository.MetricsRepository) *MetricsUsecase {
	return &MetricsUsecase{
		repo:  repo,
		cache: lru.NewLRU[string, interface{}](cacheSize, nil, cacheTTL),
	}
}

// Invalidate drops all cached aggregates. The sync orchestrator calls this
// after every pass that wrote anything.
func (u *MetricsUsecase) Invalidate() {
	u.cache.Purge()
	log.Println("[Metrics] Cache invalidated")
}

// GetStats returns the headline counters.
func (u *MetricsUsecase) GetStats() Stats {
	if cached, ok := u.cache.Get("stats"); ok {
		return cached.(Stats)
	}

	var stats Stats
	var err error
	if stats.Users, err = u.repo.AccountCount(); err != nil {
		log.Printf("[Metrics] Stats query failed: %v", err)
		return Stats{}
	}
	if stats.Conversations, err = u.repo.ConversationCount(); err != nil {
		log.Printf("[Metrics] Stats query failed: %v", err)
		return Stats{}
	}
	if stats.Messages, err = u.repo.MessageCount(); err != nil {
		log.Printf("[Metrics] Stats query failed: %v", err)
		return Stats{}
	}

	u.cache.Add("stats", stats)
	return stats
}

// GetMetrics builds the full dashboard aggregate. Display names are resolved
// at read time from raw payloads; starters that classify as "other" are
// excluded from the named activity counters.
func (u *MetricsUsecase) GetMetrics() Metrics {
	if cached, ok := u.cache.Get("metrics"); ok {
		return cached.(Metrics)
	}

	metrics := Metrics{
		ConvsPerCourse:     map[string]int64{},
		ConvsPerAssignment: map[string]int64{},
		ActivityCounts:     emptyActivityCounts(),
	}

	var err error
	if metrics.TotalUsers, err = u.repo.AccountCount(); err != nil {
		log.Printf("[Metrics] Metrics query failed: %v", err)
		return metrics
	}
	metrics.TotalConversations, _ = u.repo.ConversationCount()
	metrics.TotalMessages, _ = u.repo.MessageCount()
	metrics.UserMessages, _ = u.repo.UserMessageCount()
	metrics.UniqueCourses, _ = u.repo.DistinctCourseCount()
	metrics.UniqueAssignments, _ = u.repo.DistinctAssignmentCount()

	if metrics.TotalConversations > 0 {
		avg := float64(metrics.UserMessages) / float64(metrics.TotalConversations)
		metrics.AvgMessagesPerConv = math.Round(avg*100) / 100
	}

	metrics.ConvsPerCourse = u.courseCounts()
	metrics.ConvsPerAssignment = u.assignmentCounts()
	u.fillActivityCounts(&metrics)

	u.cache.Add("metrics", metrics)
	return metrics
}

func (u *MetricsUsecase) courseCounts() map[string]int64 {
	grouped, err := u.repo.ConversationsByCourse()
	if err != nil {
		log.Printf("[Metrics] Course grouping failed: %v", err)
		return map[string]int64{}
	}

	ids := make([]string, 0, len(grouped))
	for _, row := range grouped {
		ids = append(ids, row.RefID)
	}
	courses, err := u.repo.CoursesByID(ids)
	if err != nil {
		log.Printf("[Metrics] Course lookup failed: %v", err)
		courses = map[string]*domain.Course{}
	}

	counts := make(map[string]int64, len(grouped))
	for _, row := range grouped {
		name := "Course " + shortID(row.RefID)
		if course, ok := courses[row.RefID]; ok {
			name = domain.CourseDisplayName(rawMap(course.RawData), course.ID)
		}
		counts[name] += row.Count
	}
	return counts
}

func (u *MetricsUsecase) assignmentCounts() map[string]int64 {
	grouped, err := u.repo.ConversationsByAssignment()
	if err != nil {
		log.Printf("[Metrics] Assignment grouping failed: %v", err)
		return map[string]int64{}
	}

	ids := make([]string, 0, len(grouped))
	for _, row := range grouped {
		ids = append(ids, row.RefID)
	}
	assignments, err := u.repo.AssignmentsByID(ids)
	if err != nil {
		log.Printf("[Metrics] Assignment lookup failed: %v", err)
		assignments = map[string]*domain.Assignment{}
	}

	counts := make(map[string]int64, len(grouped))
	for _, row := range grouped {
		name := "Assignment " + shortID(row.RefID)
		if assignment, ok := assignments[row.RefID]; ok {
			name = domain.AssignmentDisplayName(rawMap(assignment.RawData), assignment.ID)
		}
		counts[name] += row.Count
	}
	return counts
}

func (u *MetricsUsecase) fillActivityCounts(metrics *Metrics) {
	grouped, err := u.repo.ConversationsByStarter()
	if err != nil {
		log.Printf("[Metrics] Starter grouping failed: %v", err)
		return
	}

	ids := make([]string, 0, len(grouped))
	for _, row := range grouped {
		ids = append(ids, row.RefID)
	}
	starters, err := u.repo.StartersByID(ids)
	if err != nil {
		log.Printf("[Metrics] Starter lookup failed: %v", err)
		return
	}

	for _, row := range grouped {
		starter, ok := starters[row.RefID]
		if !ok || starter.ActivityLabel == nil {
			continue
		}
		activity := domain.ClassifyActivity(*starter.ActivityLabel)
		if activity == domain.ActivityOther {
			continue
		}
		metrics.ActivityCounts[activity] += row.Count
	}
}

// GetActivityChart returns the six named activity counters for the chart
// endpoint.
func (u *MetricsUsecase) GetActivityChart() map[string]int64 {
	return u.GetMetrics().ActivityCounts
}

// GetCourseChart returns conversations per course display name.
func (u *MetricsUsecase) GetCourseChart() map[string]int64 {
	return u.GetMetrics().ConvsPerCourse
}

// GetSessionsByDate returns per-day conversation counts in date order.
func (u *MetricsUsecase) GetSessionsByDate() []repository.DateCount {
	if cached, ok := u.cache.Get("sessions_by_date"); ok {
		return cached.([]repository.DateCount)
	}
	rows, err := u.repo.ConversationsByDay()
	if err != nil {
		log.Printf("[Metrics] Sessions-by-date query failed: %v", err)
		return []repository.DateCount{}
	}
	u.cache.Add("sessions_by_date", rows)
	return rows
}

// ListConversations returns the filtered dashboard listing with internal
// test-domain addresses filtered out.
func (u *MetricsUsecase) ListConversations(filter repository.ConversationFilter) []ConversationSummary {
	conversations, err := u.repo.ListConversations(filter)
	if err != nil {
		log.Printf("[Metrics] Conversation listing failed: %v", err)
		return []ConversationSummary{}
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		email := deref(conv.AccountEmail)
		if domain.IsExcludedEmail(email) {
			continue
		}
		summaries = append(summaries, ConversationSummary{
			ID:             conv.ID,
			CreatedDate:    conv.CreatedDate,
			AccountEmail:   email,
			CourseName:     orUnknown(conv.CourseName, "Unknown Course"),
			AssignmentName: orUnknown(conv.AssignmentName, "Unknown Assignment"),
			StarterName:    deref(conv.StarterName),
			MessageCount:   conv.MessageCount,
		})
	}
	return summaries
}

// ListMessages returns one conversation's messages with the computed user
// flag attached.
func (u *MetricsUsecase) ListMessages(conversationID string) []map[string]interface{} {
	messages, err := u.repo.ListMessages(conversationID)
	if err != nil {
		log.Printf("[Metrics] Message listing failed: %v", err)
		return []map[string]interface{}{}
	}

	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		out = append(out, map[string]interface{}{
			"id":              msg.ID,
			"text":            deref(msg.Text),
			"is_user_message": msg.IsUserMessage(),
			"created_date":    msg.CreatedDate,
		})
	}
	return out
}

func emptyActivityCounts() map[string]int64 {
	counts := make(map[string]int64, len(domain.NamedActivities))
	for _, activity := range domain.NamedActivities {
		counts[activity] = 0
	}
	return counts
}

func rawMap(raw []byte) map[string]interface{} {
	var m map[string]interface{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &m)
	}
	return m
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orUnknown(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
