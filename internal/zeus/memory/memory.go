// Package memory stores per-session conversation logs with derived topic,
// entity, and preference aggregates, backed by Redis.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/models"
	"zeus-pipeline/internal/zeus/intent"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "zeus:memory"

// Message is one stored turn. Assistant turns carry the context slice that
// produced them, for auditability.
type Message struct {
	Role        models.Role            `json:"role"`
	Content     string                 `json:"content"`
	Timestamp   time.Time              `json:"timestamp"`
	ContextData map[string]interface{} `json:"contextData,omitempty"`
}

// EntityMention tracks when an entity was last referenced. A new mention
// always refreshes the timestamp and count; it never resets other metadata.
type EntityMention struct {
	LastMentioned time.Time `json:"lastMentioned"`
	Mentions      int       `json:"mentions"`
}

// SessionContext holds the rolling focus of the conversation.
type SessionContext struct {
	LastQueryType  intent.QueryType `json:"lastQueryType,omitempty"`
	FocusedTopics  []string         `json:"focusedTopics,omitempty"`
	RecentEntities []string         `json:"recentEntities,omitempty"`
}

// Memory is the append-only log plus derived aggregates for one
// (userID, sessionID) pair. Exactly one record exists per pair.
type Memory struct {
	UserID      string                              `json:"userId"`
	SessionID   string                              `json:"sessionId"`
	Messages    []Message                           `json:"messages"`
	Context     SessionContext                      `json:"context"`
	Topics      map[string]int                      `json:"topics"`
	Entities    map[string]map[string]EntityMention `json:"entities"`
	Preferences map[string]string                   `json:"preferences"`
	CreatedAt   time.Time                           `json:"createdAt"`
	UpdatedAt   time.Time                           `json:"updatedAt"`
}

// Summary is the non-mutating projection spliced into grounding prompts.
type Summary struct {
	RecentMessages []Message         `json:"recentMessages,omitempty"`
	TopTopics      []string          `json:"topTopics,omitempty"`
	RecentEntities []string          `json:"recentEntities,omitempty"`
	Preferences    map[string]string `json:"preferences,omitempty"`
}

// topicKeywords derives topic labels from message text.
var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{"events", []string{"evento", "event", "concierto", "concert", "show", "gira", "tour", "agenda"}},
	{"releases", []string{"release", "lanzamiento", "álbum", "album", "single", "sencillo"}},
	{"streaming", []string{"spotify", "stream", "playlist", "oyentes", "reproducciones"}},
	{"social_media", []string{"instagram", "tiktok", "twitter", "social", "followers", "seguidores"}},
	{"promotion", []string{"promo", "marketing", "campaign", "campaña"}},
	{"revenue", []string{"revenue", "ingresos", "ganancias", "earnings"}},
}

// Store is the Redis-backed memory store with lookup-or-create semantics.
type Store struct {
	rdb    *redis.Client
	logger logger.Logger
}

func NewStore(rdb *redis.Client, log logger.Logger) *Store {
	return &Store{
		rdb: rdb,
		logger: log.With(map[string]interface{}{
			"component": "conversation-memory",
		}),
	}
}

func memoryKey(userID, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, userID, sessionID)
}

// GetMemory returns the record for the pair, creating and persisting a
// fresh one when none exists. A missing record is never an error.
func (s *Store) GetMemory(ctx context.Context, userID, sessionID string) (*Memory, error) {
	key := memoryKey(userID, sessionID)

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var mem Memory
		if err := json.Unmarshal([]byte(val), &mem); err != nil {
			return nil, fmt.Errorf("unmarshal memory: %w", err)
		}
		return &mem, nil
	}
	if err != redis.Nil {
		return nil, err
	}

	now := time.Now().UTC()
	mem := &Memory{
		UserID:      userID,
		SessionID:   sessionID,
		Messages:    []Message{},
		Topics:      make(map[string]int),
		Entities:    make(map[string]map[string]EntityMention),
		Preferences: make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.save(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *Store) save(ctx context.Context, mem *Memory) error {
	data, err := json.Marshal(mem)
	if err != nil {
		return err
	}
	// Retention is an external concern; records carry no expiry here.
	return s.rdb.Set(ctx, memoryKey(mem.UserID, mem.SessionID), data, 0).Err()
}

// AddUserMessage appends the turn, merges derived topics into the session
// multiset, and refreshes entity mention timestamps.
func (s *Store) AddUserMessage(ctx context.Context, userID, sessionID, content string, entities *intent.Entities, queryType intent.QueryType) error {
	mem, err := s.GetMemory(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	mem.Messages = append(mem.Messages, Message{
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: now,
	})

	for _, topic := range deriveTopics(content) {
		mem.Topics[topic]++
	}

	mergeEntities(mem, entities, now)

	mem.Context.LastQueryType = queryType
	mem.Context.FocusedTopics = topTopics(mem.Topics, 3)
	mem.Context.RecentEntities = recentEntities(mem.Entities, 5)
	mem.UpdatedAt = now

	return s.save(ctx, mem)
}

// AddZeusResponse appends the assistant turn together with the context
// slice that produced it.
func (s *Store) AddZeusResponse(ctx context.Context, userID, sessionID, content string, contextData map[string]interface{}) error {
	mem, err := s.GetMemory(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	mem.Messages = append(mem.Messages, Message{
		Role:        models.RoleAssistant,
		Content:     content,
		Timestamp:   now,
		ContextData: contextData,
	})
	mem.UpdatedAt = now

	return s.save(ctx, mem)
}

// SetPreference records an explicit user preference.
func (s *Store) SetPreference(ctx context.Context, userID, sessionID, key, value string) error {
	mem, err := s.GetMemory(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	mem.Preferences[key] = value
	mem.UpdatedAt = time.Now().UTC()
	return s.save(ctx, mem)
}

// GenerateMemorySummary derives the prompt-splice summary without mutating
// the record: last 5 messages, top-3 topics by frequency, most recent
// entity mentions, current preferences.
func GenerateMemorySummary(mem *Memory) *Summary {
	if mem == nil {
		return &Summary{}
	}

	summary := &Summary{
		TopTopics:      topTopics(mem.Topics, 3),
		RecentEntities: recentEntities(mem.Entities, 5),
	}

	start := len(mem.Messages) - 5
	if start < 0 {
		start = 0
	}
	summary.RecentMessages = append(summary.RecentMessages, mem.Messages[start:]...)

	if len(mem.Preferences) > 0 {
		summary.Preferences = make(map[string]string, len(mem.Preferences))
		for k, v := range mem.Preferences {
			summary.Preferences[k] = v
		}
	}

	return summary
}

// Render flattens the summary into the single line spliced into prompts.
func (s *Summary) Render() string {
	var parts []string
	if len(s.TopTopics) > 0 {
		parts = append(parts, "recent topics: "+strings.Join(s.TopTopics, ", "))
	}
	if len(s.RecentEntities) > 0 {
		parts = append(parts, "mentioned: "+strings.Join(s.RecentEntities, ", "))
	}
	if len(s.Preferences) > 0 {
		keys := make([]string, 0, len(s.Preferences))
		for k := range s.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		prefs := make([]string, 0, len(keys))
		for _, k := range keys {
			prefs = append(prefs, k+"="+s.Preferences[k])
		}
		parts = append(parts, "preferences: "+strings.Join(prefs, ", "))
	}
	return strings.Join(parts, "; ")
}

func deriveTopics(content string) []string {
	normalized := strings.ToLower(content)
	var topics []string
	for _, entry := range topicKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(normalized, kw) {
				topics = append(topics, entry.topic)
				break
			}
		}
	}
	return topics
}

func mergeEntities(mem *Memory, entities *intent.Entities, now time.Time) {
	if entities.IsEmpty() {
		return
	}

	merge := func(category string, names []string) {
		if len(names) == 0 {
			return
		}
		if mem.Entities[category] == nil {
			mem.Entities[category] = make(map[string]EntityMention)
		}
		for _, name := range names {
			mention := mem.Entities[category][name]
			mention.LastMentioned = now
			mention.Mentions++
			mem.Entities[category][name] = mention
		}
	}

	merge("platforms", entities.Platforms)
	merge("socialNetworks", entities.SocialNetworks)
	merge("contentTypes", entities.ContentTypes)
}

// topTopics returns the n most frequent topics; ties break alphabetically
// so the result is deterministic.
func topTopics(topics map[string]int, n int) []string {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if topics[names[i]] != topics[names[j]] {
			return topics[names[i]] > topics[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// recentEntities returns entity names ordered by most recent mention.
func recentEntities(entities map[string]map[string]EntityMention, n int) []string {
	type mention struct {
		name string
		at   time.Time
	}
	var all []mention
	for _, category := range entities {
		for name, m := range category {
			all = append(all, mention{name: name, at: m.LastMentioned})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].at.Equal(all[j].at) {
			return all[i].at.After(all[j].at)
		}
		return all[i].name < all[j].name
	})
	if len(all) > n {
		all = all[:n]
	}
	names := make([]string, 0, len(all))
	for _, m := range all {
		names = append(names, m.name)
	}
	return names
}
