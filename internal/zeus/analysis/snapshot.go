// Package analysis defines the artist analysis snapshot consumed by the
// query pipeline and the provider that assembles it from the data stores.
package analysis

import "time"

// Snapshot is a point-in-time aggregate of an artist's events, releases,
// social metrics, and streaming stats. The pipeline treats it as an opaque,
// immutable value per request.
type Snapshot struct {
	UserID        string    `json:"userId"`
	ArtistName    string    `json:"artistName"`
	TotalEvents   int       `json:"totalEvents"`
	TotalReleases int       `json:"totalReleases"`
	TotalStreams  int64     `json:"totalStreams"`
	GeneratedAt   time.Time `json:"generatedAt"`

	Events    EventStats     `json:"events"`
	Releases  ReleaseStats   `json:"releases"`
	Social    SocialStats    `json:"social"`
	Streaming StreamingStats `json:"streaming"`
}

// Event is a single booked or past show.
type Event struct {
	Name  string    `json:"name"`
	Venue string    `json:"venue"`
	City  string    `json:"city"`
	Date  time.Time `json:"date"`
}

// EventStats summarizes the artist's live activity.
type EventStats struct {
	PastCount     int      `json:"pastCount"`
	UpcomingCount int      `json:"upcomingCount"`
	NextEvent     *Event   `json:"nextEvent,omitempty"`
	ScheduleGaps  []string `json:"scheduleGaps,omitempty"`
	Insights      []string `json:"insights,omitempty"`
	AvgAttendance float64  `json:"avgAttendance"`
}

// Release is a published album, EP, or single.
type Release struct {
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	ReleasedAt time.Time `json:"releasedAt"`
	Streams    int64     `json:"streams"`
}

// ReleaseStats summarizes the artist's catalog activity.
type ReleaseStats struct {
	Recent               []Release `json:"recent,omitempty"`
	DaysSinceLastRelease int       `json:"daysSinceLastRelease"`
	CadenceDays          float64   `json:"cadenceDays"`
}

// NetworkStats holds per-social-network metrics.
type NetworkStats struct {
	Followers      int64   `json:"followers"`
	EngagementRate float64 `json:"engagementRate"`
	PostsLastMonth int     `json:"postsLastMonth"`
}

// SocialStats summarizes the artist's social presence.
type SocialStats struct {
	Networks       map[string]NetworkStats `json:"networks,omitempty"`
	TotalFollowers int64                   `json:"totalFollowers"`
	EngagementRate float64                 `json:"engagementRate"`
	TopNetwork     string                  `json:"topNetwork,omitempty"`
}

// PlatformStats holds per-streaming-platform metrics.
type PlatformStats struct {
	Streams   int64   `json:"streams"`
	Listeners int64   `json:"listeners"`
	Revenue   float64 `json:"revenue"`
}

// StreamingStats summarizes the artist's streaming footprint.
type StreamingStats struct {
	Platforms        map[string]PlatformStats `json:"platforms,omitempty"`
	Distribution     map[string]float64       `json:"distribution,omitempty"`
	DominantPlatform string                   `json:"dominantPlatform,omitempty"`
	RevenuePerStream float64                  `json:"revenuePerStream"`
	MonthlyListeners int64                    `json:"monthlyListeners"`
}
