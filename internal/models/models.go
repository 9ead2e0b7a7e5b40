package models

import "time"

// Session is the signed-in state returned by the backend's auth endpoint.
// UserID and Email are mirrored out of the access token claims.
type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// Event mirrors a row of the remote events collection. Date and EndDate are
// calendar dates (YYYY-MM-DD), Time is a time of day (HH:MM:SS); both are
// kept as strings so that lexicographic order matches the backend's order.
// IsBookmarked and CommentsCount are derived per viewing user at fetch time
// and never written back.
type Event struct {
	ID            string   `json:"id"`
	OrganizerID   string   `json:"organizer_id,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Date          string   `json:"date"`
	EndDate       string   `json:"end_date,omitempty"`
	Time          string   `json:"time"`
	Location      string   `json:"location"`
	City          string   `json:"city"`
	Price         float64  `json:"event_price"`
	ImageURL      string   `json:"image_url,omitempty"`
	CategoryIDs   []string `json:"category_ids"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Organizer     Profile  `json:"profiles,omitempty"`
	CommentsCount int      `json:"comments_count,omitempty"`
	IsBookmarked  bool     `json:"is_bookmarked,omitempty"`
}

// Comment mirrors a row of the remote comments collection. LikesCount is
// maintained by the backend; the client only mirrors it (plus a local ±1
// adjustment while a like toggle is in flight).
type Comment struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id,omitempty"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	LikesCount      int       `json:"likes_count"`
	ParentCommentID string    `json:"parent_comment_id,omitempty"`
	Author          Profile   `json:"profiles,omitempty"`
}
