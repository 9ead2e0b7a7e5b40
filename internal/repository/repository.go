// Package repository is the typed data access layer: it turns gateway rows
// into models and owns the collection names, select expressions and input
// validation for every remote read and write.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"citymeet/mobile/internal/gateway"
	"citymeet/mobile/internal/models"
	"citymeet/mobile/internal/query"

	"github.com/go-playground/validator/v10"
)

// CommentColumns disambiguates the author join through the comment's
// user_id foreign key; the backend still returns it under "profiles".
const CommentColumns = "id,event_id,content,created_at,likes_count,parent_comment_id,profiles!comments_user_id_fkey(username,avatar_url)"

type Repository struct {
	gw        gateway.Client
	validator *validator.Validate
	logger    *slog.Logger
}

func New(gw gateway.Client, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		gw:        gw,
		validator: validator.New(),
		logger:    logger,
	}
}

// eventRecord carries the raw comment-count aggregate next to the event
// columns.
type eventRecord struct {
	models.Event
	Comments []struct {
		Count int `json:"count"`
	} `json:"comments"`
}

// FetchEvents runs a composed filter query and returns events enriched with
// their comment counts. Bookmark flags are layered on by the bookmark
// store, not here.
func (r *Repository) FetchEvents(ctx context.Context, spec query.FilterSpec) ([]models.Event, error) {
	rows, err := r.gw.Select(ctx, spec.Build())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return decodeEvents(rows)
}

func (r *Repository) FetchEventByID(ctx context.Context, eventID string) (models.Event, error) {
	q := gateway.NewQuery("events", query.EventColumns).Eq("id", eventID).One()
	rows, err := r.gw.Select(ctx, q)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to load event details: %w", err)
	}
	events, err := decodeEvents(rows)
	if err != nil {
		return models.Event{}, err
	}
	return events[0], nil
}

// FetchBookmarkedEvents resolves the user's bookmark rows to full event
// records, ordered like the main list. Every returned event carries
// IsBookmarked=true.
func (r *Repository) FetchBookmarkedEvents(ctx context.Context, userID string) ([]models.Event, error) {
	bookmarkRows, err := r.gw.Select(ctx, gateway.NewQuery("user_bookmarks", "event_id").Eq("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarked events: %w", err)
	}
	eventIDs := make([]string, 0, len(bookmarkRows))
	for _, row := range bookmarkRows {
		if id := row.String("event_id"); id != "" {
			eventIDs = append(eventIDs, id)
		}
	}
	if len(eventIDs) == 0 {
		return []models.Event{}, nil
	}

	q := gateway.NewQuery("events", query.EventColumns).
		In("id", eventIDs).
		OrderBy("date", false).
		OrderBy("time", false)
	rows, err := r.gw.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarked events: %w", err)
	}
	events, err := decodeEvents(rows)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].IsBookmarked = true
	}
	return events, nil
}

func (r *Repository) FetchUserCreatedEvents(ctx context.Context, userID string) ([]models.Event, error) {
	q := gateway.NewQuery("events", query.EventColumns).
		Eq("organizer_id", userID).
		OrderBy("date", false).
		OrderBy("time", false)
	rows, err := r.gw.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load user created events: %w", err)
	}
	return decodeEvents(rows)
}

func (r *Repository) FetchCategories(ctx context.Context) ([]models.Category, error) {
	q := gateway.NewQuery("categories", "id,name,parent_id").OrderBy("name", false)
	rows, err := r.gw.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return decodeRows[models.Category](rows)
}

type CreateEventInput struct {
	OrganizerID string   `json:"organizer_id" validate:"required"`
	Title       string   `json:"title" validate:"required,max=120"`
	Description string   `json:"description" validate:"required"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	EndDate     string   `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time        string   `json:"time" validate:"required"`
	Location    string   `json:"location" validate:"required"`
	City        string   `json:"city" validate:"required"`
	Price       float64  `json:"event_price" validate:"gte=0"`
	ImageURL    string   `json:"image_url,omitempty" validate:"omitempty,url"`
	CategoryIDs []string `json:"category_ids" validate:"required,min=1"`
	Latitude    *float64 `json:"latitude" validate:"required"`
	Longitude   *float64 `json:"longitude" validate:"required"`
}

// CreateEvent validates and inserts a new event owned by the organizer.
func (r *Repository) CreateEvent(ctx context.Context, input CreateEventInput) error {
	if err := r.validator.Struct(input); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if input.EndDate != "" && input.EndDate < input.Date {
		return fmt.Errorf("invalid event: end date is before start date")
	}
	row, err := toRow(input)
	if err != nil {
		return err
	}
	if err := r.gw.Insert(ctx, "events", []gateway.Row{row}); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *Repository) AddBookmark(ctx context.Context, userID, eventID string) error {
	row := gateway.Row{"user_id": userID, "event_id": eventID}
	if err := r.gw.Insert(ctx, "user_bookmarks", []gateway.Row{row}); err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	return nil
}

func (r *Repository) RemoveBookmark(ctx context.Context, userID, eventID string) error {
	conds := []gateway.Cond{
		{Column: "user_id", Op: gateway.OpEq, Value: userID},
		{Column: "event_id", Op: gateway.OpEq, Value: eventID},
	}
	if err := r.gw.Delete(ctx, "user_bookmarks", conds); err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	return nil
}

// ListComments returns the full comment thread for an event, newest first.
func (r *Repository) ListComments(ctx context.Context, eventID string) ([]models.Comment, error) {
	q := gateway.NewQuery("comments", CommentColumns).
		Eq("event_id", eventID).
		OrderBy("created_at", true)
	rows, err := r.gw.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	return decodeRows[models.Comment](rows)
}

// FetchCommentByID loads one comment with its joined author fields; the
// realtime insert notification alone does not carry them.
func (r *Repository) FetchCommentByID(ctx context.Context, commentID string) (models.Comment, error) {
	q := gateway.NewQuery("comments", CommentColumns).Eq("id", commentID).One()
	rows, err := r.gw.Select(ctx, q)
	if err != nil {
		return models.Comment{}, fmt.Errorf("failed to load comment: %w", err)
	}
	comments, err := decodeRows[models.Comment](rows)
	if err != nil {
		return models.Comment{}, err
	}
	return comments[0], nil
}

func (r *Repository) FetchLikedCommentIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.gw.Select(ctx, gateway.NewQuery("comment_likes", "comment_id").Eq("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load liked comments: %w", err)
	}
	liked := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if id := row.String("comment_id"); id != "" {
			liked[id] = struct{}{}
		}
	}
	return liked, nil
}

type AddCommentInput struct {
	EventID         string `json:"event_id" validate:"required"`
	UserID          string `json:"user_id" validate:"required"`
	Content         string `json:"content" validate:"required"`
	ParentCommentID string `json:"parent_comment_id,omitempty"`
}

func (r *Repository) AddComment(ctx context.Context, input AddCommentInput) error {
	if err := r.validator.Struct(input); err != nil {
		return fmt.Errorf("invalid comment: %w", err)
	}
	row, err := toRow(input)
	if err != nil {
		return err
	}
	if err := r.gw.Insert(ctx, "comments", []gateway.Row{row}); err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	return nil
}

// LikeComment inserts the like row. Duplicate-key rejections pass through
// unwrapped so callers can detect them with gateway.IsConflict.
func (r *Repository) LikeComment(ctx context.Context, userID, commentID string) error {
	row := gateway.Row{"comment_id": commentID, "user_id": userID}
	return r.gw.Insert(ctx, "comment_likes", []gateway.Row{row})
}

func (r *Repository) UnlikeComment(ctx context.Context, userID, commentID string) error {
	conds := []gateway.Cond{
		{Column: "comment_id", Op: gateway.OpEq, Value: commentID},
		{Column: "user_id", Op: gateway.OpEq, Value: userID},
	}
	if err := r.gw.Delete(ctx, "comment_likes", conds); err != nil {
		return fmt.Errorf("failed to unlike comment: %w", err)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	q := gateway.NewQuery("profiles", "id,email,username,avatar_url").Eq("id", userID).One()
	rows, err := r.gw.Select(ctx, q)
	if err != nil {
		return models.Profile{}, err
	}
	profiles, err := decodeRows[models.Profile](rows)
	if err != nil {
		return models.Profile{}, err
	}
	return profiles[0], nil
}

func (r *Repository) CreateProfile(ctx context.Context, profile models.Profile) error {
	row, err := toRow(profile)
	if err != nil {
		return err
	}
	if err := r.gw.Insert(ctx, "profiles", []gateway.Row{row}); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *Repository) UpdateProfileAvatar(ctx context.Context, userID, avatarURL string) error {
	patch := gateway.Row{"avatar_url": avatarURL}
	conds := []gateway.Cond{{Column: "id", Op: gateway.OpEq, Value: userID}}
	if err := r.gw.Update(ctx, "profiles", patch, conds); err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

func decodeEvents(rows []gateway.Row) ([]models.Event, error) {
	records, err := decodeRows[eventRecord](rows)
	if err != nil {
		return nil, err
	}
	events := make([]models.Event, 0, len(records))
	for _, record := range records {
		event := record.Event
		if len(record.Comments) > 0 {
			event.CommentsCount = record.Comments[0].Count
		}
		events = append(events, event)
	}
	return events, nil
}

// decodeRows maps raw gateway rows onto a model type through its JSON tags.
func decodeRows[T any](rows []gateway.Row) ([]T, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return out, nil
}

func toRow(value any) (gateway.Row, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var row gateway.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return row, nil
}
