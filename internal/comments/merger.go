// Package comments maintains the live comment thread for one event: an
// initial snapshot fetch merged with the event's realtime comment feed and
// the user's own like feed, newest first.
package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"citymeet/mobile/internal/gateway"
	"citymeet/mobile/internal/models"
	"citymeet/mobile/internal/optimistic"
	"citymeet/mobile/internal/rate"
	"citymeet/mobile/internal/repository"
	"citymeet/mobile/internal/session"
)

var (
	ErrEmptyComment    = errors.New("comment cannot be empty")
	ErrNotSignedIn     = errors.New("you must be logged in to do that")
	ErrPostRateLimited = errors.New("too many comments, slow down")
)

const feedBuffer = 32

// Merger owns the in-memory thread state for one event. Start opens the
// feeds, Stop releases them; in between a single goroutine applies every
// change notification in arrival order.
type Merger struct {
	eventID     string
	repo        *repository.Repository
	gw          gateway.Client
	boot        *session.Bootstrap
	logger      *slog.Logger
	postLimiter *rate.WindowLimiter

	mu       sync.Mutex
	userID   string
	comments []models.Comment
	liked    map[string]struct{}
	replyTo  *models.Comment
	onAppend func(models.Comment)

	cancel      context.CancelFunc
	commentsSub gateway.Subscription
	likesSub    gateway.Subscription
	done        chan struct{}
	started     bool
}

func NewMerger(eventID string, repo *repository.Repository, gw gateway.Client, boot *session.Bootstrap, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		eventID:     eventID,
		repo:        repo,
		gw:          gw,
		boot:        boot,
		logger:      logger,
		postLimiter: rate.NewWindowLimiter(10, time.Minute),
		liked:       make(map[string]struct{}),
		done:        make(chan struct{}),
	}
}

// OnAppend registers a hook invoked whenever a new comment lands at the top
// of the thread (the auto-scroll trigger). Must be set before Start.
func (m *Merger) OnAppend(fn func(models.Comment)) {
	m.mu.Lock()
	m.onAppend = fn
	m.mu.Unlock()
}

// Start runs the screen's startup sequence: resolve the user (anonymous on
// any provisioning failure), fetch the thread, fetch the user's liked set,
// then open both realtime feeds and begin merging.
func (m *Merger) Start(ctx context.Context) error {
	if m.eventID == "" {
		return fmt.Errorf("event id is missing")
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("merger already started")
	}
	m.started = true
	m.mu.Unlock()

	userID := m.boot.Start(ctx)

	thread, err := m.repo.ListComments(ctx, m.eventID)
	if err != nil {
		return err
	}

	liked := make(map[string]struct{})
	if userID != "" {
		liked, err = m.repo.FetchLikedCommentIDs(ctx, userID)
		if err != nil {
			m.logger.Warn("action", "action", "comments_start", "status", "likes_fetch_failed", "error", err)
			liked = make(map[string]struct{})
		}
	}

	commentsSub, err := m.gw.Subscribe(ctx, "comments", "event_id=eq."+m.eventID, feedBuffer)
	if err != nil {
		return fmt.Errorf("failed to watch comments: %w", err)
	}
	var likesSub gateway.Subscription
	if userID != "" {
		likesSub, err = m.gw.Subscribe(ctx, "comment_likes", "user_id=eq."+userID, feedBuffer)
		if err != nil {
			commentsSub.Close()
			return fmt.Errorf("failed to watch likes: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.userID = userID
	m.comments = thread
	m.liked = liked
	m.commentsSub = commentsSub
	m.likesSub = likesSub
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop releases both feeds and waits for the merge loop to exit.
func (m *Merger) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	commentsSub := m.commentsSub
	likesSub := m.likesSub
	m.mu.Unlock()
	if cancel == nil {
		// Never fully started; there is no loop to wait for.
		return
	}
	cancel()
	if commentsSub != nil {
		commentsSub.Close()
	}
	if likesSub != nil {
		likesSub.Close()
	}
	<-m.done
}

func (m *Merger) run(ctx context.Context) {
	defer close(m.done)
	commentsCh := m.commentsSub.Changes()
	var likesCh <-chan gateway.Change
	if m.likesSub != nil {
		likesCh = m.likesSub.Changes()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-commentsCh:
			if !ok {
				commentsCh = nil
				if likesCh == nil {
					return
				}
				continue
			}
			m.applyCommentChange(ctx, change)
		case change, ok := <-likesCh:
			if !ok {
				likesCh = nil
				if commentsCh == nil {
					return
				}
				continue
			}
			m.applyLikeChange(change)
		}
	}
}

// applyCommentChange is the reducer for the event's comment feed.
func (m *Merger) applyCommentChange(ctx context.Context, change gateway.Change) {
	switch change.Kind {
	case gateway.ChangeInsert:
		id := change.Row.ID()
		if id == "" {
			return
		}
		// The bare notification lacks the joined author fields.
		full, err := m.repo.FetchCommentByID(ctx, id)
		if err != nil {
			m.logger.Warn("action", "action", "comments_merge", "status", "insert_fetch_failed", "comment_id", id, "error", err)
			return
		}
		m.mu.Lock()
		if m.indexOfLocked(id) >= 0 {
			// Already merged: duplicate delivery, or the bulk fetch won
			// the race.
			m.mu.Unlock()
			return
		}
		m.comments = append([]models.Comment{full}, m.comments...)
		hook := m.onAppend
		m.mu.Unlock()
		if hook != nil {
			hook(full)
		}
	case gateway.ChangeUpdate:
		id := change.Row.ID()
		m.mu.Lock()
		if i := m.indexOfLocked(id); i >= 0 {
			m.comments[i].Content = change.Row.String("content")
			m.comments[i].LikesCount = intField(change.Row, "likes_count")
		}
		m.mu.Unlock()
	case gateway.ChangeDelete:
		id := change.Old.ID()
		if id == "" {
			id = change.Row.ID()
		}
		m.mu.Lock()
		if i := m.indexOfLocked(id); i >= 0 {
			m.comments = append(m.comments[:i], m.comments[i+1:]...)
		}
		m.mu.Unlock()
	}
}

// applyLikeChange is the reducer for the user's own like feed.
func (m *Merger) applyLikeChange(change gateway.Change) {
	switch change.Kind {
	case gateway.ChangeInsert:
		if id := change.Row.String("comment_id"); id != "" {
			m.mu.Lock()
			m.liked[id] = struct{}{}
			m.mu.Unlock()
		}
	case gateway.ChangeDelete:
		id := change.Old.String("comment_id")
		if id == "" {
			id = change.Row.String("comment_id")
		}
		m.mu.Lock()
		delete(m.liked, id)
		m.mu.Unlock()
	}
}

// Post validates and submits a new comment. The thread is not touched
// locally; the comment appears when the realtime feed delivers it.
func (m *Merger) Post(ctx context.Context, content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyComment
	}

	m.mu.Lock()
	userID := m.userID
	parentID := ""
	if m.replyTo != nil {
		parentID = m.replyTo.ID
	}
	m.mu.Unlock()

	if userID == "" {
		return ErrNotSignedIn
	}
	if !m.postLimiter.Allow(userID) {
		return ErrPostRateLimited
	}

	err := m.repo.AddComment(ctx, repository.AddCommentInput{
		EventID:         m.eventID,
		UserID:          userID,
		Content:         trimmed,
		ParentCommentID: parentID,
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.replyTo = nil
	m.mu.Unlock()
	return nil
}

// ToggleLike optimistically flips the user's like on a comment and adjusts
// its displayed count, then issues the remote mutation. Failure restores
// both; a duplicate-insert conflict is a benign no-op and keeps the
// optimistic state.
func (m *Merger) ToggleLike(ctx context.Context, commentID string) error {
	m.mu.Lock()
	userID := m.userID
	_, liked := m.liked[commentID]
	m.mu.Unlock()
	if userID == "" {
		return ErrNotSignedIn
	}

	var applied int
	change := optimistic.Change{
		Apply: func() {
			m.mu.Lock()
			if liked {
				delete(m.liked, commentID)
				applied = m.adjustLikesLocked(commentID, -1)
			} else {
				m.liked[commentID] = struct{}{}
				applied = m.adjustLikesLocked(commentID, +1)
			}
			m.mu.Unlock()
		},
		Revert: func() {
			m.mu.Lock()
			if liked {
				m.liked[commentID] = struct{}{}
			} else {
				delete(m.liked, commentID)
			}
			m.adjustLikesLocked(commentID, -applied)
			m.mu.Unlock()
		},
	}
	return optimistic.Run(ctx, change, func(ctx context.Context) error {
		if liked {
			return m.repo.UnlikeComment(ctx, userID, commentID)
		}
		err := m.repo.LikeComment(ctx, userID, commentID)
		if gateway.IsConflict(err) {
			// Already liked on the backend; the optimistic state stands.
			return nil
		}
		return err
	})
}

// SetReplyTo marks the comment the next post replies to.
func (m *Merger) SetReplyTo(comment models.Comment) {
	m.mu.Lock()
	copied := comment
	m.replyTo = &copied
	m.mu.Unlock()
}

func (m *Merger) ClearReplyTo() {
	m.mu.Lock()
	m.replyTo = nil
	m.mu.Unlock()
}

func (m *Merger) ReplyTo() (models.Comment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replyTo == nil {
		return models.Comment{}, false
	}
	return *m.replyTo, true
}

// Comments returns the thread snapshot, newest first.
func (m *Merger) Comments() []models.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Comment(nil), m.comments...)
}

func (m *Merger) IsLiked(commentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.liked[commentID]
	return ok
}

// UserID returns the resolved viewer id; empty means anonymous read-only.
func (m *Merger) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// RepliedTo resolves the parent of a reply within the loaded thread. When
// the parent is not in the loaded window there is no annotation.
func (m *Merger) RepliedTo(comment models.Comment) (models.Comment, bool) {
	if comment.ParentCommentID == "" {
		return models.Comment{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexOfLocked(comment.ParentCommentID); i >= 0 {
		return m.comments[i], true
	}
	return models.Comment{}, false
}

func (m *Merger) indexOfLocked(commentID string) int {
	for i := range m.comments {
		if m.comments[i].ID == commentID {
			return i
		}
	}
	return -1
}

// adjustLikesLocked clamps the count at zero and reports the delta it
// actually applied, so a revert can undo exactly that much.
func (m *Merger) adjustLikesLocked(commentID string, delta int) int {
	if i := m.indexOfLocked(commentID); i >= 0 {
		next := m.comments[i].LikesCount + delta
		if next < 0 {
			next = 0
		}
		applied := next - m.comments[i].LikesCount
		m.comments[i].LikesCount = next
		return applied
	}
	return 0
}

func intField(row gateway.Row, column string) int {
	switch v := row[column].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
