// Package app wires the client together: gateway, repository, session
// bootstrap, bookmark store and the search controller, in the shape the
// screens consume them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"citymeet/mobile/internal/bookmarks"
	"citymeet/mobile/internal/comments"
	"citymeet/mobile/internal/config"
	"citymeet/mobile/internal/gateway"
	"citymeet/mobile/internal/models"
	"citymeet/mobile/internal/repository"
	"citymeet/mobile/internal/session"

	"github.com/google/uuid"
)

type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	gw       gateway.Client
	realtime *gateway.RealtimeClient
	storage  *gateway.StorageClient
	repo     *repository.Repository
	boot     *session.Bootstrap

	Bookmarks *bookmarks.Store
	Search    *SearchController

	mu         sync.Mutex
	userID     string
	categories []models.Category
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	realtime := gateway.NewRealtimeClient(cfg.Gateway, logger)
	gw := gateway.NewRestClient(cfg.Gateway, realtime, nil, logger)

	var storage *gateway.StorageClient
	if cfg.Storage.Endpoint != "" {
		var err error
		storage, err = gateway.NewStorageClient(cfg.Storage)
		if err != nil {
			return nil, err
		}
	}

	repo := repository.New(gw, logger)
	boot := session.NewBootstrap(gw, repo, logger)
	store := bookmarks.NewStore(repo, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		gw:        gw,
		realtime:  realtime,
		storage:   storage,
		repo:      repo,
		boot:      boot,
		Bookmarks: store,
		Search:    NewSearchController(ctx, repo, store, cfg.SearchDebounce, logger),
	}, nil
}

// Start resolves the session, scopes the bookmark store to the user, loads
// their bookmarks and the category list, then issues the initial event
// fetch. Everything after session resolution is best-effort: a failed
// bookmark or category load leaves an empty set and is retried on next
// screen focus.
func (a *App) Start(ctx context.Context) {
	userID := a.boot.Start(ctx)
	a.mu.Lock()
	a.userID = userID
	a.mu.Unlock()

	a.Bookmarks.SetUser(userID)
	if userID != "" {
		if err := a.Bookmarks.Load(ctx); err != nil {
			a.logger.Warn("action", "action", "app_start", "status", "bookmarks_load_failed", "error", err)
		}
	}
	if err := a.ReloadCategories(ctx); err != nil {
		a.logger.Warn("action", "action", "app_start", "status", "categories_load_failed", "error", err)
	}
	a.Search.Refresh()
}

// UserID returns the signed-in user id, or "" when anonymous.
func (a *App) UserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID
}

// Categories returns the session-cached category list.
func (a *App) Categories() []models.Category {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Category(nil), a.categories...)
}

func (a *App) ReloadCategories(ctx context.Context) error {
	fetched, err := a.repo.FetchCategories(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.categories = fetched
	a.mu.Unlock()
	return nil
}

// OpenEvent fetches the detail record and attaches it to the bookmark
// store, which reconciles its flag against the bookmarked set.
func (a *App) OpenEvent(ctx context.Context, eventID string) (models.Event, error) {
	event, err := a.repo.FetchEventByID(ctx, eventID)
	if err != nil {
		return models.Event{}, err
	}
	return a.Bookmarks.SetSelected(event), nil
}

func (a *App) CloseEvent() {
	a.Bookmarks.ClearSelected()
}

// OpenComments builds the live thread merger for one event. The caller
// owns its lifecycle: Start on screen entry, Stop on leave.
func (a *App) OpenComments(eventID string) *comments.Merger {
	return comments.NewMerger(eventID, a.repo, a.gw, a.boot, a.logger)
}

// CreateEvent uploads the image, when given, and inserts the event.
func (a *App) CreateEvent(ctx context.Context, input repository.CreateEventInput, image []byte, imageType string) error {
	if len(image) > 0 {
		if a.storage == nil {
			return fmt.Errorf("image upload is not configured")
		}
		objectPath := fmt.Sprintf("%s/%s%s", input.OrganizerID, uuid.NewString(), extensionFor(imageType))
		imageURL, err := a.storage.Upload(ctx, a.cfg.Storage.ImageBucket, objectPath, imageType, image)
		if err != nil {
			return err
		}
		input.ImageURL = imageURL
	}
	return a.repo.CreateEvent(ctx, input)
}

// UploadAvatar stores the image and points the user's profile at its
// public URL.
func (a *App) UploadAvatar(ctx context.Context, image []byte, imageType string) (string, error) {
	userID := a.UserID()
	if userID == "" {
		return "", fmt.Errorf("you must be logged in to upload an avatar")
	}
	if a.storage == nil {
		return "", fmt.Errorf("avatar upload is not configured")
	}
	objectPath := fmt.Sprintf("%s/%s%s", userID, uuid.NewString(), extensionFor(imageType))
	avatarURL, err := a.storage.Upload(ctx, a.cfg.Storage.AvatarBucket, objectPath, imageType, image)
	if err != nil {
		return "", err
	}
	if err := a.repo.UpdateProfileAvatar(ctx, userID, avatarURL); err != nil {
		return "", err
	}
	return avatarURL, nil
}

// MyEvents lists the events the signed-in user organizes.
func (a *App) MyEvents(ctx context.Context) ([]models.Event, error) {
	userID := a.UserID()
	if userID == "" {
		return []models.Event{}, nil
	}
	return a.repo.FetchUserCreatedEvents(ctx, userID)
}

// Close releases the debounce timer and the realtime connection.
func (a *App) Close() {
	a.Search.Close()
	a.realtime.Close()
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
