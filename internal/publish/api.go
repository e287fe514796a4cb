package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hbomb79/mediabatch/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

var ErrNoUploadOpen = errors.New("no upload has been opened")

type (
	// APISession publishes through the platforms data API rather than its
	// web UI. The steps before Confirm only collect the upload; Confirm
	// inserts the video and then applies the thumbnail and playlist.
	APISession struct {
		service    *youtube.Service
		categoryID string
		pending    *pendingUpload
	}

	pendingUpload struct {
		path      string
		metadata  Metadata
		playlist  string
		thumbnail string
		privacy   string
		publishAt string
	}
)

var _ RemoteUploadSession = (*APISession)(nil)

// NewAPISession authenticates using the configured refresh token.
func NewAPISession(ctx context.Context, config Config, opts ...option.ClientOption) (*APISession, error) {
	if len(opts) == 0 {
		if config.ClientID == "" || config.ClientSecret == "" || config.RefreshToken == "" {
			return nil, errors.New("api driver requires youtube_client_id, youtube_client_secret and youtube_refresh_token")
		}

		oauth := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
		}
		source := oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: config.RefreshToken, Expiry: time.Now().Add(-time.Hour)})
		opts = append(opts, option.WithTokenSource(source))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	return &APISession{service: service, categoryID: config.CategoryID}, nil
}

func (session *APISession) OpenUpload(context.Context) error {
	session.pending = &pendingUpload{privacy: string(PRIVATE)}
	return nil
}

func (session *APISession) SelectFile(_ context.Context, path string) error {
	if session.pending == nil {
		return ErrNoUploadOpen
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}

	session.pending.path = path
	return nil
}

// AwaitProcessing has nothing to wait for; the platform processes the
// upload after it has been inserted.
func (session *APISession) AwaitProcessing(context.Context) error {
	if session.pending == nil {
		return ErrNoUploadOpen
	}

	return nil
}

func (session *APISession) SetMetadata(_ context.Context, metadata Metadata) error {
	if session.pending == nil {
		return ErrNoUploadOpen
	}

	session.pending.metadata = metadata
	return nil
}

func (session *APISession) SelectPlaylist(_ context.Context, name string) error {
	if session.pending == nil {
		return ErrNoUploadOpen
	}

	session.pending.playlist = name
	return nil
}

func (session *APISession) SetThumbnail(_ context.Context, path string) error {
	if session.pending == nil {
		return ErrNoUploadOpen
	}

	session.pending.thumbnail = path
	return nil
}

func (session *APISession) AdvanceWizard(context.Context) error {
	if session.pending == nil {
		return ErrNoUploadOpen
	}

	return nil
}

func (session *APISession) SetVisibility(_ context.Context, visibility Visibility) error {
	if session.pending == nil {
		return ErrNoUploadOpen
	}

	session.pending.privacy = string(visibility)
	session.pending.publishAt = ""
	return nil
}

// SetSchedule publishes the video at the given time. Scheduled videos must
// be private until then.
func (session *APISession) SetSchedule(_ context.Context, at time.Time) error {
	if session.pending == nil {
		return ErrNoUploadOpen
	}

	session.pending.privacy = string(PRIVATE)
	session.pending.publishAt = at.UTC().Format(time.RFC3339)
	return nil
}

func (session *APISession) Confirm(ctx context.Context) error {
	pending := session.pending
	if pending == nil || pending.path == "" {
		return ErrNoUploadOpen
	}
	session.pending = nil

	f, err := os.Open(pending.path)
	if err != nil {
		return err
	}
	defer f.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       pending.metadata.Title,
			Description: pending.metadata.Description,
			Tags:        pending.metadata.Tags,
			CategoryId:  session.categoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           pending.privacy,
			PublishAt:               pending.publishAt,
			SelfDeclaredMadeForKids: pending.metadata.MadeForKids,
		},
	}

	inserted, err := session.service.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	log.Emit(logger.DEBUG, "Inserted video %s\n", inserted.Id)

	// The video exists from this point, failures are reported but do not
	// fail the upload.
	if pending.thumbnail != "" {
		if err := session.setThumbnail(ctx, inserted.Id, pending.thumbnail); err != nil {
			log.Emit(logger.WARNING, "Failed to set thumbnail for %s: %v\n", inserted.Id, err)
		}
	}
	if pending.playlist != "" {
		if err := session.addToPlaylist(ctx, inserted.Id, pending.playlist); err != nil {
			log.Emit(logger.WARNING, "Failed to add %s to playlist %q: %v\n", inserted.Id, pending.playlist, err)
		}
	}

	return nil
}

func (session *APISession) setThumbnail(ctx context.Context, videoID string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = session.service.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
	return err
}

func (session *APISession) addToPlaylist(ctx context.Context, videoID string, name string) error {
	playlists, err := session.service.Playlists.List([]string{"snippet"}).Mine(true).MaxResults(50).Context(ctx).Do()
	if err != nil {
		return err
	}

	for _, p := range playlists.Items {
		if p.Snippet == nil || p.Snippet.Title != name {
			continue
		}

		_, err := session.service.PlaylistItems.Insert([]string{"snippet"}, &youtube.PlaylistItem{
			Snippet: &youtube.PlaylistItemSnippet{
				PlaylistId: p.Id,
				ResourceId: &youtube.ResourceId{Kind: "youtube#video", VideoId: videoID},
			},
		}).Context(ctx).Do()
		return err
	}

	return fmt.Errorf("no playlist named %q", name)
}
