package helpers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hbomb79/mediabatch/internal/publish"
)

type (
	SessionCall struct {
		Method string
		Arg    string
	}

	// FakeSession records every interaction made with it. Methods listed in
	// Fail return the error given, and methods listed in Block wait for their
	// context to end, for the number of calls given, before behaving normally.
	FakeSession struct {
		mutex sync.Mutex
		Calls []SessionCall
		Fail  map[string]error
		Block map[string]int
	}
)

var _ publish.RemoteUploadSession = (*FakeSession)(nil)

func (session *FakeSession) call(ctx context.Context, method string, arg string) error {
	session.mutex.Lock()
	session.Calls = append(session.Calls, SessionCall{Method: method, Arg: arg})
	block := session.Block[method] > 0
	if block {
		session.Block[method]--
	}
	err := session.Fail[method]
	session.mutex.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	return err
}

// Methods returns the name of each method called, in order.
func (session *FakeSession) Methods() []string {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	out := make([]string, len(session.Calls))
	for i, c := range session.Calls {
		out[i] = c.Method
	}

	return out
}

// Reset forgets the calls recorded so far.
func (session *FakeSession) Reset() {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.Calls = nil
}

func (session *FakeSession) OpenUpload(ctx context.Context) error {
	return session.call(ctx, "OpenUpload", "")
}

func (session *FakeSession) SelectFile(ctx context.Context, path string) error {
	return session.call(ctx, "SelectFile", path)
}

func (session *FakeSession) AwaitProcessing(ctx context.Context) error {
	return session.call(ctx, "AwaitProcessing", "")
}

func (session *FakeSession) SetMetadata(ctx context.Context, metadata publish.Metadata) error {
	return session.call(ctx, "SetMetadata", metadata.Title+"|"+strings.Join(metadata.Tags, ","))
}

func (session *FakeSession) SelectPlaylist(ctx context.Context, name string) error {
	return session.call(ctx, "SelectPlaylist", name)
}

func (session *FakeSession) SetThumbnail(ctx context.Context, path string) error {
	return session.call(ctx, "SetThumbnail", path)
}

func (session *FakeSession) AdvanceWizard(ctx context.Context) error {
	return session.call(ctx, "AdvanceWizard", "")
}

func (session *FakeSession) SetVisibility(ctx context.Context, visibility publish.Visibility) error {
	return session.call(ctx, "SetVisibility", string(visibility))
}

func (session *FakeSession) SetSchedule(ctx context.Context, at time.Time) error {
	return session.call(ctx, "SetSchedule", at.Format(time.RFC3339))
}

func (session *FakeSession) Confirm(ctx context.Context) error {
	return session.call(ctx, "Confirm", "")
}
