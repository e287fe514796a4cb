package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

// BrowserSession drives the studio web UI of the hosting platform through a
// Chrome instance. The browser profile must already be signed in.
type BrowserSession struct {
	config        Config
	browser       context.Context
	cancelBrowser context.CancelFunc
}

var _ RemoteUploadSession = (*BrowserSession)(nil)

// NewBrowserSession launches the browser. The session lives until Close is
// called or ctx is cancelled.
func NewBrowserSession(ctx context.Context, config Config) (*BrowserSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if config.BrowserProfile != "" {
		opts = append(opts, chromedp.UserDataDir(config.BrowserProfile))
	}
	if config.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(config.BrowserPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		log.Emit(logger.VERBOSE, format+"\n", args...)
	}))

	if err := chromedp.Run(browserCtx, chromedp.Navigate(config.StudioURL)); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to open studio: %w", err)
	}

	return &BrowserSession{
		config:  config,
		browser: browserCtx,
		cancelBrowser: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}, nil
}

func (session *BrowserSession) Close() {
	session.cancelBrowser()
}

// run performs the actions against the browser, bounded by the deadline and
// cancellation of ctx.
func (session *BrowserSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(session.browser)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// OpenUpload reloads the studio so that any dialog left open by an
// abandoned upload is discarded, then opens the upload dialog.
func (session *BrowserSession) OpenUpload(ctx context.Context) error {
	return session.run(ctx,
		chromedp.Navigate(session.config.StudioURL),
		chromedp.WaitVisible(uploadIconSelector, chromedp.ByQuery),
		chromedp.Click(uploadIconSelector, chromedp.ByQuery),
		chromedp.WaitReady(fileInputSelector, chromedp.ByQuery),
	)
}

func (session *BrowserSession) SelectFile(ctx context.Context, path string) error {
	return session.run(ctx, chromedp.SetUploadFiles(fileInputSelector, []string{path}, chromedp.ByQuery))
}

func (session *BrowserSession) AwaitProcessing(ctx context.Context) error {
	return session.run(ctx,
		chromedp.WaitVisible(titleTextboxSelector, chromedp.ByQuery),
		chromedp.WaitNotPresent(uploadProgressSelector, chromedp.ByQuery),
	)
}

func (session *BrowserSession) SetMetadata(ctx context.Context, metadata Metadata) error {
	kids := notForKidsSelector
	if metadata.MadeForKids {
		kids = forKidsSelector
	}

	actions := []chromedp.Action{
		replaceText(titleTextboxSelector, metadata.Title),
		replaceText(descTextboxSelector, metadata.Description),
		chromedp.Click(kids, chromedp.ByQuery),
	}
	if len(metadata.Tags) > 0 {
		actions = append(actions,
			chromedp.Click(showMoreSelector, chromedp.ByQuery),
			chromedp.WaitVisible(tagsInputSelector, chromedp.ByQuery),
			chromedp.SendKeys(tagsInputSelector, strings.Join(metadata.Tags, ",")+",", chromedp.ByQuery),
		)
	}

	return session.run(ctx, actions...)
}

func (session *BrowserSession) SelectPlaylist(ctx context.Context, name string) error {
	item := fmt.Sprintf(playlistItemXPath, name)
	return session.run(ctx,
		chromedp.Click(playlistTriggerSelector, chromedp.ByQuery),
		chromedp.Click(item, chromedp.BySearch),
		chromedp.Click(playlistDoneSelector, chromedp.ByQuery),
	)
}

func (session *BrowserSession) SetThumbnail(ctx context.Context, path string) error {
	return session.run(ctx,
		chromedp.WaitReady(thumbnailInputSelector, chromedp.ByQuery),
		chromedp.SetUploadFiles(thumbnailInputSelector, []string{path}, chromedp.ByQuery),
	)
}

func (session *BrowserSession) AdvanceWizard(ctx context.Context) error {
	return session.run(ctx,
		chromedp.WaitEnabled(nextButtonSelector, chromedp.ByQuery),
		chromedp.Click(nextButtonSelector, chromedp.ByQuery),
	)
}

func (session *BrowserSession) SetVisibility(ctx context.Context, visibility Visibility) error {
	radio := fmt.Sprintf(visibilityRadioFormat, strings.ToUpper(string(visibility)))
	return session.run(ctx, chromedp.Click(radio, chromedp.ByQuery))
}

func (session *BrowserSession) SetSchedule(ctx context.Context, at time.Time) error {
	return session.run(ctx,
		chromedp.Click(scheduleExpandSelector, chromedp.ByQuery),
		chromedp.Click(datePickerSelector, chromedp.ByQuery),
		chromedp.WaitVisible(dateInputSelector, chromedp.ByQuery),
		chromedp.SetValue(dateInputSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(dateInputSelector, at.Format(scheduleDateLayout)+kb.Enter, chromedp.ByQuery),
		chromedp.SetValue(timeInputSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(timeInputSelector, at.Format(scheduleTimeLayout)+kb.Enter, chromedp.ByQuery),
	)
}

func (session *BrowserSession) Confirm(ctx context.Context) error {
	return session.run(ctx,
		chromedp.WaitEnabled(doneButtonSelector, chromedp.ByQuery),
		chromedp.Click(doneButtonSelector, chromedp.ByQuery),
		chromedp.WaitVisible(closeButtonSelector, chromedp.ByQuery),
		chromedp.Click(closeButtonSelector, chromedp.ByQuery),
	)
}

// replaceText clears a contenteditable textbox before typing in to it.
func replaceText(selector string, text string) chromedp.Action {
	script := fmt.Sprintf(`document.querySelector(%q).textContent = ""`, selector)
	return chromedp.Tasks{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(script, nil),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	}
}
