package rewrite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hbomb79/mediabatch/internal/fetch"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 5000

	titleTokens       = 20
	descriptionTokens = 500
)

var (
	log = logger.Get("RewriteServ")

	emailMatcher = regexp.MustCompile(`\S+@\S+`)
	phoneMatcher = regexp.MustCompile(`\b(?:\d{10}|\d{3}-\d{3}-\d{4})\b`)
)

type (
	completer interface {
		Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
	}

	recordStore interface {
		Get(int) (record.Record, bool)
		Update(int, func(*record.Record) error) error
	}

	Summary struct {
		Complete int
		Failed   int
	}

	// Service rewrites the title and description of records using a
	// text-generation service. When either cannot be generated the
	// original text is kept.
	Service struct {
		config Config
		client completer
	}
)

func New(config Config, client completer) *Service {
	return &Service{config: config, client: client}
}

// Title generates a new title from the original title and description. A
// year found in either is requested in the new title.
func (service *Service) Title(ctx context.Context, title string, description string) (string, error) {
	prompt := fmt.Sprintf("Generate a compelling, click-worthy title for a YouTube video based on the following title and description: Title: %s Description: %s", title, description)
	year := fetch.ExtractYear(description)
	if year == 0 {
		year = fetch.ExtractYear(title)
	}
	if year != 0 {
		prompt += fmt.Sprintf(" Include the year %d in the title.", year)
	}

	out, err := service.client.Complete(ctx, prompt, titleTokens, 0.8)
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}

	out = strings.Trim(out, "\"'“” ")
	if out == "" {
		return "", errors.New("generated title is empty")
	}

	return Truncate(out, MaxTitleLength), nil
}

// Description generates a new description. Contact details are removed
// from the original before it is sent, and the configured contact footer
// is appended to the result.
func (service *Service) Description(ctx context.Context, title string, description string) (string, error) {
	prompt := fmt.Sprintf("Write a new, engaging, and informative YouTube video description based on the following title and description, but do not include any email addresses, phone numbers, or other contact information: Title: %s Description: %s", title, RemoveContactInfo(description))

	out, err := service.client.Complete(ctx, prompt, descriptionTokens, 0.7)
	if err != nil {
		return "", fmt.Errorf("failed to generate description: %w", err)
	}
	if out == "" {
		return "", errors.New("generated description is empty")
	}

	out = Truncate(out, MaxDescriptionLength)
	if footer := strings.TrimSpace(service.config.ContactFooter); footer != "" {
		out = out + "\n\n" + footer
	}

	return out, nil
}

// RewriteAll rewrites the records of each label in order. Records whose title
// or description could not be rewritten keep their original text and are
// counted as failed; their status is left unchanged.
func (service *Service) RewriteAll(ctx context.Context, labels []int, store recordStore) Summary {
	summary := Summary{}
	for _, l := range labels {
		if ctx.Err() != nil {
			break
		}

		if err := service.Rewrite(ctx, l, store); err != nil {
			summary.Failed++
		} else {
			summary.Complete++
		}
	}

	return summary
}

func (service *Service) Rewrite(ctx context.Context, label int, store recordStore) error {
	itemLog := logger.WithLabel(log, label)
	rec, ok := store.Get(label)
	if !ok {
		itemLog.Emit(logger.WARNING, "No record to rewrite\n")
		return record.ErrNotFound
	}

	var errs []error
	title, err := service.Title(ctx, rec.Title, rec.Description)
	if err != nil {
		itemLog.Emit(logger.ERROR, "%v, keeping original title\n", err)
		errs = append(errs, err)
		title = rec.Title
	}

	description, err := service.Description(ctx, rec.Title, rec.Description)
	if err != nil {
		itemLog.Emit(logger.ERROR, "%v, keeping original description\n", err)
		errs = append(errs, err)
		description = rec.Description
	}

	err = store.Update(label, func(r *record.Record) error {
		r.Title = title
		r.Description = description
		r.Tags = MergeTags(service.config.ExtraTags, r.Tags)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	if len(errs) == 0 {
		itemLog.Emit(logger.SUCCESS, "Rewritten as %q\n", title)
	}
	return errors.Join(errs...)
}

// Truncate shortens text longer than limit characters to limit-3 characters
// followed by an ellipsis.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit-3]) + "..."
}

// RemoveContactInfo strips email addresses and phone numbers from the text.
func RemoveContactInfo(text string) string {
	text = emailMatcher.ReplaceAllString(text, "")
	return phoneMatcher.ReplaceAllString(text, "")
}

// MergeTags returns the leading tags followed by the existing tags, with
// blanks and case-insensitive duplicates removed.
func MergeTags(leading []string, existing []string) []string {
	seen := make(map[string]bool, len(leading)+len(existing))
	out := make([]string, 0, len(leading)+len(existing))
	for _, tag := range append(append([]string{}, leading...), existing...) {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}

		seen[key] = true
		out = append(out, tag)
	}

	return out
}
