package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	archiveMetadataTemplate = "%s/metadata/%s"
	archiveDownloadTemplate = "%s/download/%s/%s"
	archiveSearchTemplate   = "%s/advancedsearch.php?q=%s&fl[]=identifier&rows=%d&page=1&output=json"
)

// Media formats in order of preference when choosing which file of an
// archive item to treat as its media.
var archiveFormatPriority = []string{"h.264", "MPEG4", "512Kb MPEG4", "Ogg Video", "HiRes MPEG4"}

type (
	// stringList decodes fields which the archive returns either as a
	// single string or as a list of strings.
	stringList []string

	archiveMetadata struct {
		Metadata struct {
			Identifier  string     `json:"identifier"`
			Title       stringList `json:"title"`
			Description stringList `json:"description"`
			Subject     stringList `json:"subject"`
		} `json:"metadata"`
		Files []archiveFile `json:"files"`
	}

	archiveFile struct {
		Name   string `json:"name"`
		Format string `json:"format"`
		Size   string `json:"size"`
	}

	archiveSearch struct {
		Response struct {
			Docs []struct {
				Identifier string `json:"identifier"`
			} `json:"docs"`
		} `json:"response"`
	}

	// ArchiveSource fetches item metadata from the Internet Archive
	// metadata API.
	ArchiveSource struct {
		config Config
		http   *httpClient
	}
)

func NewArchiveSource(config Config) *ArchiveSource {
	return &ArchiveSource{config: config, http: newHTTPClient(config)}
}

// Fetch retrieves the metadata for the archive item identified by the reference,
// which may be a bare identifier or a details/download URL.
func (source *ArchiveSource) Fetch(ctx context.Context, reference string) (*Item, error) {
	identifier := ArchiveIdentifier(reference)
	if identifier == "" {
		return nil, &NotFoundError{reference}
	}

	meta, err := source.metadata(ctx, identifier)
	if err != nil {
		return nil, err
	}

	return &Item{
		Identifier:  identifier,
		Title:       strings.Join(meta.Metadata.Title, " "),
		Description: stripMarkup(strings.Join(meta.Metadata.Description, "\n")),
		Tags:        splitSubjects(meta.Metadata.Subject),
		MediaURL:    source.selectMediaURL(identifier, meta.Files),
	}, nil
}

// Collection lists the identifiers of the items in the named collection.
func (source *ArchiveSource) Collection(ctx context.Context, collection string) ([]string, error) {
	query := url.QueryEscape("collection:" + collection)
	var result archiveSearch
	if err := source.http.getJSON(ctx, fmt.Sprintf(archiveSearchTemplate, source.config.ArchiveBaseURL, query, source.config.SearchRows), &result); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(result.Response.Docs))
	for _, doc := range result.Response.Docs {
		if doc.Identifier != "" {
			ids = append(ids, doc.Identifier)
		}
	}

	return ids, nil
}

// SmallestMP4 returns the download URL of the smallest .mp4 file of the archive
// item, or NotFoundError if the item has none.
func (source *ArchiveSource) SmallestMP4(ctx context.Context, reference string) (string, error) {
	identifier := ArchiveIdentifier(reference)
	meta, err := source.metadata(ctx, identifier)
	if err != nil {
		return "", err
	}

	candidates := make([]archiveFile, 0)
	for _, f := range meta.Files {
		if strings.EqualFold(path.Ext(f.Name), ".mp4") {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return "", &NotFoundError{reference + " (mp4 file)"}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].size() < candidates[j].size() })
	return source.downloadURL(identifier, candidates[0].Name), nil
}

func (source *ArchiveSource) metadata(ctx context.Context, identifier string) (*archiveMetadata, error) {
	var meta archiveMetadata
	if err := source.http.getJSON(ctx, fmt.Sprintf(archiveMetadataTemplate, source.config.ArchiveBaseURL, url.PathEscape(identifier)), &meta); err != nil {
		return nil, err
	}

	// The metadata API answers unknown identifiers with an empty object
	if meta.Metadata.Identifier == "" && len(meta.Files) == 0 {
		return nil, &NotFoundError{identifier}
	}

	return &meta, nil
}

// selectMediaURL picks the preferred media file of the item. When no file has a
// recognised format, files whose name marks them as the '3mb' derivative are
// used instead. An empty string is returned if nothing suitable exists.
func (source *ArchiveSource) selectMediaURL(identifier string, files []archiveFile) string {
	for _, format := range archiveFormatPriority {
		for _, f := range files {
			if strings.EqualFold(f.Format, format) {
				return source.downloadURL(identifier, f.Name)
			}
		}
	}

	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Name), "3mb") {
			return source.downloadURL(identifier, f.Name)
		}
	}

	return ""
}

func (source *ArchiveSource) downloadURL(identifier string, name string) string {
	return fmt.Sprintf(archiveDownloadTemplate, source.config.ArchiveBaseURL, url.PathEscape(identifier), url.PathEscape(name))
}

// ArchiveIdentifier extracts the item identifier from an archive URL such
// as 'https://archive.org/details/{id}'. Bare identifiers are returned as-is.
func ArchiveIdentifier(reference string) string {
	reference = strings.TrimSpace(reference)
	u, err := url.Parse(reference)
	if err != nil || u.Host == "" {
		return strings.Trim(reference, "/")
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if (p == "details" || p == "download" || p == "metadata") && i+1 < len(parts) {
			return parts[i+1]
		}
	}

	return ""
}

func (f archiveFile) size() int64 {
	v, err := strconv.ParseInt(f.Size, 10, 64)
	if err != nil {
		return 1<<63 - 1
	}

	return v
}

func (list *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*list = stringList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}

	*list = many
	return nil
}

// splitSubjects flattens archive subjects, which are sometimes a single
// ';' or ',' separated string.
func splitSubjects(subjects []string) []string {
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

// stripMarkup removes any HTML from archive descriptions, keeping line breaks.
func stripMarkup(description string) string {
	if !strings.ContainsAny(description, "<&") {
		return description
	}

	replacer := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(replacer.Replace(description)))
	if err != nil {
		return description
	}

	return strings.TrimSpace(doc.Text())
}
