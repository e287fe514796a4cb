package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"sort"
	"time"
)

type (
	// Detection is a region of an image believed to contain an object.
	Detection struct {
		Box        image.Rectangle
		Confidence float64
		Class      string
	}

	// Detector finds objects within an image.
	Detector interface {
		Detect(ctx context.Context, img image.Image) ([]Detection, error)
	}

	// HTTPDetector talks to an external object detection service, posting
	// frames as PNG and receiving the detected boxes as JSON.
	HTTPDetector struct {
		endpoint string
		apiKey   string
		http     *http.Client
	}

	detectResponse struct {
		Detections []struct {
			X          int     `json:"x"`
			Y          int     `json:"y"`
			Width      int     `json:"width"`
			Height     int     `json:"height"`
			Confidence float64 `json:"confidence"`
			Class      string  `json:"class"`
		} `json:"detections"`
	}
)

var _ Detector = (*HTTPDetector)(nil)

func NewHTTPDetector(endpoint string, apiKey string) *HTTPDetector {
	return &HTTPDetector{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Detect sends the image for detection.
func (c *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	var body bytes.Buffer
	if err := png.Encode(&body, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]Detection, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		out = append(out, Detection{
			Box:        image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height),
			Confidence: d.Confidence,
			Class:      d.Class,
		})
	}

	return out, nil
}

// SuppressOverlaps discards detections at or below the confidence threshold, then
// performs non-maximum suppression: detections are visited in descending
// confidence order, and any whose overlap (intersection over union) with an
// already kept detection exceeds the overlap threshold is discarded.
func SuppressOverlaps(detections []Detection, confidence float64, overlap float64) []Detection {
	candidates := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence > confidence && !d.Box.Empty() {
			candidates = append(candidates, d)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })

	kept := make([]Detection, 0, len(candidates))
	for _, c := range candidates {
		suppressed := false
		for _, k := range kept {
			if IoU(c.Box, k.Box) > overlap {
				suppressed = true
				break
			}
		}

		if !suppressed {
			kept = append(kept, c)
		}
	}

	return kept
}

// SelectRegion returns the highest confidence detection surviving SuppressOverlaps.
func SelectRegion(detections []Detection, confidence float64, overlap float64) (Detection, bool) {
	kept := SuppressOverlaps(detections, confidence, overlap)
	if len(kept) == 0 {
		return Detection{}, false
	}

	return kept[0], true
}

// IoU returns the intersection over union of the two rectangles.
func IoU(a image.Rectangle, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}

	area := func(r image.Rectangle) float64 { return float64(r.Dx() * r.Dy()) }
	union := area(a) + area(b) - area(inter)
	if union <= 0 {
		return 0
	}

	return area(inter) / union
}
