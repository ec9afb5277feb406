// Package extractor talks to the external face embedding server. Detection and
// embedding extraction happen there; this package only moves bytes and vectors.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

const (
	defaultURL     = "http://localhost:8000"
	defaultTimeout = constants.ExtractorTimeout
	faceEndpoint   = "/embed/face"
)

// Client computes face embeddings using the embedding server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Face is a single detected face.
type Face struct {
	FaceIndex int              `json:"face_index"`
	Dim       int              `json:"dim"`
	Embedding embedding.Vector `json:"embedding"`
	BBox      []float64        `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64          `json:"det_score"`
}

// FaceResponse is the body returned by the face endpoint.
type FaceResponse struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

// Embeddings returns the embedding of every detected face in server order.
func (r *FaceResponse) Embeddings() []embedding.Vector {
	out := make([]embedding.Vector, 0, len(r.Faces))
	for _, f := range r.Faces {
		out = append(out, f.Embedding)
	}
	return out
}

// DetectFaces posts the image to the face endpoint. An image without faces
// yields an empty response, not an error.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	body, err := c.postImage(ctx, faceEndpoint, imageData)
	if err != nil {
		return nil, err
	}

	var resp FaceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// FaceEmbeddings is DetectFaces reduced to the embedding vectors.
func (c *Client) FaceEmbeddings(ctx context.Context, imageData []byte) ([]embedding.Vector, error) {
	resp, err := c.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}
	return resp.Embeddings(), nil
}

func (c *Client) postImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="capture"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// DetectMIMEType sniffs the image type from magic bytes.
func DetectMIMEType(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 4 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
		return "image/png"
	case len(data) >= 4 && string(data[:4]) == "GIF8":
		return "image/gif"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
