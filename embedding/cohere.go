package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hubenschmidt/postsearch/config"
	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/vector"
)

const defaultCohereBaseURL = "https://api.cohere.com/v2"

// CohereProvider calls the Cohere v2 embed endpoint with text and image content
// in a single input, so the service returns one joint vector.
type CohereProvider struct {
	apiKey    string
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	log       *logrus.Entry
}

func NewCohereProvider(cfg config.Cohere) *CohereProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultCohereBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CohereProvider{
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: timeout},
		log:       logrus.WithFields(logrus.Fields{"component": "embedding.cohere", "model": cfg.Model}),
	}
}

type cohereContent struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type cohereInput struct {
	Content []cohereContent `json:"content"`
}

type cohereRequest struct {
	Inputs          []cohereInput `json:"inputs"`
	Model           string        `json:"model"`
	InputType       string        `json:"input_type"`
	EmbeddingTypes  []string      `json:"embedding_types"`
	OutputDimension int           `json:"output_dimension,omitempty"`
}

type cohereResponse struct {
	ID         string `json:"id"`
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

func inputType(mode Mode) string {
	if mode == ModeQuery {
		return "search_query"
	}
	return "search_document"
}

func (p *CohereProvider) Embed(ctx context.Context, text string, image []byte, mode Mode) ([]float32, error) {
	if err := checkInput(text, image); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, core.Wrapf(core.ErrProviderAuth, "COHERE_API_KEY is not set")
	}

	content := make([]cohereContent, 0, 2)
	if strings.TrimSpace(text) != "" {
		content = append(content, cohereContent{Type: "text", Text: text})
	}
	if len(image) > 0 {
		uri, err := pngDataURI(image)
		if err != nil {
			return nil, err
		}
		content = append(content, cohereContent{Type: "image", Image: uri})
	}

	reqBody := cohereRequest{
		Inputs:          []cohereInput{{Content: content}},
		Model:           p.model,
		InputType:       inputType(mode),
		EmbeddingTypes:  []string{"float"},
		OutputDimension: p.dimension,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", core.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.Wrapf(core.ErrProviderAuth, "API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.Wrapf(core.ErrProviderUnavailable, "API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result cohereResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.Wrapf(core.ErrProviderUnavailable, "failed to decode response: %v", err)
	}
	if len(result.Embeddings.Float) == 0 || len(result.Embeddings.Float[0]) == 0 {
		return nil, core.Wrapf(core.ErrProviderUnavailable, "response carried no float embedding")
	}

	vec := result.Embeddings.Float[0]
	if p.dimension > 0 && len(vec) != p.dimension {
		return nil, core.Wrapf(core.ErrProviderUnavailable, "expected %d dimensions, got %d", p.dimension, len(vec))
	}

	normalized, err := vector.Normalize(vec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrProviderUnavailable, err)
	}

	p.log.WithFields(logrus.Fields{
		"input_type": reqBody.InputType,
		"dim":        len(normalized),
		"elapsed_ms": time.Since(start).Milliseconds(),
		"request_id": result.ID,
	}).Debug("embedded")

	return normalized, nil
}

func (p *CohereProvider) ModelID() string       { return p.model }
func (p *CohereProvider) Dimension() int        { return p.dimension }
func (p *CohereProvider) Metric() vector.Metric { return vector.Cosine }
