package server

import (
	"time"

	"github.com/hubenschmidt/postsearch/monitor"
	"github.com/hubenschmidt/postsearch/server/store"
)

const defaultSearchLimit = 20

type ErrorOut struct {
	Detail string `json:"detail"`
}

type PostOut struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type PostDetailOut struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	HasEmbedding     bool      `json:"has_embedding"`
	EmbeddingModel   *string   `json:"embedding_model"`
	EmbeddingVersion *int      `json:"embedding_version"`
	CreatedAt        time.Time `json:"created_at"`
}

// SearchRequest is the JSON body of /api/search. Limit defaults to 20.
type SearchRequest struct {
	Q     string `json:"q"`
	Limit *int   `json:"limit"`
}

func (r SearchRequest) limit() int {
	if r.Limit == nil {
		return defaultSearchLimit
	}
	return *r.Limit
}

type SearchOut struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type SearchDebugOut struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	Distance float64 `json:"distance"`
}

type QueryDebugOut struct {
	Len   int       `json:"len"`
	Head  []float32 `json:"head"`
	Model string    `json:"model"`
	Dim   int       `json:"dim"`
}

type StatsOut struct {
	store.Stats
	Model     string `json:"model"`
	Dimension int    `json:"dim"`
}

type MetricsOut struct {
	Tasks   monitor.TaskSummary `json:"tasks"`
	Pending int                 `json:"pending"`
}

func toPostDetail(p store.Post) PostDetailOut {
	out := PostDetailOut{
		ID:           p.ID,
		Title:        p.Title,
		Body:         p.Body,
		HasEmbedding: p.HasEmbedding(),
		CreatedAt:    p.CreatedAt,
	}
	if p.HasEmbedding() {
		model, version := p.EmbeddingModel, p.EmbeddingVersion
		out.EmbeddingModel = &model
		out.EmbeddingVersion = &version
	}
	return out
}

func toSearchOut(ns []store.Neighbor) []SearchOut {
	out := make([]SearchOut, len(ns))
	for i, n := range ns {
		out[i] = SearchOut{ID: n.ID, Title: n.Title, Body: n.Body}
	}
	return out
}

func toSearchDebugOut(ns []store.Neighbor) []SearchDebugOut {
	out := make([]SearchDebugOut, len(ns))
	for i, n := range ns {
		out[i] = SearchDebugOut{ID: n.ID, Title: n.Title, Body: n.Body, Distance: n.Distance}
	}
	return out
}
