package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/engine"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleCreatePost(c *gin.Context) {
	if err := s.parseUpload(c); err != nil {
		s.writeError(c, err)
		return
	}
	image, err := s.readImage(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	post, err := s.ingestor.SubmitPost(c.Request.Context(), c.PostForm("title"), c.PostForm("body"), image)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PostOut{ID: post.ID, Title: post.Title, Body: post.Body})
}

func (s *Server) handleGetPost(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, core.Wrapf(core.ErrInvalidInput, "invalid post id %q", c.Param("id")))
		return
	}

	post, err := s.store.GetPost(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPostDetail(post))
}

func (s *Server) handleSearch(c *gin.Context) {
	req, ok := s.bindSearch(c)
	if !ok {
		return
	}

	results, err := s.searcher.Search(c.Request.Context(), engine.SearchRequest{Text: req.Q, Limit: req.limit()})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSearchOut(results))
}

func (s *Server) handleSearchMultipart(c *gin.Context) {
	if err := s.parseUpload(c); err != nil {
		s.writeError(c, err)
		return
	}
	limit := defaultSearchLimit
	if raw := strings.TrimSpace(c.PostForm("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(c, core.Wrapf(core.ErrInvalidInput, "limit must be an integer"))
			return
		}
		limit = n
	}

	image, err := s.readImage(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	results, err := s.searcher.Search(c.Request.Context(), engine.SearchRequest{
		Text:  c.PostForm("q"),
		Image: image,
		Limit: limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSearchOut(results))
}

func (s *Server) handleSearchDebug(c *gin.Context) {
	req, ok := s.bindSearch(c)
	if !ok {
		return
	}

	results, err := s.searcher.Search(c.Request.Context(), engine.SearchRequest{Text: req.Q, Limit: req.limit()})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSearchDebugOut(results))
}

func (s *Server) handleQueryDebug(c *gin.Context) {
	req, ok := s.bindSearch(c)
	if !ok {
		return
	}

	vec, err := s.searcher.EmbedQuery(c.Request.Context(), req.Q, nil)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, QueryDebugOut{
		Len:   len(vec),
		Head:  vec[:min(6, len(vec))],
		Model: s.searcher.ModelID(),
		Dim:   s.searcher.Dimension(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	st, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsOut{Stats: st, Model: s.provider.ModelID(), Dimension: s.provider.Dimension()})
}

func (s *Server) handleListPosts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(c, core.Wrapf(core.ErrInvalidInput, "limit must be an integer"))
			return
		}
		limit = n
	}

	posts, err := s.store.ListPosts(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, MetricsOut{Tasks: s.collector.Flush(), Pending: s.exec.Pending()})
}

func (s *Server) bindSearch(c *gin.Context) (SearchRequest, bool) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, core.Wrapf(core.ErrInvalidInput, "invalid request body: %v", err))
		return req, false
	}
	return req, true
}

// uploadSlack covers the text fields and multipart framing around the image.
const uploadSlack = 64 << 10

// parseUpload caps the request body before the form is parsed, so an oversized
// upload is cut off while streaming instead of being buffered first.
func (s *Server) parseUpload(c *gin.Context) error {
	if s.opts.MaxImageBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxImageBytes+uploadSlack)
	}
	_, err := c.MultipartForm()
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return core.Wrapf(core.ErrInvalidInput, "request body over %d bytes", tooLarge.Limit)
	}
	return core.Wrapf(core.ErrInvalidInput, "parse form: %v", err)
}

// readImage returns the optional "image" upload, rejecting files over the cap
// before reading them.
func (s *Server) readImage(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, core.Wrapf(core.ErrInvalidInput, "read image: %v", err)
	}
	if s.opts.MaxImageBytes > 0 && fh.Size > s.opts.MaxImageBytes {
		return nil, core.Wrapf(core.ErrInvalidInput, "image too large")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, core.Wrapf(core.ErrInvalidInput, "open image: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, core.Wrapf(core.ErrInvalidInput, "read image: %v", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := core.HTTPStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.FullPath()).Error("unhandled error")
		detail = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorOut{Detail: detail})
}
