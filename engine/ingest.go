package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/embedding"
	"github.com/hubenschmidt/postsearch/monitor"
	"github.com/hubenschmidt/postsearch/sanitize"
	"github.com/hubenschmidt/postsearch/server/store"
)

// Ingestor persists posts synchronously and embeds them in the background.
type Ingestor struct {
	store    store.PostStore
	provider embedding.Provider
	exec     *Executor
	clean    sanitize.Normalizer
	opts     Options
	log      *logrus.Entry
}

func NewIngestor(st store.PostStore, provider embedding.Provider, exec *Executor, opts Options) *Ingestor {
	return &Ingestor{
		store:    st,
		provider: provider,
		exec:     exec,
		clean:    sanitize.New(opts.MaxTextRunes),
		opts:     opts,
		log:      logrus.WithField("component", "ingest"),
	}
}

// SubmitPost stores the post and schedules its embedding. The returned post
// never carries an embedding; failures after insertion are only logged.
func (in *Ingestor) SubmitPost(ctx context.Context, title, rawBody string, image []byte) (store.Post, error) {
	if strings.TrimSpace(title) == "" {
		return store.Post{}, core.Wrapf(core.ErrValidation, "title is required")
	}
	if in.opts.imageTooLarge(image) {
		return store.Post{}, core.Wrapf(core.ErrInvalidInput, "image too large")
	}

	post, err := in.store.CreatePost(ctx, title, in.clean.Clean(rawBody))
	if err != nil {
		return store.Post{}, err
	}

	var img []byte
	if len(image) > 0 {
		img = append([]byte(nil), image...)
	}

	taskID, err := in.exec.Enqueue(Task{
		PostID: post.ID,
		Run: func(ctx context.Context) error {
			return in.embedPost(ctx, post.ID, img)
		},
	})
	log := in.log.WithField("post_id", post.ID)
	if err != nil {
		log.WithError(err).Error("could not schedule embedding; post stays unembedded")
	} else {
		log.WithFields(logrus.Fields{"task_id": taskID, "has_image": img != nil}).Debug("embedding scheduled")
	}
	return post, nil
}

func (in *Ingestor) embedPost(ctx context.Context, id int64, image []byte) error {
	title, body, err := in.store.GetPostText(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		in.log.WithField("post_id", id).Debug("post vanished before embedding")
		return nil
	}
	if err != nil {
		return stageError(monitor.StageLoad, id, err)
	}

	text := strings.TrimSpace(title + " " + body)
	vec, err := in.provider.Embed(ctx, text, image, embedding.ModeDocument)
	if err != nil {
		return stageError(monitor.StageEmbed, id, err)
	}

	model := in.provider.ModelID()
	if err := in.store.SetEmbedding(ctx, id, vec, model, embedding.SchemaVersion); err != nil {
		return stageError(monitor.StageStore, id, err)
	}

	in.log.WithFields(logrus.Fields{"post_id": id, "model": model, "dim": len(vec)}).Info("embedding stored")
	return nil
}

func stageError(stage string, postID int64, err error) error {
	return core.WithContext(core.NewOpError(stage, err), "post_id", postID)
}
