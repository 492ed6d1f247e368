package engine

import (
	"github.com/hubenschmidt/postsearch/config"
	"github.com/hubenschmidt/postsearch/vector"
)

// Options are the request limits and query tuning shared by the orchestrators.
type Options struct {
	MaxImageBytes int64
	MaxTextRunes  int
	Metric        vector.Metric
	Probes        int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxImageBytes: cfg.MaxImageBytes,
		MaxTextRunes:  cfg.MaxTextRunes,
		Metric:        cfg.Metric(),
		Probes:        cfg.Search.Probes,
	}
}

func (o Options) imageTooLarge(image []byte) bool {
	return o.MaxImageBytes > 0 && int64(len(image)) > o.MaxImageBytes
}
