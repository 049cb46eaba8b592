package api

import (
	"github.com/rss-stash/rss-stash/app/database"
	"github.com/rss-stash/rss-stash/app/source"
)

type Handler struct {
	stateRepo   database.StateRepository
	configCache *source.ConfigCache
}
