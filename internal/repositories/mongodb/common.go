package mongodb

import (
	"errors"

	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// translate maps driver errors onto the repository sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repositories.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return repositories.ErrDuplicate
	}
	return err
}

// paginate applies 1-based page/limit to opts; non-positive values mean everything
func paginate(opts *options.FindOptions, page, limit int) *options.FindOptions {
	if page > 0 && limit > 0 {
		opts.SetSkip(int64((page - 1) * limit))
		opts.SetLimit(int64(limit))
	}
	return opts
}
