package di

import (
	"errors"

	repository "github.com/goliatone/go-repository-bun"
)

// NewRepository returns a go-repository-bun repository for T over the
// container's ORM. T is the model pointer type, e.g. *Actor. Every query the
// repository issues is prepared through the statement cache of the pooled
// connection it runs on.
func NewRepository[T any](c *Container, handlers repository.ModelHandlers[T]) (repository.Repository[T], error) {
	if handlers.NewRecord == nil {
		return nil, errors.New("repository handlers: NewRecord is required")
	}
	orm := c.ORM()
	if orm == nil {
		return nil, ErrNotStarted
	}
	return repository.NewRepository(orm, handlers), nil
}
