package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// DeleteCategory removes a category by id.
type DeleteCategory struct {
	repo CategoryRepository
	opts options
}

// NewDeleteCategory creates the interactor.
func NewDeleteCategory(repo CategoryRepository, opts ...Option) *DeleteCategory {
	return &DeleteCategory{repo: repo, opts: newOptions(opts)}
}

// Interact deletes the category and never reports failure. A missing row is
// success; any other failure is logged and published as an event.
func (d *DeleteCategory) Interact(ctx context.Context, id int64) {
	if err := d.InteractStrict(ctx, id); err != nil {
		d.opts.tel.Logger.WithError(err).WithField("category_id", id).Warn("category delete failed")
		_ = d.opts.tel.Events.PublishDeleteFailed(id, err.Error())
	}
}

// InteractCategory deletes the given category. See Interact.
func (d *DeleteCategory) InteractCategory(ctx context.Context, category stores.Category) {
	d.Interact(ctx, category.ID)
}

// InteractStrict deletes the category, treating a missing row as success and
// returning a StorageError for anything else.
func (d *DeleteCategory) InteractStrict(ctx context.Context, id int64) (err error) {
	ic := d.opts.tel.StartOperation(ctx, "delete_category", telemetry.AttrCategoryID.Int64(id))
	defer func() { ic.End(err) }()

	err = d.repo.DeleteCategory(ic.Ctx, id)
	switch {
	case err == nil:
		d.opts.tel.Metrics.RecordDelete("deleted")
		return nil
	case errors.Is(err, stores.ErrNotFound):
		d.opts.tel.Metrics.RecordDelete("not_found")
		return nil
	default:
		d.opts.tel.Metrics.RecordDelete("failed")
		d.opts.tel.Metrics.RecordError(string(ErrorClassStorage))
		return NewStorageError("failed to delete category", err).
			WithEntity(fmt.Sprintf("category %d", id)).
			WithOperation("delete")
	}
}
