package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/utils"
	"gorm.io/gorm"
)

// BaseRepository provides the CRUD shared by every entity repository.
// T is the model, F its filter struct.
type BaseRepository[T any, F any] struct {
	DB          *gorm.DB
	applyFilter func(query *gorm.DB, filter F) *gorm.DB
}

func NewBaseRepository[T any, F any](db *gorm.DB, applyFilter func(*gorm.DB, F) *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{
		DB:          db,
		applyFilter: applyFilter,
	}
}

// getDB returns the transaction stored in ctx, or the root handle
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return r.DB.WithContext(ctx)
}

// getDBForWrite returns the ambient transaction, or begins one that the
// caller must finish.
func (r *BaseRepository[T, F]) getDBForWrite(ctx context.Context) (*gorm.DB, bool, error) {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx), false, nil
	}

	tx := r.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	return tx, true, nil
}

// write runs fn on a write handle, committing when it opened the transaction
func (r *BaseRepository[T, F]) write(ctx context.Context, fn func(db *gorm.DB) error) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if p := recover(); p != nil {
				db.Rollback()
				panic(p)
			}
			if err != nil {
				db.Rollback()
				return
			}
			if cerr := db.Commit().Error; cerr != nil {
				err = fmt.Errorf("failed to commit transaction: %w", cerr)
			}
		}()
	}

	return fn(db)
}

func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	db := r.getDB(ctx)

	var entity T
	err := db.Last(&entity, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity by ID %d: %w", id, err)
	}

	return &entity, nil
}

// byColumn loads the newest entity whose column equals value
func (r *BaseRepository[T, F]) byColumn(ctx context.Context, column string, value any) (*T, error) {
	db := r.getDB(ctx)

	var entity T
	err := db.Where(column+" = ?", value).Last(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity by %s: %w", column, err)
	}

	return &entity, nil
}

// byUUID loads an entity by its public uuid
func (r *BaseRepository[T, F]) byUUID(ctx context.Context, value string) (*T, error) {
	parsed, err := utils.ParseUUID(value)
	if err != nil {
		return nil, err
	}
	return r.byColumn(ctx, "uuid", parsed)
}

func (r *BaseRepository[T, F]) query(ctx context.Context, filter F) *gorm.DB {
	var model T
	query := r.getDB(ctx).Model(&model)
	if r.applyFilter != nil {
		query = r.applyFilter(query, filter)
	}
	return query
}

// ByFilter retrieves entities matching filter, newest first unless orderBy is set
func (r *BaseRepository[T, F]) ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error) {
	query := r.query(ctx, filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var entities []*T
	if err := query.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	return entities, nil
}

func (r *BaseRepository[T, F]) Count(ctx context.Context, filter F) (int64, error) {
	var count int64
	if err := r.query(ctx, filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

func (r *BaseRepository[T, F]) Exists(ctx context.Context, filter F) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *BaseRepository[T, F]) Save(ctx context.Context, entity *T) error {
	return r.write(ctx, func(db *gorm.DB) error {
		if err := db.Create(entity).Error; err != nil {
			return fmt.Errorf("failed to save entity: %w", err)
		}
		return nil
	})
}

func (r *BaseRepository[T, F]) SaveBatch(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}

	return r.write(ctx, func(db *gorm.DB) error {
		if err := db.CreateInBatches(entities, utils.MessageLogInsertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to save batch entities: %w", err)
		}
		return nil
	})
}

// Update persists every column of an existing entity
func (r *BaseRepository[T, F]) Update(ctx context.Context, entity *T) error {
	return r.write(ctx, func(db *gorm.DB) error {
		if err := db.Save(entity).Error; err != nil {
			return fmt.Errorf("failed to update entity: %w", err)
		}
		return nil
	})
}

// WithTransaction runs fn inside one database transaction. Repositories
// called with the ctx passed to fn join that transaction.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) (err error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()

	txCtx := context.WithValue(ctx, TxContextKey, tx)

	if err := fn(txCtx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
