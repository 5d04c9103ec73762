package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/uptrace/bun/extra/bundebug"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var _ MetadataStore = &DatabaseStore{}

// DefaultDSN is a shared in-memory sqlite database.
const DefaultDSN = "file::memory:?cache=shared"

type DatabaseStore struct {
	db *bun.DB
}

type DatabaseStoreImageInfo struct {
	bun.BaseModel `bun:"table:image_info,alias:ii"`

	OwnerID  string `bun:"owner_id,pk"`
	FileName string `bun:"file_name,notnull"`
	MimeType string `bun:"mime_type,notnull"`
	Etag     string `bun:"etag,notnull"`
	Size     int64  `bun:"size,notnull"`
}

// NewDatabaseStore opens the sqlite database at dsn, and creates the schema.
// An empty dsn uses DefaultDSN.
func NewDatabaseStore(ctx context.Context, dsn string) (*DatabaseStore, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to use data source name: %w", err)
	}

	sqldb.SetConnMaxLifetime(0)
	sqldb.SetMaxIdleConns(3)
	sqldb.SetMaxOpenConns(3)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(true),
		bundebug.FromEnv("BUNDEBUG"),
	))

	_, err = db.NewCreateTable().
		Model((*DatabaseStoreImageInfo)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DatabaseStore{
		db: db,
	}, nil
}

func (ds *DatabaseStore) GetImageInfo(ctx context.Context, ownerID string) (*ImageInfo, error) {
	dsImageInfo := new(DatabaseStoreImageInfo)

	err := ds.db.NewSelect().
		Model(dsImageInfo).
		Where("owner_id = ?", ownerID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no image for %v: %w", ownerID, os.ErrNotExist)
		}
		return nil, fmt.Errorf("unable to get image info: %w", err)
	}

	return &ImageInfo{
		OwnerID:  dsImageInfo.OwnerID,
		FileName: dsImageInfo.FileName,
		MimeType: dsImageInfo.MimeType,
		Etag:     dsImageInfo.Etag,
		Size:     dsImageInfo.Size,
	}, nil
}

func (ds *DatabaseStore) PutImageInfo(ctx context.Context, imageInfo *ImageInfo) error {
	err := imageInfo.Check()
	if err != nil {
		return err
	}

	dsImageInfo := DatabaseStoreImageInfo{
		OwnerID:  imageInfo.OwnerID,
		FileName: imageInfo.FileName,
		MimeType: imageInfo.MimeType,
		Etag:     imageInfo.Etag,
		Size:     imageInfo.Size,
	}

	_, err = ds.db.NewInsert().
		Model(&dsImageInfo).
		On("CONFLICT (owner_id) DO UPDATE").
		Set("file_name = EXCLUDED.file_name").
		Set("mime_type = EXCLUDED.mime_type").
		Set("etag = EXCLUDED.etag").
		Set("size = EXCLUDED.size").
		Exec(ctx)
	return err
}

func (ds *DatabaseStore) DeleteImageInfo(ctx context.Context, ownerID string) error {
	_, err := ds.db.NewDelete().
		Model((*DatabaseStoreImageInfo)(nil)).
		Where("owner_id = ?", ownerID).
		Exec(ctx)
	return err
}

func (ds *DatabaseStore) DropAll(ctx context.Context) error {
	_, err := ds.db.NewTruncateTable().
		Model((*DatabaseStoreImageInfo)(nil)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("unable to delete image info: %w", err)
	}
	return nil
}

func (ds *DatabaseStore) Close() error {
	return ds.db.Close()
}
