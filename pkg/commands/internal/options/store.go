package options

import (
	"context"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/config"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/stow/codecs/jsoncodec"
	"github.com/wuxler/stowage/pkg/stow/codecs/msgpackcodec"
	"github.com/wuxler/stowage/pkg/stow/codecs/rawcodec"
	"github.com/wuxler/stowage/pkg/stow/codecs/yamlcodec"
	"github.com/wuxler/stowage/pkg/stow/storages/dbstore"
	"github.com/wuxler/stowage/pkg/stow/storages/file"
	"github.com/wuxler/stowage/pkg/stow/stowdb"
	"github.com/wuxler/stowage/pkg/util/homedir"
)

const (
	// StoreFlagCategory is the category of the store flags.
	StoreFlagCategory = "[Store]"

	// DefaultDatabaseFileName is the manifest database file name used when
	// no path is configured.
	DefaultDatabaseFileName = "stowage.db"

	// DefaultStorageDirName is the payload directory name used when no
	// root is configured.
	DefaultStorageDirName = "blobs"
)

// NewStoreOptions returns a *StoreOptions with default values.
func NewStoreOptions() *StoreOptions {
	return &StoreOptions{}
}

// StoreOptions locate the manifest database and the payload storage.
type StoreOptions struct {
	// DatabasePath is the path to the manifest database file.
	DatabasePath string

	// StorageRoot is the directory payload files are stored under.
	StorageRoot string
}

// Flags returns the []cli.Flag related to current options.
func (o *StoreOptions) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db",
			Usage:       "path to the manifest database file",
			Sources:     cli.EnvVars("STOWAGE_DB_PATH"),
			Destination: &o.DatabasePath,
			Category:    StoreFlagCategory,
			Persistent:  true,
		},
		&cli.StringFlag{
			Name:        "storage-root",
			Usage:       "directory payload files are stored under",
			Sources:     cli.EnvVars("STOWAGE_STORAGE_ROOT"),
			Destination: &o.StorageRoot,
			Category:    StoreFlagCategory,
			Persistent:  true,
		},
	}
}

// Complete fills unset options from the configuration file and falls back
// to the built-in defaults under the user home directory. Both paths accept
// a "~/" prefix.
func (o *StoreOptions) Complete(cfg *config.Config) error {
	if o.DatabasePath == "" {
		o.DatabasePath = cfg.StringOr(config.KeyDBPath,
			filepath.Join(config.DefaultDir(), DefaultDatabaseFileName))
	}
	if o.StorageRoot == "" {
		o.StorageRoot = cfg.StringOr(config.KeyStorageRoot,
			filepath.Join(config.DefaultDir(), DefaultStorageDirName))
	}
	var err error
	if o.DatabasePath, err = homedir.Expand(o.DatabasePath); err != nil {
		return err
	}
	if o.StorageRoot, err = homedir.Expand(o.StorageRoot); err != nil {
		return err
	}
	return nil
}

// OpenRecordStore opens the manifest database and ensures the schema
// exists. The caller owns the returned store and must close it.
func (o *StoreOptions) OpenRecordStore(ctx context.Context) (*stowdb.Store, error) {
	if err := os.MkdirAll(filepath.Dir(o.DatabasePath), 0o755); err != nil {
		return nil, err
	}
	store, err := stowdb.Open(o.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.CreateAll(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewRegistry assembles the registry commands resolve codecs and storage
// drivers from. The file driver is the default storage, and the sqlite
// driver shares the record store handle so records and payloads can live
// in a single database file. Decorators wrap every storage driver before
// registration, the server uses this to front reads with a cache.
func (o *StoreOptions) NewRegistry(ctx context.Context, records *stowdb.Store, decorators ...func(stow.Storage) stow.Storage) (*stow.Registry, error) {
	fileStorage, err := file.New(o.StorageRoot)
	if err != nil {
		return nil, err
	}
	blobStorage := dbstore.New(records.DB())
	if err := blobStorage.CreateAll(ctx); err != nil {
		return nil, err
	}
	storages := []stow.Storage{fileStorage, blobStorage}
	for i := range storages {
		for _, decorate := range decorators {
			storages[i] = decorate(storages[i])
		}
	}
	return stow.NewRegistry(
		stow.WithSerializers(jsoncodec.New(), yamlcodec.New(), msgpackcodec.New(), rawcodec.New()),
		stow.WithStreamSerializers(jsoncodec.NewStream(), msgpackcodec.NewStream(), rawcodec.NewStream()),
		stow.WithStorages(storages...),
		stow.WithDefaultStorage(file.Name),
	)
}
