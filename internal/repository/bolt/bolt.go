package bolt

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"posevault/internal/domain"
)

// Bucket layout: image_assets holds ID → JSON document; assets_by_pose
// enforces the unique PoseRecordID back-reference (pose record ID → asset
// ID); assets_by_seq orders documents by creation (big-endian sequence →
// asset ID) for newest-first listing.
var (
	bucketAssets       = []byte("image_assets")
	bucketAssetsByPose = []byte("assets_by_pose")
	bucketAssetsBySeq  = []byte("assets_by_seq")
)

// DB wraps the bbolt handle behind the blob/metadata repositories.
type DB struct {
	Bolt *bolt.DB
}

// New opens the blob/metadata store at the given path and creates its
// buckets. The open fails fast on a held file lock instead of blocking
// indefinitely.
func New(path string) (*DB, error) {
	b, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open asset store: %w", err)
	}

	err = b.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAssets, bucketAssetsByPose, bucketAssetsBySeq} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		b.Close()
		return nil, err
	}

	return &DB{Bolt: b}, nil
}

// Ping verifies the store is still readable; used by the health surface and
// the archive statistics probe. The context parameter keeps the signature
// symmetric with the structured store's probe.
func (db *DB) Ping(_ context.Context) error {
	return db.Bolt.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAssets) == nil {
			return fmt.Errorf("asset bucket missing")
		}
		return nil
	})
}

// Close releases the underlying handle.
func (db *DB) Close() error {
	return db.Bolt.Close()
}

// Assets returns the ImageAsset repository backed by this store.
func (db *DB) Assets() domain.AssetRepository {
	return &AssetRepository{db: db.Bolt}
}
