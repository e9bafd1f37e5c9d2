package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"posevault/internal/domain"
)

// assetDoc is the stored JSON shape of one ImageAsset plus the creation
// sequence number that keys the ordering index.
type assetDoc struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	Path         string    `json:"path"`
	PoseRecordID string    `json:"poseRecordId"`
	Seq          uint64    `json:"seq"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (d *assetDoc) toDomain() *domain.ImageAsset {
	return &domain.ImageAsset{
		ID:           d.ID,
		Filename:     d.Filename,
		OriginalName: d.OriginalName,
		ContentType:  d.ContentType,
		Size:         d.Size,
		Path:         d.Path,
		PoseRecordID: d.PoseRecordID,
		CreatedAt:    d.CreatedAt,
	}
}

// AssetRepository implements domain.AssetRepository on bbolt.
type AssetRepository struct {
	db *bolt.DB
}

// NewAssetRepository creates a new bbolt-backed AssetRepository.
func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db.Bolt}
}

func (r *AssetRepository) Create(_ context.Context, asset *domain.ImageAsset) error {
	now := time.Now().UTC()
	err := r.db.Update(func(tx *bolt.Tx) error {
		assets := tx.Bucket(bucketAssets)
		byPose := tx.Bucket(bucketAssetsByPose)
		bySeq := tx.Bucket(bucketAssetsBySeq)

		// One asset per pose record, enforced by the index bucket.
		if byPose.Get([]byte(asset.PoseRecordID)) != nil {
			return domain.ErrDuplicateAsset
		}

		seq, err := assets.NextSequence()
		if err != nil {
			return err
		}

		doc := assetDoc{
			ID:           asset.ID,
			Filename:     asset.Filename,
			OriginalName: asset.OriginalName,
			ContentType:  asset.ContentType,
			Size:         asset.Size,
			Path:         asset.Path,
			PoseRecordID: asset.PoseRecordID,
			Seq:          seq,
			CreatedAt:    now,
		}
		buf, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		if err := assets.Put([]byte(asset.ID), buf); err != nil {
			return err
		}
		if err := byPose.Put([]byte(asset.PoseRecordID), []byte(asset.ID)); err != nil {
			return err
		}
		return bySeq.Put(seqKey(seq), []byte(asset.ID))
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateAsset) {
			return domain.ErrDuplicateAsset
		}
		return &domain.StoreError{Store: "asset", Op: "create asset", Err: err}
	}

	asset.CreatedAt = now
	return nil
}

func (r *AssetRepository) GetByID(_ context.Context, id string) (*domain.ImageAsset, error) {
	var asset *domain.ImageAsset
	err := r.db.View(func(tx *bolt.Tx) error {
		buf := tx.Bucket(bucketAssets).Get([]byte(id))
		if buf == nil {
			return domain.ErrNotFound
		}
		var doc assetDoc
		if err := json.Unmarshal(buf, &doc); err != nil {
			return err
		}
		asset = doc.toDomain()
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Store: "asset", Op: "get asset", Err: err}
	}
	return asset, nil
}

func (r *AssetRepository) GetByPoseRecordID(_ context.Context, poseRecordID string) (*domain.ImageAsset, error) {
	var asset *domain.ImageAsset
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketAssetsByPose).Get([]byte(poseRecordID))
		if id == nil {
			return domain.ErrNotFound
		}
		buf := tx.Bucket(bucketAssets).Get(id)
		if buf == nil {
			return domain.ErrNotFound
		}
		var doc assetDoc
		if err := json.Unmarshal(buf, &doc); err != nil {
			return err
		}
		asset = doc.toDomain()
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Store: "asset", Op: "get asset by pose record", Err: err}
	}
	return asset, nil
}

// List returns assets in reverse creation order (newest first) by walking
// the sequence index backward.
func (r *AssetRepository) List(_ context.Context, offset, limit int) ([]domain.ImageAsset, error) {
	var assets []domain.ImageAsset
	err := r.db.View(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketAssets)
		cursor := tx.Bucket(bucketAssetsBySeq).Cursor()

		skipped := 0
		for k, id := cursor.Last(); k != nil && len(assets) < limit; k, id = cursor.Prev() {
			if skipped < offset {
				skipped++
				continue
			}
			buf := docs.Get(id)
			if buf == nil {
				continue
			}
			var doc assetDoc
			if err := json.Unmarshal(buf, &doc); err != nil {
				return err
			}
			assets = append(assets, *doc.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, &domain.StoreError{Store: "asset", Op: "list assets", Err: err}
	}
	return assets, nil
}

func (r *AssetRepository) Count(_ context.Context) (int, error) {
	var count int
	err := r.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketAssets).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, &domain.StoreError{Store: "asset", Op: "count assets", Err: err}
	}
	return count, nil
}

func (r *AssetRepository) Delete(_ context.Context, id string) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		assets := tx.Bucket(bucketAssets)
		buf := assets.Get([]byte(id))
		if buf == nil {
			return domain.ErrNotFound
		}
		var doc assetDoc
		if err := json.Unmarshal(buf, &doc); err != nil {
			return err
		}

		if err := assets.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketAssetsByPose).Delete([]byte(doc.PoseRecordID)); err != nil {
			return err
		}
		return tx.Bucket(bucketAssetsBySeq).Delete(seqKey(doc.Seq))
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return &domain.StoreError{Store: "asset", Op: "delete asset", Err: err}
	}
	return nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}
