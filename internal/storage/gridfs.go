// gridfs.go - Object store for dataset images on MongoDB GridFS

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

// ObjectStore keeps image copies keyed raw/<clean_label>/<file>
type ObjectStore struct {
	db   *mongo.Database
	name string
}

// NewObjectStore opens (or lazily creates) a GridFS bucket.
func NewObjectStore(db *mongo.Database, bucketName string) (*ObjectStore, error) {
	if _, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName)); err != nil {
		return nil, fmt.Errorf("failed to open GridFS bucket %q: %w", bucketName, err)
	}
	return &ObjectStore{db: db, name: bucketName}, nil
}

// bucket returns a bucket private to one call. The v1 driver keeps read and
// write deadlines on the Bucket itself, so a shared one would leak a request
// deadline into every later call.
func (o *ObjectStore) bucket(ctx context.Context, write bool) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(o.db, options.GridFSBucket().SetName(o.name))
	if err != nil {
		return nil, fmt.Errorf("failed to open GridFS bucket %q: %w", o.name, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if write {
			err = b.SetWriteDeadline(deadline)
		} else {
			err = b.SetReadDeadline(deadline)
		}
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Upload stores data under key.
func (o *ObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	bucket, err := o.bucket(ctx, true)
	if err != nil {
		return err
	}

	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if _, err := bucket.UploadFromStream(key, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Open returns a reader for the newest revision of key.
func (o *ObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	bucket, err := o.bucket(ctx, false)
	if err != nil {
		return nil, ObjectInfo{}, err
	}

	stream, err := bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("failed to open %s: %w", key, err)
	}

	file := stream.GetFile()
	info := ObjectInfo{
		Key:         key,
		Size:        file.Length,
		ContentType: "application/octet-stream",
		UploadedAt:  file.UploadDate,
	}
	if file.Metadata != nil {
		if ct, ok := file.Metadata.Lookup("contentType").StringValueOK(); ok && ct != "" {
			info.ContentType = ct
		}
	}

	return stream, info, nil
}

// Download copies the object into w.
func (o *ObjectStore) Download(ctx context.Context, key string, w io.Writer) (ObjectInfo, error) {
	r, info, err := o.Open(ctx, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return info, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return info, nil
}
