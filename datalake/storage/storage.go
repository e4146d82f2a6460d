// Package storage is the object store the partitioned datasets are written to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// Location is a bucket and a key prefix. The prefix never starts or ends with a slash.
type Location struct {
	Bucket string
	Prefix string
}

// ParseLocation parses an s3://bucket/prefix URI.
func ParseLocation(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return Location{}, fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, uri)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("empty bucket in location %q", uri)
	}
	return Location{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

// URI returns the location as s3://bucket/prefix/, the form catalog tables expect.
func (l Location) URI() string {
	if l.Prefix == "" {
		return "s3://" + l.Bucket + "/"
	}
	return "s3://" + l.Bucket + "/" + l.Prefix + "/"
}

// Join returns a location nested under l.
func (l Location) Join(parts ...string) Location {
	return Location{Bucket: l.Bucket, Prefix: l.Key(parts...)}
}

// Key returns the object key of parts below the prefix.
func (l Location) Key(parts ...string) string {
	elems := make([]string, 0, len(parts)+1)
	if l.Prefix != "" {
		elems = append(elems, l.Prefix)
	}
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			elems = append(elems, p)
		}
	}
	return path.Join(elems...)
}

func (l Location) String() string {
	return l.URI()
}

// ConsoleURL links to the prefix in the S3 console.
func ConsoleURL(region string, l Location) string {
	q := url.Values{}
	q.Set("region", region)
	q.Set("prefix", l.Key()+"/")
	return fmt.Sprintf("https://s3.console.aws.amazon.com/s3/buckets/%s?%s", l.Bucket, q.Encode())
}

type Object struct {
	Key  string
	Size int64
}

// ObjectStore is the subset of object storage operations the lab needs. Keys
// are full object keys within bucket.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// List returns every object under prefix, sorted by key.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	// DeletePrefix deletes every object under prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, bucket, prefix string) (int, error)
}

// dirPrefix makes sure a non-empty prefix only matches whole path segments.
func dirPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
