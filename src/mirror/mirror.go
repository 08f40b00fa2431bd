package mirror

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/oops"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

/*
Keeps a copy of the public directories in an S3 bucket, one key prefix per
content. Every upload replaces the whole prefix, so files dropped by a
republication do not linger in the bucket.
*/
type S3Mirror struct {
	client *s3.Client
	bucket string
}

func New(ctx context.Context, cfg config.MirrorConfig) (*S3Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, ""),
		),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, oops.New(err, "failed to load mirror config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return &S3Mirror{client: client, bucket: cfg.Bucket}, nil
}

// Uploads every file under dir to prefix, then removes the keys under prefix
// that dir no longer has.
func (m *S3Mirror) Upload(ctx context.Context, dir, prefix string) error {
	existing, err := m.list(ctx, prefix)
	if err != nil {
		return err
	}
	stale := make(map[string]bool, len(existing))
	for _, key := range existing {
		stale[key] = true
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if err := m.put(ctx, key, p); err != nil {
			return err
		}
		delete(stale, key)
		return nil
	})
	if err != nil {
		return oops.New(err, "failed to mirror %s", dir)
	}

	for key := range stale {
		if err := m.delete(ctx, key); err != nil {
			return err
		}
	}
	logging.ExtractLogger(ctx).Debug().Str("prefix", prefix).Int("removed", len(stale)).Msg("mirrored public directory")
	return nil
}

// Removes every key under prefix.
func (m *S3Mirror) Remove(ctx context.Context, prefix string) error {
	keys, err := m.list(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := m.delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *S3Mirror) put(ctx context.Context, key, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return oops.New(err, "failed to read %s", filename)
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	upload := func() error {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &m.bucket,
			Key:         &key,
			Body:        bytes.NewReader(data),
			ACL:         types.ObjectCannedACLPublicRead,
			ContentType: &contentType,
		})
		return err
	}

	err = upload()
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchBucket" {
			_, err := m.client.CreateBucket(ctx, &s3.CreateBucketInput{
				Bucket: &m.bucket,
			})
			if err != nil {
				return oops.New(err, "failed to create mirror bucket")
			}

			err = upload()
			if err != nil {
				return oops.New(err, "failed to upload %s", key)
			}
		} else {
			return oops.New(err, "failed to upload %s", key)
		}
	}
	return nil
}

func (m *S3Mirror) delete(ctx context.Context, key string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
	})
	if err != nil {
		return oops.New(err, "failed to delete %s", key)
	}
	return nil
}

// Keys under prefix. A missing bucket holds nothing.
func (m *S3Mirror) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: &m.bucket,
		Prefix: aws.String(prefix + "/"),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchBucket" {
				return nil, nil
			}
			return nil, oops.New(err, "failed to list %s", prefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
