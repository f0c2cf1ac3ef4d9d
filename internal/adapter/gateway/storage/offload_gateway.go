// Package storage offloads cold partition files to S3 object storage.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

// OffloadGateway copies partition files whose content ended before a
// cutoff into S3. Local files are never removed; the bucket is a cold
// replica, not a tier migration.
//
// Bucket structure: s3://<bucket>/<prefix>/<path relative to data root>
type OffloadGateway struct {
	client S3API // Use interface for testability
	bucket string
	prefix string
}

// OffloadResult reports one considered entry.
type OffloadResult struct {
	Path     string
	Key      string
	Uploaded bool
	Skipped  string // reason, when not uploaded
}

// NewOffloadGateway creates a gateway against real AWS S3.
func NewOffloadGateway(ctx context.Context, bucket, prefix, region string) (*OffloadGateway, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if region != "" {
		awsCfg.Region = region
	}
	return &OffloadGateway{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// NewOffloadGatewayWithClient creates a gateway with a custom S3 client.
// This is primarily used for testing with mock S3 clients.
func NewOffloadGatewayWithClient(client S3API, bucket, prefix string) *OffloadGateway {
	return &OffloadGateway{client: client, bucket: bucket, prefix: prefix}
}

// OffloadBefore uploads every manifest entry whose TimeTo falls strictly
// before cutoff. Entries without a time span are skipped. With dryRun the
// candidate list is returned without touching S3.
func (g *OffloadGateway) OffloadBefore(ctx context.Context, manifest repository.ManifestRepository, dataRoot string, cutoff time.Time, dryRun bool) ([]OffloadResult, error) {
	entries, err := manifest.ListEntries(ctx, repository.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list manifest entries: %w", err)
	}

	existing, err := g.existingKeys(ctx)
	if err != nil {
		return nil, err
	}

	cutoffMS := cutoff.UnixMilli()
	var results []OffloadResult
	for _, e := range entries {
		if e.TimeTo == nil || *e.TimeTo >= cutoffMS {
			continue
		}
		localPath := partition.ResolvePath(dataRoot, e.Path)
		key := g.keyFor(dataRoot, localPath)
		res := OffloadResult{Path: localPath, Key: key}

		if _, ok := existing[key]; ok {
			res.Skipped = "already offloaded"
			results = append(results, res)
			continue
		}
		if _, err := os.Stat(localPath); err != nil {
			res.Skipped = "file missing locally"
			results = append(results, res)
			continue
		}
		if dryRun {
			res.Skipped = "dry run"
			results = append(results, res)
			continue
		}

		if err := g.upload(ctx, localPath, key); err != nil {
			return results, err
		}
		res.Uploaded = true
		results = append(results, res)
	}
	return results, nil
}

func (g *OffloadGateway) existingKeys(ctx context.Context) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	var token *string
	for {
		out, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(g.bucket),
			Prefix:            aws.String(g.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list S3 objects: %w", err)
		}
		for _, obj := range out.Contents {
			keys[aws.ToString(obj.Key)] = struct{}{}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

func (g *OffloadGateway) upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/vnd.apache.parquet"),
		Metadata: map[string]string{
			"offloaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s to S3: %w", localPath, err)
	}
	return nil
}

// keyFor builds the object key from the file's path relative to the data
// root, always with forward slashes.
func (g *OffloadGateway) keyFor(dataRoot, localPath string) string {
	rel, err := filepath.Rel(dataRoot, localPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(localPath)
	}
	rel = filepath.ToSlash(rel)
	if g.prefix == "" {
		return rel
	}
	return g.prefix + "/" + rel
}
