// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gcs archives simulation runs to a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/AleutianAI/ShiftSim/pkg/runstore"
)

// Client uploads run records and exported files to a GCS bucket.
type Client struct {
	storageClient *storage.Client
	ProjectID     string
	BucketName    string
}

// NewClient creates a GCS client authenticated with a service account key.
func NewClient(ctx context.Context, projectID, bucketName, saKeyPath string) (*Client, error) {
	if _, err := os.Stat(saKeyPath); err != nil {
		return nil, fmt.Errorf("service account key %s: %w", saKeyPath, err)
	}

	sc, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Client{storageClient: sc, ProjectID: projectID, BucketName: bucketName}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	if c.storageClient == nil {
		return nil
	}
	return c.storageClient.Close()
}

// writeObject streams src into one bucket object. Archived runs change
// on re-upload, so caching is disabled across the board.
func (c *Client) writeObject(ctx context.Context, objectPath, contentType string, src io.Reader) error {
	w := c.storageClient.Bucket(c.BucketName).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", c.BucketName, objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", c.BucketName, objectPath, err)
	}
	return nil
}

// ArchiveRun uploads a stored run as a JSON document.
//
// The object is written under prefix as {run-id}.json and the full
// object path is returned.
func (c *Client) ArchiveRun(ctx context.Context, rec *runstore.RunRecord, prefix string) (string, error) {
	if rec == nil || rec.ID == "" {
		return "", fmt.Errorf("a run record with an ID is required")
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", rec.ID, err)
	}

	objectPath := path.Join(prefix, rec.ID+".json")
	if err := c.writeObject(ctx, objectPath, "application/json", bytes.NewReader(payload)); err != nil {
		return "", err
	}
	return objectPath, nil
}

// ListArchived returns the object names stored under the given prefix.
func (c *Client) ListArchived(ctx context.Context, prefix string) ([]string, error) {
	it := c.storageClient.Bucket(c.BucketName).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", c.BucketName, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// UploadFile uploads a single local file to the bucket.
func (c *Client) UploadFile(ctx context.Context, localPath, gcsPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	return c.writeObject(ctx, gcsPath, "application/octet-stream", f)
}

// UploadDir uploads every regular file in a directory under a common
// prefix. Subdirectory structure is flattened.
func (c *Client) UploadDir(ctx context.Context, localDir, gcsPrefix string) error {
	return filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return c.UploadFile(ctx, p, path.Join(gcsPrefix, d.Name()))
	})
}
