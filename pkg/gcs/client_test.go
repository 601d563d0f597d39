// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gcs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ShiftSim/pkg/runstore"
)

// offlineClient builds a Client with no storage connection, for error
// paths that fail before any GCS call.
func offlineClient() *Client {
	return &Client{ProjectID: "demo-project", BucketName: "demo-bucket"}
}

// --- NewClient ---

func TestNewClientMissingKeyFile(t *testing.T) {
	_, err := NewClient(context.Background(), "demo-project", "demo-bucket", "/no/such/key.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "/no/such/key.json")
}

func TestNewClientEmptyKeyPath(t *testing.T) {
	_, err := NewClient(context.Background(), "demo-project", "demo-bucket", "")
	assert.Error(t, err)
}

func TestNewClientMalformedKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o644))

	_, err := NewClient(context.Background(), "demo-project", "demo-bucket", keyPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create storage client")
}

func TestNewClientCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The key check runs before the context is consulted.
	_, err := NewClient(ctx, "demo-project", "demo-bucket", "/no/such/key.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

// --- ArchiveRun ---

func TestArchiveRunRequiresRecord(t *testing.T) {
	_, err := offlineClient().ArchiveRun(context.Background(), nil, "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run record with an ID")
}

func TestArchiveRunRequiresID(t *testing.T) {
	_, err := offlineClient().ArchiveRun(context.Background(), &runstore.RunRecord{}, "runs")
	assert.Error(t, err)
}

// --- UploadFile / UploadDir ---

func TestUploadFileMissingLocalFile(t *testing.T) {
	err := offlineClient().UploadFile(context.Background(), "/no/such/input.csv", "dest/input.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "/no/such/input.csv")
}

func TestUploadFileEmptyLocalPath(t *testing.T) {
	err := offlineClient().UploadFile(context.Background(), "", "dest/input.csv")
	assert.Error(t, err)
}

func TestUploadDirMissingDirectory(t *testing.T) {
	err := offlineClient().UploadDir(context.Background(), "/no/such/dir", "dest")
	assert.Error(t, err)
}

func TestUploadDirEmptyPath(t *testing.T) {
	err := offlineClient().UploadDir(context.Background(), "", "dest")
	assert.Error(t, err)
}

// --- Client lifecycle ---

func TestCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, offlineClient().Close())
}

// --- Integration, skipped unless GCS_TEST_* credentials are set ---

func integrationClient(t *testing.T) *Client {
	t.Helper()

	keyPath := os.Getenv("GCS_TEST_SA_KEY_PATH")
	projectID := os.Getenv("GCS_TEST_PROJECT_ID")
	bucketName := os.Getenv("GCS_TEST_BUCKET_NAME")

	if keyPath == "" || projectID == "" || bucketName == "" {
		t.Skip("GCS_TEST_SA_KEY_PATH, GCS_TEST_PROJECT_ID, and GCS_TEST_BUCKET_NAME not set")
	}

	client, err := NewClient(context.Background(), projectID, bucketName, keyPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestArchiveRunIntegration(t *testing.T) {
	client := integrationClient(t)
	ctx := context.Background()

	rec := &runstore.RunRecord{ID: runstore.NewRunID(2017), Report: "==> CALC1 in 2017:\n"}
	objectPath, err := client.ArchiveRun(ctx, rec, "test/integration_runs")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(objectPath, rec.ID+".json"),
		"object path %s should end with %s.json", objectPath, rec.ID)

	names, err := client.ListArchived(ctx, "test/integration_runs")
	require.NoError(t, err)
	assert.Contains(t, names, objectPath)
}

func TestUploadFileIntegration(t *testing.T) {
	client := integrationClient(t)

	testFile := filepath.Join(t.TempDir(), "test_upload.csv")
	require.NoError(t, os.WriteFile(testFile, []byte("RECID,e00200\n1,50000\n"), 0o644))

	assert.NoError(t, client.UploadFile(context.Background(), testFile, "test/integration_test_upload.csv"))
}
