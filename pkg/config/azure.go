package config

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"

	"github.com/atsika/poolbridge/pkg/poolstate"
)

// AzureBlobFetcher implements BlobFetcher against a single well-known blob
// holding the JSON config document (spec §4.10), adapted from the teacher's
// azblob.go GetToken download-stream pattern.
type AzureBlobFetcher struct {
	client        *azblob.Client
	container, blob string
}

func NewAzureBlobFetcher(client *azblob.Client, container, blob string) *AzureBlobFetcher {
	return &AzureBlobFetcher{client: client, container: container, blob: blob}
}

func (f *AzureBlobFetcher) DownloadBlob(ctx context.Context) ([]byte, error) {
	resp, err := f.client.DownloadStream(ctx, f.container, f.blob, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// StateMirror writes the current PoolState snapshot as a single upsert row
// (spec §4.11), overwritten on every change — never a history.
type StateMirror struct {
	client               *aztables.Client
	partitionKey, rowKey string
	log                  *logrus.Entry
}

// NewStateMirror builds a mirror over a single aztables.Client. Grounded in
// the teacher's aztable.go entity marshal/upsert pattern, specialized here
// to one fixed PartitionKey/RowKey pair instead of per-connection rows.
func NewStateMirror(client *aztables.Client, log *logrus.Entry) *StateMirror {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StateMirror{client: client, partitionKey: "pool", rowKey: "current", log: log.WithField("component", "state_mirror")}
}

// Publish implements scheduler.Publisher: marshal the snapshot into an
// aztables entity and upsert it, replacing whatever was there before.
func (m *StateMirror) Publish(snap poolstate.Snapshot) {
	ctx := context.Background()
	body, err := json.Marshal(snap)
	if err != nil {
		m.log.WithError(err).Error("failed to marshal snapshot for state mirror")
		return
	}
	entity := map[string]any{
		"PartitionKey": m.partitionKey,
		"RowKey":       m.rowKey,
		"Snapshot":     string(body),
	}
	data, err := json.Marshal(entity)
	if err != nil {
		m.log.WithError(err).Error("failed to marshal state mirror entity")
		return
	}
	if _, err := m.client.UpsertEntity(ctx, data, nil); err != nil {
		if re, ok := err.(*azcore.ResponseError); ok && re.StatusCode == http.StatusTooManyRequests {
			m.log.Warn("state mirror upsert throttled, dropping this update")
			return
		}
		m.log.WithError(err).Warn("state mirror upsert failed")
	}
}
