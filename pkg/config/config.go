// Package config implements the config bootstrap (spec §4.10) and state
// mirror (spec §4.11): loading the bridge's runtime settings from an Azure
// Blob object with a local-file fallback, and best-effort mirroring the
// current PoolState snapshot into Azure Table Storage. The settings surface
// is a flat JSON-tagged struct; the two Azure-backed concerns are grounded
// in the teacher's azblob.go/aztable.go clients.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds the runtime inputs enumerated in spec.md §6. Zero value is
// never used directly; Load or Default populates it.
type Config struct {
	Board string `json:"board"`

	RS485RXPin  int `json:"rs485_rxpin"`
	RS485TXPin  int `json:"rs485_txpin"`
	RS485RTSPin int `json:"rs485_rtspin"`

	RS485TimeoutMS int `json:"rs485_timeout_ms"`
	MaxDataSize    int `json:"datalink_max_data_size"`

	MQTTURL        string `json:"mqtt_url"`
	MQTTCtrlTopic  string `json:"mqtt_ctrl_topic"`
	MQTTDataTopic  string `json:"mqtt_data_topic"`

	HTTPListenAddr string `json:"http_listen_addr"`

	LogLevel string `json:"log_level"`
}

// Default returns the hardcoded fallback config, used when neither a blob
// fetch nor a local cache file is available (spec §4.10: "the process must
// still boot with the last-known config when network is down" — Default is
// the last resort behind that cache).
func Default() Config {
	return Config{
		Board:          "board1",
		RS485RXPin:     14,
		RS485TXPin:     15,
		RS485RTSPin:    18,
		RS485TimeoutMS: 100,
		MaxDataSize:    32,
		MQTTURL:        "",
		MQTTCtrlTopic:  "poolbridge/ctrl",
		MQTTDataTopic:  "poolbridge/data",
		HTTPListenAddr: ":8080",
		LogLevel:       "info",
	}
}

// RS485Timeout returns the configured per-read budget as a time.Duration.
func (c Config) RS485Timeout() time.Duration {
	return time.Duration(c.RS485TimeoutMS) * time.Millisecond
}

// BlobFetcher is the minimal contract Load needs from an Azure Blob client
// (satisfied by AzureBlobFetcher in azure.go, which wraps *azblob.Client's
// DownloadStream). Tests exercise Load through small fakes of this interface.
type BlobFetcher interface {
	DownloadBlob(ctx context.Context) ([]byte, error)
}

// Load fetches config from blob, falling back to the local cache file, and
// finally to Default. On a successful blob fetch the cache file is
// refreshed so the next cold boot without network still has a recent copy
// (spec §4.10).
func Load(ctx context.Context, fetcher BlobFetcher, cachePath string) (Config, error) {
	if fetcher != nil {
		data, err := fetcher.DownloadBlob(ctx)
		if err == nil {
			var cfg Config
			if jerr := json.Unmarshal(data, &cfg); jerr == nil {
				_ = writeCache(cachePath, data)
				return cfg, nil
			}
		}
	}

	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			var cfg Config
			if jerr := json.Unmarshal(data, &cfg); jerr == nil {
				return cfg, nil
			}
		}
	}

	return Default(), fmt.Errorf("config: blob and local cache both unavailable, using defaults")
}

func writeCache(path string, data []byte) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}
