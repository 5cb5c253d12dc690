package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rexliu/ordo/pkg/core"
)

const snapshotFile = "snapshot.json"

func buildSnapshot(items []core.Item) core.Snapshot {
	return core.Snapshot{
		Version: strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count:   len(items),
		Items:   items,
	}
}

// writeSnapshot replaces snapshot.json atomically via a temp file rename.
func writeSnapshot(profileDir string, snap core.Snapshot) error {
	path := filepath.Join(profileDir, snapshotFile)
	tmp, err := os.CreateTemp(profileDir, snapshotFile+".*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
