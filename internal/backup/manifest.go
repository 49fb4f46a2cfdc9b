package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"dynamo-lifecycle/internal/blob"
	appErrors "dynamo-lifecycle/internal/errors"
)

// Blob layout of one backup:
//
//	<prefix>/<environment>/<backupName>/manifest.json
//	<prefix>/<environment>/<backupName>/<tableAlias>/chunk-00000<ext>
//
// Chunk directories use the environment-free table alias so a backup can be
// restored into a different environment.
type Layout struct {
	Prefix      string
	Environment string
}

// BackupPrefix returns the blob prefix all artifacts of a backup live under
func (l Layout) BackupPrefix(backupName string) string {
	return path.Join(l.Prefix, l.Environment, backupName)
}

// ManifestKey returns the manifest object key for a backup
func (l Layout) ManifestKey(backupName string) string {
	return l.BackupPrefix(backupName) + "/" + manifestFileName
}

// ChunkKey returns the object key for one chunk file
func (l Layout) ChunkKey(backupName, tableAlias string, chunkIndex int, extension string) string {
	return fmt.Sprintf("%s/%s/chunk-%05d%s", l.BackupPrefix(backupName), tableAlias, chunkIndex, extension)
}

// EnvironmentPrefix returns the prefix all backups of the environment share
func (l Layout) EnvironmentPrefix() string {
	return path.Join(l.Prefix, l.Environment) + "/"
}

const (
	manifestFileName     = "manifest.json"
	manifestFileNameGz   = "manifest.json.gz"
	legacyDataFileName   = "data.json"
	legacyDataFileNameGz = "data.json.gz"

	manifestContentType = "application/json"
)

// WriteManifest uploads the manifest as indented JSON. Callers invoke this
// only after every chunk the manifest references has been uploaded.
func WriteManifest(ctx context.Context, store blob.Store, manifest *Manifest) error {
	if err := manifest.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return appErrors.NewStorageError("failed to serialize manifest", err)
	}
	return store.Put(ctx, manifest.Location.ManifestKey, data, manifestContentType)
}

// ReadManifest downloads and parses the manifest at key. Keys ending in .gz
// are decompressed first.
func ReadManifest(ctx context.Context, store blob.Store, key string) (*Manifest, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(key, ".gz") {
		data, err = (&GzipCompressor{}).Decompress(data)
		if err != nil {
			return nil, err
		}
	}

	var manifest Manifest
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&manifest); err != nil {
		return nil, appErrors.NewIntegrityError("failed to parse manifest at "+key, err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, appErrors.NewIntegrityError("manifest at "+key+" is invalid", err)
	}
	return &manifest, nil
}

// Resolved names the backup data found under a restore path. Either
// Manifest is set, or LegacyKey points at a single-file dump in the
// pre-manifest format.
type Resolved struct {
	Manifest  *Manifest
	LegacyKey string
}

// Resolve locates backup data under the given blob path. Candidates are
// tried in order: manifest.json, manifest.json.gz, then the legacy
// data.json and data.json.gz single-file dumps.
func Resolve(ctx context.Context, store blob.Store, blobPath string) (*Resolved, error) {
	blobPath = strings.TrimSuffix(blobPath, "/")

	for _, name := range []string{manifestFileName, manifestFileNameGz} {
		key := blobPath + "/" + name
		manifest, err := ReadManifest(ctx, store, key)
		if err == nil {
			return &Resolved{Manifest: manifest}, nil
		}
		if !appErrors.IsNotFound(err) {
			return nil, err
		}
	}

	for _, name := range []string{legacyDataFileName, legacyDataFileNameGz} {
		key := blobPath + "/" + name
		if _, err := store.Head(ctx, key); err == nil {
			return &Resolved{LegacyKey: key}, nil
		} else if !appErrors.IsNotFound(err) {
			return nil, err
		}
	}

	return nil, appErrors.NewNotFoundError("no backup found under "+blobPath, nil)
}

// ReadLegacyPayload downloads and parses a legacy single-file dump. The
// payload is either a map of table name to item list, or a bare item list
// that belongs to the given fallback table.
func ReadLegacyPayload(ctx context.Context, store blob.Store, key, fallbackTable string) (map[string][]map[string]interface{}, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(key, ".gz") {
		data, err = (&GzipCompressor{}).Decompress(data)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, appErrors.NewIntegrityError("legacy dump at "+key+" is empty", nil)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	switch trimmed[0] {
	case '{':
		var tables map[string][]map[string]interface{}
		if err := decoder.Decode(&tables); err != nil {
			return nil, appErrors.NewIntegrityError("failed to parse legacy dump at "+key, err)
		}
		return tables, nil
	case '[':
		var items []map[string]interface{}
		if err := decoder.Decode(&items); err != nil {
			return nil, appErrors.NewIntegrityError("failed to parse legacy dump at "+key, err)
		}
		return map[string][]map[string]interface{}{fallbackTable: items}, nil
	default:
		return nil, appErrors.NewIntegrityError("legacy dump at "+key+" is neither an object nor an array", nil)
	}
}
