package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"dynamo-lifecycle/internal/blob"
	appErrors "dynamo-lifecycle/internal/errors"
)

// chunkReader downloads chunk files and unwraps them back into canonical
// items. The key extension drives decryption and decompression.
type chunkReader struct {
	blobStore   blob.Store
	compression *CompressionManager
	cipher      *ChunkCipher
}

func (cr *chunkReader) read(ctx context.Context, file ChunkFileRef) ([]map[string]interface{}, error) {
	codec, encrypted, err := ParseChunkKey(file.BlobKey)
	if err != nil {
		return nil, err
	}

	data, err := cr.blobStore.Get(ctx, file.BlobKey)
	if err != nil {
		return nil, err
	}

	if encrypted {
		if !cr.cipher.Enabled() {
			return nil, appErrors.NewValidationError(
				"chunk "+file.BlobKey+" is encrypted but no passphrase is configured", nil)
		}
		data, err = cr.cipher.Decrypt(data)
		if err != nil {
			return nil, err
		}
	}

	data, err = cr.compression.Decompress(data, codec)
	if err != nil {
		return nil, err
	}

	var items []map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&items); err != nil {
		return nil, appErrors.NewIntegrityError("failed to parse chunk "+file.BlobKey, err)
	}
	if len(items) != file.ItemCount {
		return nil, appErrors.NewIntegrityError(
			fmt.Sprintf("chunk %s holds %d items but declares %d", file.BlobKey, len(items), file.ItemCount), nil)
	}
	return items, nil
}
