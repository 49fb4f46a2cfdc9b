package backup

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	appErrors "dynamo-lifecycle/internal/errors"
)

// Codec names accepted in configuration and encoded in blob key extensions
const (
	CodecNone = "none"
	CodecGzip = "gzip"
	CodecZstd = "zstd"
	CodecLZ4  = "lz4"
)

// Extension carried by encrypted chunk keys, after the codec extension
const encryptedExtension = ".enc"

// CompressionStats describes one compression operation
type CompressionStats struct {
	OriginalSize   int64
	CompressedSize int64
	Ratio          float64
	Codec          string
	Level          int
	Duration       time.Duration
}

// Compressor is one codec implementation
type Compressor interface {
	Compress(data []byte, level int) ([]byte, *CompressionStats, error)
	Decompress(data []byte) ([]byte, error)
	Codec() string
	Extension() string
	DefaultLevel() int
	MinLevel() int
	MaxLevel() int
}

// CompressionManager dispatches to the registered codecs
type CompressionManager struct {
	compressors map[string]Compressor
}

// NewCompressionManager creates a manager with every supported codec registered
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		compressors: make(map[string]Compressor),
	}
	cm.compressors[CodecGzip] = &GzipCompressor{}
	cm.compressors[CodecZstd] = &ZstdCompressor{}
	cm.compressors[CodecLZ4] = &LZ4Compressor{}
	return cm
}

// Compress compresses data with the named codec. Out-of-range levels fall
// back to the codec default.
func (cm *CompressionManager) Compress(data []byte, codec string, level int) ([]byte, *CompressionStats, error) {
	if codec == CodecNone || codec == "" {
		return data, &CompressionStats{
			OriginalSize:   int64(len(data)),
			CompressedSize: int64(len(data)),
			Ratio:          1.0,
			Codec:          CodecNone,
		}, nil
	}

	compressor, exists := cm.compressors[codec]
	if !exists {
		return nil, nil, appErrors.NewValidationError(fmt.Sprintf("unsupported compression codec: %s", codec), nil)
	}
	if level < compressor.MinLevel() || level > compressor.MaxLevel() {
		level = compressor.DefaultLevel()
	}
	return compressor.Compress(data, level)
}

// Decompress reverses Compress for the named codec
func (cm *CompressionManager) Decompress(data []byte, codec string) ([]byte, error) {
	if codec == CodecNone || codec == "" {
		return data, nil
	}
	compressor, exists := cm.compressors[codec]
	if !exists {
		return nil, appErrors.NewValidationError(fmt.Sprintf("unsupported compression codec: %s", codec), nil)
	}
	return compressor.Decompress(data)
}

// SupportedCodecs returns the registered codec names
func (cm *CompressionManager) SupportedCodecs() []string {
	codecs := []string{CodecNone}
	for codec := range cm.compressors {
		codecs = append(codecs, codec)
	}
	return codecs
}

// ChunkExtension builds the file extension that encodes codec and
// encryption for a chunk key. The payload is always JSON, so every chunk
// key starts with ".json" and appends codec and encryption markers.
func ChunkExtension(codec string, encrypted bool) string {
	ext := ".json"
	switch codec {
	case CodecGzip:
		ext += ".gz"
	case CodecZstd:
		ext += ".zst"
	case CodecLZ4:
		ext += ".lz4"
	}
	if encrypted {
		ext += encryptedExtension
	}
	return ext
}

// ParseChunkKey reads codec and encryption back out of a chunk key
// extension. Unknown shapes fail validation so a damaged key never
// silently decodes as plain JSON.
func ParseChunkKey(key string) (codec string, encrypted bool, err error) {
	rest := key
	if strings.HasSuffix(rest, encryptedExtension) {
		encrypted = true
		rest = strings.TrimSuffix(rest, encryptedExtension)
	}

	switch {
	case strings.HasSuffix(rest, ".json"):
		return CodecNone, encrypted, nil
	case strings.HasSuffix(rest, ".json.gz"):
		return CodecGzip, encrypted, nil
	case strings.HasSuffix(rest, ".json.zst"):
		return CodecZstd, encrypted, nil
	case strings.HasSuffix(rest, ".json.lz4"):
		return CodecLZ4, encrypted, nil
	default:
		return "", false, appErrors.NewValidationError(fmt.Sprintf("unrecognized chunk key extension: %s", key), nil)
	}
}

func compressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

// GzipCompressor implements gzip compression
type GzipCompressor struct{}

func (gc *GzipCompressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, nil, appErrors.NewStorageError("failed to create gzip writer", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, nil, appErrors.NewStorageError("failed to write gzip data", err)
	}
	if err := writer.Close(); err != nil {
		return nil, nil, appErrors.NewStorageError("failed to close gzip writer", err)
	}

	compressed := buf.Bytes()
	return compressed, &CompressionStats{
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(compressed)),
		Ratio:          compressionRatio(int64(len(data)), int64(len(compressed))),
		Codec:          CodecGzip,
		Level:          level,
		Duration:       time.Since(start),
	}, nil
}

func (gc *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, appErrors.NewIntegrityError("failed to open gzip chunk", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, appErrors.NewIntegrityError("failed to decompress gzip chunk", err)
	}
	return decompressed, nil
}

func (gc *GzipCompressor) Codec() string     { return CodecGzip }
func (gc *GzipCompressor) Extension() string { return ".gz" }
func (gc *GzipCompressor) DefaultLevel() int { return gzip.DefaultCompression }
func (gc *GzipCompressor) MinLevel() int     { return gzip.BestSpeed }
func (gc *GzipCompressor) MaxLevel() int     { return gzip.BestCompression }

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct{}

func (zc *ZstdCompressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	encoderLevel := zstd.SpeedDefault
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, nil, appErrors.NewStorageError("failed to create zstd encoder", err)
	}
	defer encoder.Close()

	compressed := encoder.EncodeAll(data, make([]byte, 0, len(data)))
	return compressed, &CompressionStats{
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(compressed)),
		Ratio:          compressionRatio(int64(len(data)), int64(len(compressed))),
		Codec:          CodecZstd,
		Level:          level,
		Duration:       time.Since(start),
	}, nil
}

func (zc *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, appErrors.NewIntegrityError("failed to create zstd decoder", err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, appErrors.NewIntegrityError("failed to decompress zstd chunk", err)
	}
	return decompressed, nil
}

func (zc *ZstdCompressor) Codec() string     { return CodecZstd }
func (zc *ZstdCompressor) Extension() string { return ".zst" }
func (zc *ZstdCompressor) DefaultLevel() int { return 3 }
func (zc *ZstdCompressor) MinLevel() int     { return 1 }
func (zc *ZstdCompressor) MaxLevel() int     { return 22 }

// LZ4Compressor implements LZ4 compression
type LZ4Compressor struct{}

func (lc *LZ4Compressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, nil, appErrors.NewStorageError("failed to set lz4 compression level", err)
		}
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, nil, appErrors.NewStorageError("failed to write lz4 data", err)
	}
	if err := writer.Close(); err != nil {
		return nil, nil, appErrors.NewStorageError("failed to close lz4 writer", err)
	}

	compressed := buf.Bytes()
	return compressed, &CompressionStats{
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(compressed)),
		Ratio:          compressionRatio(int64(len(data)), int64(len(compressed))),
		Codec:          CodecLZ4,
		Level:          level,
		Duration:       time.Since(start),
	}, nil
}

func (lc *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, appErrors.NewIntegrityError("failed to decompress lz4 chunk", err)
	}
	return decompressed, nil
}

func (lc *LZ4Compressor) Codec() string     { return CodecLZ4 }
func (lc *LZ4Compressor) Extension() string { return ".lz4" }
func (lc *LZ4Compressor) DefaultLevel() int { return 1 }
func (lc *LZ4Compressor) MinLevel() int     { return 1 }
func (lc *LZ4Compressor) MaxLevel() int     { return 12 }
