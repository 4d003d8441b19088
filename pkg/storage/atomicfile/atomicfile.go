// Package atomicfile implements the tmp-write + rename atomic replace
// contract shared by every on-disk structure in this engine (spec §4.2,
// §4.3, §4.4, §4.5, §4.9, §5, §7): readers never observe a torn file,
// and a crash between the old file's removal and the rename leaves
// either the previous file or nothing, never a partial write.
//
// The write side adapts the teacher's write-then-finalize shape from
// storage/sstable/builder.go and storage/wal.go's Truncate (flush,
// close, reopen) into a generic helper; the gzip framing is grounded on
// qubicDB-qubicdb's pkg/persistence/codec.go, which imports
// compress/gzip directly for the same "compress one JSON blob" concern.
package atomicfile

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteJSON marshals v as camelCase-friendly JSON (struct tags decide
// field names) and atomically replaces path with the result.
func WriteJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("atomicfile: marshal %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

// ReadJSON reads and unmarshals path into v. It retries once if the
// file is momentarily missing (the narrow window between a writer's
// remove and rename), per spec §5.
func ReadJSON(path string, v interface{}) error {
	data, err := readWithRetry(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("atomicfile: unmarshal %s: %w", path, err)
	}
	return nil
}

// WriteGzipJSON marshals v as JSON, gzips it at the fastest compression
// level (spec §6), and atomically replaces path.
func WriteGzipJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("atomicfile: marshal %s: %w", path, err)
	}

	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return fmt.Errorf("atomicfile: gzip writer %s: %w", path, err)
	}
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return fmt.Errorf("atomicfile: gzip write %s: %w", path, err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("atomicfile: gzip close %s: %w", path, err)
	}

	return writeAtomic(path, buf.Bytes())
}

// ReadGzipJSON reads, gunzips, and unmarshals path into v, retrying once
// on a transient missing-file error.
func ReadGzipJSON(path string, v interface{}) error {
	data, err := readWithRetry(path)
	if err != nil {
		return err
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("atomicfile: gzip reader %s: %w", path, err)
	}
	defer gr.Close()

	decompressed, err := io.ReadAll(gr)
	if err != nil {
		return fmt.Errorf("atomicfile: gzip read %s: %w", path, err)
	}

	if err := json.Unmarshal(decompressed, v); err != nil {
		return fmt.Errorf("atomicfile: unmarshal %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path currently exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readWithRetry(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Tolerate the narrow atomic-replace window; retry once.
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: close temp for %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: remove old %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: rename into %s: %w", path, err)
	}
	return nil
}
