// Package persist provides the atomic-file and metadata-header conventions
// shared by the coordinator's snapshot writer and the worker's chunk
// sidecar writes: every on-disk artifact is written to a temp file first
// and renamed into place, so a crash mid-write can never be mistaken for a
// valid file.
package persist

import (
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/fastrand"
)

const (
	// DefaultDiskPermissionsTest is used when creating files or
	// directories in tests.
	DefaultDiskPermissionsTest = 0750

	// randomBytes is the number of bytes of entropy used for generated
	// suffixes and ids.
	randomBytes = 20

	// tempSuffix is appended to the temporary/backup version of a file
	// while it is being written, before the atomic rename into place.
	tempSuffix = "_temp"
)

var (
	// ErrBadHeader indicates the file opened is not the file expected.
	ErrBadHeader = errors.New("wrong header")

	// ErrBadVersion indicates the version of the persisted data is not
	// compatible with the current codebase.
	ErrBadVersion = errors.New("incompatible version")

	// ErrFileInUse is returned if SaveJSON or LoadJSON is called on a
	// filename already being manipulated by another call in this process.
	ErrFileInUse = errors.New("another goroutine is already saving or loading this file")
)

var (
	activeFiles   = make(map[string]struct{})
	activeFilesMu sync.Mutex
)

// Metadata identifies the kind and schema version of a persisted file. It
// is embedded in the JSON envelope written by SaveJSON and checked by
// LoadJSON, so a future format change can be detected at load time instead
// of silently misreading old state.
type Metadata struct {
	Header  string `json:"header"`
	Version string `json:"version"`
}

type jsonEnvelope struct {
	Metadata
	Data json.RawMessage `json:"data"`
}

// RandomSuffix returns a 20-character base32 suffix with 100 bits of
// entropy, vanishingly unlikely to collide with an existing filename.
func RandomSuffix() string {
	str := base32.StdEncoding.EncodeToString(fastrand.Bytes(randomBytes))
	return str[:20]
}

// UID returns a hex-encoded unique id suitable for lease ids and similar
// ephemeral identifiers.
func UID() string {
	return hex.EncodeToString(fastrand.Bytes(randomBytes))
}

// RemoveFile removes a persisted file from disk along with any
// uncommitted temp file left behind by an interrupted save.
func RemoveFile(filename string) error {
	if err := os.RemoveAll(filename); err != nil {
		return err
	}
	return os.RemoveAll(filename + tempSuffix)
}

func lockFile(filename string) error {
	activeFilesMu.Lock()
	defer activeFilesMu.Unlock()
	if _, ok := activeFiles[filename]; ok {
		return ErrFileInUse
	}
	activeFiles[filename] = struct{}{}
	return nil
}

func unlockFile(filename string) {
	activeFilesMu.Lock()
	delete(activeFiles, filename)
	activeFilesMu.Unlock()
}

// SaveJSON writes data to filename as a JSON envelope carrying meta,
// via a temp-file-then-rename so a crash mid-write cannot corrupt the
// previous version. It fsyncs the temp file before renaming.
func SaveJSON(meta Metadata, data interface{}, filename string) error {
	if err := lockFile(filename); err != nil {
		return err
	}
	defer unlockFile(filename)

	raw, err := json.Marshal(data)
	if err != nil {
		return errors.AddContext(err, "could not marshal data")
	}
	envelope := jsonEnvelope{Metadata: meta, Data: raw}
	b, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return errors.AddContext(err, "could not marshal envelope")
	}

	tmp := filename + tempSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.AddContext(err, "could not create temp file")
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return errors.AddContext(err, "could not write temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.AddContext(err, "could not fsync temp file")
	}
	if err := f.Close(); err != nil {
		return errors.AddContext(err, "could not close temp file")
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return errors.AddContext(err, "could not create parent directory")
	}
	return os.Rename(tmp, filename)
}

// LoadJSON reads filename written by SaveJSON, verifying its header and
// version against expected before decoding the payload into data.
func LoadJSON(expected Metadata, data interface{}, filename string) error {
	if err := lockFile(filename); err != nil {
		return err
	}
	defer unlockFile(filename)

	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	var envelope jsonEnvelope
	if err := json.Unmarshal(b, &envelope); err != nil {
		return errors.AddContext(err, "could not decode envelope")
	}
	if envelope.Header != expected.Header {
		return ErrBadHeader
	}
	if envelope.Version != expected.Version {
		return ErrBadVersion
	}
	return json.Unmarshal(envelope.Data, data)
}
