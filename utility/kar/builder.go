// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/pierrec/lz4"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) (*Builder, error) {
	temp, err := ioutil.TempDir("", "karBuilder")
	if err != nil {
		return nil, err
	}
	return &Builder{
		tempDir: temp,
		header:  header,
		names:   make(map[string]struct{}),
	}, nil
}

type tempFile struct {

	// Name is the actual name of the file
	Name string

	// TempName is the temporary file holding the compressed data
	TempName string

	// Size in uncompressed state
	Size int64

	Compressed int64
}

// Builder is the high level builder for the archive format.
// Arhives are versioned and cannot be appended to, This Builder
// is the way to create an archive. Whenever Add is called, Builder
// will store compressed files in a temporary dir, then finally
// bundle them togeter and write them out with WriteTo. Close
// removes the temporary dir.
type Builder struct {
	tempDir string
	header  Header

	mutex  sync.Mutex
	files  []tempFile
	names  map[string]struct{}
	closed bool
}

// Add compresses everything read from r into the builder with a given
// name. Will block until lz4 finishes compression. Is safe to use
// concurrently in different goroutines, files are written in the
// order Add returns.
func (b *Builder) Add(name string, r io.Reader) error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return ErrClosed
	}
	if _, ok := b.names[name]; ok {
		b.mutex.Unlock()
		return fmt.Errorf("kar.Add(%s): %w", name, ErrDuplicateName)
	}
	b.names[name] = struct{}{}
	b.mutex.Unlock()

	f, err := ioutil.TempFile(b.tempDir, "entry")
	if err != nil {
		b.forget(name)
		return err
	}
	defer f.Close()

	writer := lz4.NewWriter(f)
	written, err := io.Copy(writer, r)
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		b.forget(name)
		os.Remove(f.Name())
		return err
	}
	info, err := f.Stat()
	if err != nil {
		b.forget(name)
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = append(b.files, tempFile{
		Name:       name,
		TempName:   f.Name(),
		Size:       written,
		Compressed: info.Size(),
	})
	return nil
}

func (b *Builder) forget(name string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.names, name)
}

// Len returns the number of files added.
func (b *Builder) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.files)
}

// Contains reports whether a file called name was added.
func (b *Builder) Contains(name string) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	_, ok := b.names[name]
	return ok
}

// WriteTo bundles and writes all of the files added to the Builder
// into a kar archive that is ready to use.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	header := b.header
	header.Index = nil
	var offset int64
	for _, v := range b.files {
		header.Index = append(header.Index, IndexEntry{
			Name:           v.Name,
			Offset:         offset,
			Size:           v.Size,
			CompressedSize: v.Compressed,
		})
		offset += v.Compressed
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, chunk := range [][]byte{magic[:], int64ToBinary(int64(len(rawHeader))), rawHeader} {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	for _, v := range b.files {
		n, err := copyFile(w, v.TempName)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func copyFile(w io.Writer, name string) (int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Close removes the temporary files. The builder cannot be used after.
func (b *Builder) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.files = nil
	return os.RemoveAll(b.tempDir)
}
