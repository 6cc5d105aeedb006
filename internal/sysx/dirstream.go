package sysx

import (
	"bytes"
	"context"
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// direntBufSize is the getdents64 read granularity. Large enough that a
// typical directory needs a single kernel round-trip.
const direntBufSize = 8192

// Dirent is one decoded linux_dirent64 record.
type Dirent struct {
	Ino  uint64
	Type uint8
	Name string
}

// DirStream reads directory entries from an fd it owns via getdents64.
//
// The stream takes ownership of fd on construction: Close releases it.
// There is no rewind; once exhausted the stream stays exhausted, which
// matches how the iterator consumes frames.
type DirStream struct {
	fd  int
	buf []byte
	off int
	n   int
}

// NewDirStream wraps fd, which must refer to an open directory. The
// stream owns fd from this point on.
func NewDirStream(fd int) *DirStream {
	return &DirStream{
		fd:  fd,
		buf: make([]byte, direntBufSize),
	}
}

// Fd returns the underlying directory descriptor. The caller must not
// close it.
func (d *DirStream) Fd() int {
	return d.fd
}

// Next returns the next entry, or (nil, nil) at end of directory.
// Entries the kernel has marked deleted (inode 0) are skipped.
func (d *DirStream) Next(ctx context.Context) (*Dirent, error) {
	for {
		if d.off >= d.n {
			var n int
			err := Retry(ctx, func() error {
				var err error
				n, err = unix.Getdents(d.fd, d.buf)
				return err
			})
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, nil
			}
			d.off = 0
			d.n = n
		}

		// linux_dirent64: ino u64, off s64, reclen u16, type u8, name...
		rec := d.buf[d.off:d.n]
		if len(rec) < 19 {
			return nil, unix.EBADMSG
		}
		reclen := int(binary.NativeEndian.Uint16(rec[16:18]))
		if reclen < 19 || reclen > len(rec) {
			return nil, unix.EBADMSG
		}
		d.off += reclen

		ino := binary.NativeEndian.Uint64(rec[0:8])
		if ino == 0 {
			continue
		}

		name := rec[19:reclen]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}

		return &Dirent{
			Ino:  ino,
			Type: rec[18],
			Name: string(name),
		}, nil
	}
}

// Close releases the owned directory descriptor.
func (d *DirStream) Close() error {
	if d.fd < 0 {
		return nil
	}
	fd := d.fd
	d.fd = -1
	return unix.Close(fd)
}
