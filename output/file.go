// Package output implements the rotating file output: a mutex-protected
// (fd, size) pair with a background helper goroutine that swaps in a new
// chunk once the active one crosses a size threshold.
package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/gopkg/concurrency/gopool"

	"github.com/ringlog/ringlog/format"
	"github.com/ringlog/ringlog/ostrbuf"
)

// Options configure a File output.
type Options struct {
	Perms          os.FileMode
	MaxSize        int64
	MaxCount       uint
	BufferCapacity int
}

// DefaultOptions mirrors the teacher's output_file::default_options: 1GB
// chunks, 128-deep rotation, no age limit (age-based rotation is not
// implemented).
func DefaultOptions() Options {
	return Options{
		Perms:          0666,
		MaxSize:        1 << 30,
		MaxCount:       128,
		BufferCapacity: 8192,
	}
}

// File is a rotating file output. Name follows the "prefix.#.suffix"
// protocol: "#" is replaced by a zero-padded chunk index. A symlink at the
// "#"-stripped name always points at the currently active chunk.
type File struct {
	fmt_ format.Formatter
	opts Options

	namePrefix string
	nameSuffix string
	symlink    string
	indexWidth int

	writeMu sync.Mutex
	fd      *os.File
	buf     *ostrbuf.FD
	size    int64
	index   uint

	rotateMu      sync.Mutex
	rotateCond    *sync.Cond
	rotatePending bool
	killed        bool
	done          chan struct{}
}

// NewFile opens (or resumes) a rotating file output at filename, which must
// contain exactly one '#' marking the index position, or no '#' at all, in
// which case chunks are named filename + "." + index and the symlink takes
// filename itself.
func NewFile(filename string, formatter format.Formatter, opts Options) (*File, error) {
	if opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}

	f := &File{
		fmt_: formatter,
		opts: opts,
		done: make(chan struct{}),
	}
	f.rotateCond = sync.NewCond(&f.rotateMu)
	f.splitName(filename)
	f.indexWidth = indexWidth(opts.MaxCount)

	f.index = f.readLink()
	name := f.currentName()

	fd, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_TRUNC, opts.Perms)
	if err != nil {
		return nil, fmt.Errorf("output: failed to open %s: %w", name, err)
	}
	f.fd = fd
	f.buf = ostrbuf.NewFDSize(fd, opts.BufferCapacity)

	if err := f.fmt_.Header(f.buf, name, true); err != nil {
		fd.Close()
		return nil, err
	}
	_ = f.buf.Flush()

	f.updateLink(name)

	gopool.Go(f.rotateLoop)

	return f, nil
}

// splitName divides "prefix.#.suffix" into a prefix/suffix pair and derives
// the stable symlink name. A filename with no '#' gets its index appended
// after a '.' ("plain.log" -> "plain.log.0"), and the symlink is the bare
// filename.
func (f *File) splitName(filename string) {
	idx := strings.IndexByte(filename, '#')
	if idx < 0 {
		f.namePrefix = filename + "."
		f.symlink = filename
		return
	}

	f.nameSuffix = filename[idx+1:]
	prefix := filename[:idx]
	symEnd := idx

	// Collapse a duplicated separator around '#' (e.g. "log.#.txt" splits
	// into prefix "log." and suffix ".txt"; the symlink should read
	// "log.txt", not "log..txt").
	if idx > 0 && idx+1 < len(filename) && filename[idx-1] == filename[idx+1] {
		symEnd = idx - 1
	}
	f.namePrefix = prefix
	f.symlink = filename[:symEnd] + f.nameSuffix
}

func indexWidth(maxCount uint) int {
	width := 1
	for step := uint(10); step < maxCount; step *= 10 {
		width++
	}
	return width
}

func (f *File) currentName() string {
	return fmt.Sprintf("%s%0*d%s", f.namePrefix, f.indexWidth, f.index, f.nameSuffix)
}

// readLink recovers the previous chunk index from the symlink left by an
// earlier run, advancing it by one so the new process doesn't overwrite the
// chunk that was active when it last exited. Any failure to parse or
// validate the link is treated as "no previous index" (0); the rotation
// protocol is self-healing.
func (f *File) readLink() uint {
	target, err := os.Readlink(f.symlink)
	if err != nil {
		return 0
	}

	str := target
	if !strings.HasPrefix(str, f.namePrefix) {
		return 0
	}
	str = str[len(f.namePrefix):]

	if f.nameSuffix != "" {
		pos := strings.Index(str, f.nameSuffix)
		if pos < 0 {
			return 0
		}
		str = str[:pos]
	}

	n, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0
	}
	index := uint(n)
	if index >= f.opts.MaxCount {
		return 0
	}
	index++
	if index >= f.opts.MaxCount {
		index = 0
	}
	return index
}

// updateLink atomically repoints the symlink at name via a temporary link
// plus rename, so readers never observe a missing or half-written symlink.
func (f *File) updateLink(name string) {
	tmp := f.symlink + "$"
	_ = os.Remove(tmp)
	if err := os.Symlink(name, tmp); err != nil {
		return
	}
	_ = os.Rename(tmp, f.symlink)
}

// Write implements ostrbuf-style sink semantics for the formatter's body
// writes: take the write mutex, append to the buffered sink, update size,
// and wake the rotation helper if the active chunk has crossed MaxSize.
func (f *File) Write(p []byte) (int, error) {
	f.writeMu.Lock()
	n, err := f.buf.Write(p)
	if err == nil {
		f.size += int64(n)
		if f.size >= f.opts.MaxSize && !f.rotatePending {
			if f.rotateMu.TryLock() {
				f.rotatePending = true
				f.rotateCond.Signal()
				f.rotateMu.Unlock()
			}
		}
	}
	f.writeMu.Unlock()
	return n, err
}

// Flush flushes the active chunk's buffered writer.
func (f *File) Flush() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.buf.Flush()
}

// Failed reports whether the active chunk's sink has latched a failure.
// File rotation failures never set this; only a write/flush failure does,
// and it is never cleared automatically — per the protocol, a caller
// constructs a new File to resume.
func (f *File) Failed() bool {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.buf.Failed()
}

func (f *File) Err() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.buf.Err()
}

// Process renders one record through the configured formatter directly into
// this output.
func (f *File) Process(d format.Data) error {
	return f.fmt_.Process(f, d)
}

// Close signals the rotation helper to exit, writes the formatter footer,
// flushes and closes the active chunk.
func (f *File) Close() error {
	f.rotateMu.Lock()
	f.killed = true
	f.rotateCond.Signal()
	f.rotateMu.Unlock()
	<-f.done

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	_ = f.fmt_.Footer(f.buf, "")
	err := f.buf.Flush()
	f.fd.Close()
	return err
}

// rotateLoop is the rotation helper: it blocks on rotateCond until woken by
// a write crossing MaxSize (or by Close), and performs at most one rotation
// per wakeup.
func (f *File) rotateLoop() {
	defer close(f.done)

	f.rotateMu.Lock()
	for {
		f.rotateCond.Wait()
		if f.killed {
			f.rotateMu.Unlock()
			return
		}
		if f.rotatePending {
			f.doRotate()
			f.rotatePending = false
		}
	}
}

// doRotate opens the next chunk, writes its header, swaps it in under the
// write mutex, repoints the symlink, then writes the footer to the old
// chunk and closes it. If the open fails, the rotation is silently
// postponed: the active chunk keeps accumulating and the next write past
// MaxSize re-triggers this helper.
func (f *File) doRotate() {
	nextIndex := f.index + 1
	if nextIndex >= f.opts.MaxCount {
		nextIndex = 0
	}
	name := fmt.Sprintf("%s%0*d%s", f.namePrefix, f.indexWidth, nextIndex, f.nameSuffix)

	nfd, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_TRUNC, f.opts.Perms)
	if err != nil {
		return
	}

	nbuf := ostrbuf.NewFDSize(nfd, f.opts.BufferCapacity)
	if err := f.fmt_.Header(nbuf, name, false); err != nil {
		nfd.Close()
		return
	}
	if err := nbuf.Flush(); err != nil {
		nfd.Close()
		return
	}

	f.writeMu.Lock()
	oldFd, oldBuf := f.fd, f.buf
	f.fd, f.buf = nfd, nbuf
	f.size = 0
	f.index = nextIndex
	f.writeMu.Unlock()

	f.updateLink(name)

	_ = f.fmt_.Footer(oldBuf, name)
	_ = oldBuf.Flush()
	oldFd.Close()
}
