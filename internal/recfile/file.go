package recfile

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoFooter is returned when a file does not end with a footer line
var ErrNoFooter = errors.New("recording has no footer")

const scanChunk = 4096

// IsCompressed reports whether path names a gzip recording
func IsCompressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ExtCompressed)
}

// IsRecording reports whether path has a recording extension
func IsRecording(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ExtCompressed || ext == ExtRaw
}

// DefaultName returns the timestamped file name used when only a directory is given
func DefaultName(now time.Time, compress bool) string {
	ext := ExtRaw
	if compress {
		ext = ExtCompressed
	}
	return FilePrefix + now.Format(TimestampLayout) + ext
}

// ResolveOutput turns a user supplied output into a file path: empty means the
// working directory, an existing directory or a trailing separator gets the
// default name appended, anything else is used as is.
func ResolveOutput(path string, compress bool, now time.Time) (string, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, DefaultName(now, compress)), nil
	}

	if strings.HasSuffix(path, string(os.PathSeparator)) || strings.HasSuffix(path, "/") {
		return filepath.Join(path, DefaultName(now, compress)), nil
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, DefaultName(now, compress)), nil
	}

	return path, nil
}

// Playlist lists the recordings in dir, sorted by name
func Playlist(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsRecording(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ScanFooter finds the last line of r by scanning backwards from size and
// parses it as the footer. Only the tail of the file is read.
func ScanFooter(r io.ReaderAt, size int64) (Footer, error) {
	if size <= 0 {
		return Footer{}, ErrNoFooter
	}

	end := size
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, end-1); err != nil {
		return Footer{}, err
	}
	if last[0] == '\n' {
		end--
	}

	var tail []byte
	buf := make([]byte, scanChunk)
	pos := end
	for pos > 0 {
		n := int64(scanChunk)
		if pos < n {
			n = pos
		}
		pos -= n

		chunk := buf[:n]
		if _, err := r.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return Footer{}, err
		}

		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			tail = append(append([]byte(nil), chunk[i+1:]...), tail...)
			break
		}
		tail = append(append([]byte(nil), chunk...), tail...)
	}

	if len(tail) == 0 || tail[0] != FooterMarker {
		return Footer{}, ErrNoFooter
	}
	return ParseFooter(string(tail))
}

// Recording is a loaded recording file whose footer has been read
type Recording struct {
	Path   string
	Footer Footer

	// plain is the uncompressed data; a temp file for .artrec inputs
	plain string
	temp  bool
}

// Load reads the footer of a recording. Compressed files are first inflated
// into a temporary file so the footer can be found by seeking; Close removes it.
func Load(path string) (*Recording, error) {
	rec := &Recording{Path: path, plain: path}

	if IsCompressed(path) {
		tmp, err := inflate(path)
		if err != nil {
			return nil, err
		}
		rec.plain = tmp
		rec.temp = true
	}

	f, err := os.Open(rec.plain)
	if err != nil {
		rec.Close()
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		rec.Close()
		return nil, err
	}

	footer, err := ScanFooter(f, info.Size())
	if err != nil {
		rec.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	rec.Footer = footer

	return rec, nil
}

// Close removes the temporary inflated copy, if any
func (r *Recording) Close() error {
	if r.temp {
		r.temp = false
		return os.Remove(r.plain)
	}
	return nil
}

// Open returns a forward reader over the data lines
func (r *Recording) Open() (*Reader, error) {
	f, err := os.Open(r.plain)
	if err != nil {
		return nil, err
	}
	return NewReader(f), nil
}

func inflate(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	zr, err := gzip.NewReader(src)
	if err != nil {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	dst, err := os.CreateTemp("", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"_*.txt")
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, zr); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// Reader reads frames line by line
type Reader struct {
	rc   io.ReadCloser
	br   *bufio.Reader
	line int
}

// NewReader wraps rc; Close closes it
func NewReader(rc io.ReadCloser) *Reader {
	return &Reader{rc: rc, br: bufio.NewReaderSize(rc, 64*1024)}
}

// Next returns the next frame. It returns io.EOF at the footer or the end of
// the data, and a *FormatError for a malformed line.
func (r *Reader) Next() (Frame, error) {
	for {
		text, err := r.br.ReadString('\n')
		if text == "" && err != nil {
			if errors.Is(err, io.EOF) {
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}
		r.line++

		if IsFooter(text) {
			return Frame{}, io.EOF
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		f, perr := ParseFrame(text)
		if perr != nil {
			var fe *FormatError
			if errors.As(perr, &fe) {
				fe.Line = r.line
			}
			return Frame{}, perr
		}
		return f, nil
	}
}

// Close closes the underlying file
func (r *Reader) Close() error {
	return r.rc.Close()
}

// Writer writes frames and the footer
type Writer struct {
	bw  *bufio.Writer
	buf []byte
}

// NewWriter buffers writes to w; call Flush when done
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 64*1024)}
}

// WriteFrame appends one data line
func (w *Writer) WriteFrame(f Frame) error {
	w.buf = AppendFrame(w.buf[:0], f)
	_, err := w.bw.Write(w.buf)
	return err
}

// WriteFooter appends the footer line
func (w *Writer) WriteFooter(f Footer) error {
	_, err := w.bw.WriteString(f.Line())
	return err
}

// Flush writes buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Compress gzips src into dst
func Compress(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Move renames src to dst, copying when they are on different filesystems
func Move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		in.Close()
		return err
	}
	_, err = io.Copy(out, in)
	in.Close()
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
