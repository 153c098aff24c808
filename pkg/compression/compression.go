// Package compression wraps raw byte streams in the decompressing reader
// selected by a configured strategy or, under detect, by file extension.
package compression

import (
	"bufio"
	"bytes"
	"context"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/utils"
	"github.com/datazip-inc/filetap/utils/logger"
)

type Strategy string

const (
	None   Strategy = "none"
	Zip    Strategy = "zip"
	Bz2    Strategy = "bz2"
	Gzip   Strategy = "gzip"
	Lzma   Strategy = "lzma"
	Xz     Strategy = "xz"
	Detect Strategy = constants.DetectValue
)

var strategies = []Strategy{None, Zip, Bz2, Gzip, Lzma, Xz, Detect}

// extensionCodecs is the single lookup table used by detect.
var extensionCodecs = map[string]Strategy{
	".zip":  Zip,
	".bz2":  Bz2,
	".gz":   Gzip,
	".lzma": Lzma,
	".xz":   Xz,
}

// ParseStrategy validates a configured compression value. Empty means detect.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return Detect, nil
	}
	st := Strategy(strings.ToLower(s))
	if !utils.ExistInArray(strategies, st) {
		return "", errs.New(errs.Configuration, "%q is not a valid 'compression', expected one of %v", s, strategies)
	}
	return st, nil
}

// DetectCodec maps a file name to its codec by extension. ok is false for
// unrecognized extensions, which are read as already decoded.
func DetectCodec(name string) (Strategy, bool) {
	codec, ok := extensionCodecs[strings.ToLower(path.Ext(name))]
	return codec, ok
}

// Stream is a decoded byte stream. Name is the effective name of the decoded
// content: the inner member for zip archives, the name without the codec
// extension when one was decoded, the original name otherwise.
type Stream struct {
	io.Reader
	Name string

	closers []func() error
}

// Close releases every resource held by the stream, innermost first.
func (s *Stream) Close() error {
	var errList []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	s.closers = nil
	return errors.Join(errList...)
}

func (s *Stream) push(closer func() error) {
	s.closers = append(s.closers, closer)
}

// Resolve wraps raw in the decoder for strategy. The returned stream owns raw;
// on error raw has already been closed.
func Resolve(name string, strategy Strategy, raw io.ReadCloser) (*Stream, error) {
	stream := &Stream{Reader: raw, Name: name}
	stream.push(raw.Close)

	if err := resolve(stream, strategy); err != nil {
		_ = stream.Close()
		var e *errs.Error
		if errors.As(err, &e) {
			if e.File == "" {
				return nil, e.WithFile(name, 0)
			}
			return nil, e
		}
		return nil, errs.Wrap(errs.Decompression, err, "failed to decode %s stream", strategy).WithFile(name, 0)
	}
	return stream, nil
}

func resolve(stream *Stream, strategy Strategy) error {
	codec := strategy
	if strategy == Detect {
		detected, ok := DetectCodec(stream.Name)
		if !ok {
			return nil
		}
		codec = detected
		logger.Debugf("Detected %s compression for %s", codec, stream.Name)
	}

	switch codec {
	case None:
		return nil
	case Zip:
		if err := openSingleMember(stream); err != nil {
			return err
		}
		if strategy == Detect {
			// the inner member name decides its own encoding
			return resolve(stream, Detect)
		}
		return nil
	case Gzip:
		zr, err := gzip.NewReader(stream.Reader)
		if err != nil {
			return err
		}
		stream.push(zr.Close)
		stream.Reader = zr
	case Bz2:
		br := bufio.NewReader(stream.Reader)
		magic, err := br.Peek(3)
		var e *errs.Error
		if errors.As(err, &e) {
			return err
		}
		if err != nil || !bytes.Equal(magic, []byte("BZh")) {
			return errs.New(errs.Decompression, "not a bzip2 stream")
		}
		stream.Reader = bzip2.NewReader(br)
	case Xz:
		xr, err := xz.NewReader(stream.Reader)
		if err != nil {
			return err
		}
		stream.Reader = xr
	case Lzma:
		br := bufio.NewReader(stream.Reader)
		// .lzma files are sometimes xz containers
		if magic, _ := br.Peek(len(xzMagic)); bytes.Equal(magic, xzMagic) {
			xr, err := xz.NewReader(br)
			if err != nil {
				return err
			}
			stream.Reader = xr
			break
		}
		lr, err := lzma.NewReader(br)
		if err != nil {
			return err
		}
		stream.Reader = lr
	default:
		return errs.New(errs.Configuration, "unsupported compression %q", codec)
	}

	if ext, ok := DetectCodec(stream.Name); ok && ext == codec {
		stream.Name = strings.TrimSuffix(stream.Name, path.Ext(stream.Name))
	}
	stream.Reader = &decodeErrorReader{r: stream.Reader, name: stream.Name}
	return nil
}

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// openSingleMember replaces the stream's reader with the only file in the zip
// archive. zip needs random access, so non-file streams are spooled to disk.
func openSingleMember(stream *Stream) error {
	file, ok := stream.Reader.(*os.File)
	if !ok {
		spooled, err := utils.SpoolToTemp("", stream.Reader)
		if err != nil {
			return errs.Wrap(errs.Transient, err, "failed to buffer zip archive")
		}
		stream.push(func() error {
			utils.RemoveFile(spooled)
			return nil
		})
		file = spooled
	}

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat zip archive: %s", err)
	}
	zr, err := zip.NewReader(file, info.Size())
	if err != nil {
		return err
	}

	var members []*zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			members = append(members, f)
		}
	}
	switch len(members) {
	case 0:
		return errs.New(errs.Decompression, "zip archive has no members")
	case 1:
	default:
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Name)
		}
		return errs.New(errs.AmbiguousArchive, "zip archive has %d members %v, expected exactly one", len(members), names)
	}

	member := members[0]
	rc, err := member.Open()
	if err != nil {
		return err
	}
	stream.push(rc.Close)
	stream.Reader = &decodeErrorReader{r: rc, name: member.Name}
	stream.Name = member.Name
	logger.Debugf("Reading zip member %s", member.Name)
	return nil
}

// decodeErrorReader classifies read failures of a decoder as decompression errors.
type decodeErrorReader struct {
	r    io.Reader
	name string
}

func (d *decodeErrorReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		var e *errs.Error
		if !errors.As(err, &e) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = errs.Wrap(errs.Decompression, err, "failed to decode stream").WithFile(d.name, 0)
		}
	}
	return n, err
}
