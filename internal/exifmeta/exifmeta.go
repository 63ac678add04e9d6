// Package exifmeta reads and writes the capture-time EXIF fields of JPEG and
// PNG images.
package exifmeta

import (
	"bytes"
	"fmt"

	dexif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/hpungsan/gphotosync/internal/errors"
)

// Capture-time tags written by the codec. Both live in the Exif sub-IFD.
const (
	TagDateTimeOriginal  = "DateTimeOriginal"
	TagDateTimeDigitized = "DateTimeDigitized"
)

const exifIfdPath = "IFD/Exif"

// CreationTimeKeyword is the PNG tEXt keyword some viewers read instead of
// EXIF. The codec writes it next to the EXIF block of every PNG.
const CreationTimeKeyword = "Creation Time"

// Codec edits capture-time metadata in memory.
type Codec struct{}

// container abstracts the two image formats the codec can edit.
type container interface {
	hasExif() bool
	builder() (*dexif.IfdBuilder, error)
	setExif(ib *dexif.IfdBuilder) error
	setCreationTime(value string)
	encode() ([]byte, error)
}

// Rewrite sets DateTimeOriginal and DateTimeDigitized to value, an EXIF
// "2006:01:02 15:04:05" string, keeping every other tag.
//
// It fails with MISSING_METADATA only when the image carries no EXIF block,
// with UNREADABLE_METADATA when a block exists but cannot be rebuilt, and
// with UNSUPPORTED_FORMAT for anything but JPEG and PNG.
func (Codec) Rewrite(data []byte, name, value string) (out []byte, err error) {
	c, err := open(data, name)
	if err != nil {
		return nil, err
	}
	if !c.hasExif() {
		return nil, errors.NewMissingMetadata(name)
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, errors.NewUnreadableMetadata(name, fmt.Errorf("%v", r))
		}
	}()
	rootIb, err := c.builder()
	if err != nil {
		return nil, errors.NewUnreadableMetadata(name, err)
	}
	if err := setCaptureTime(rootIb, value); err != nil {
		return nil, errors.NewUnreadableMetadata(name, err)
	}
	if err := c.setExif(rootIb); err != nil {
		return nil, fmt.Errorf("write exif of %s: %w", name, err)
	}
	c.setCreationTime(value)
	return c.encode()
}

// Synthesize replaces any EXIF block with one holding only the two capture
// time fields.
func (Codec) Synthesize(data []byte, name, value string) (out []byte, err error) {
	defer recoverInto(&err, name)

	c, err := open(data, name)
	if err != nil {
		return nil, err
	}
	rootIb, err := newRootBuilder()
	if err != nil {
		return nil, err
	}
	if err := setCaptureTime(rootIb, value); err != nil {
		return nil, fmt.Errorf("set capture time of %s: %w", name, err)
	}
	if err := c.setExif(rootIb); err != nil {
		return nil, fmt.Errorf("write exif of %s: %w", name, err)
	}
	c.setCreationTime(value)
	return c.encode()
}

// ReadField returns the string value of an EXIF field. A missing EXIF block
// or a missing tag reports ok == false without an error.
func ReadField(data []byte, field exif.FieldName) (value string, ok bool, err error) {
	raw, err := exifPayload(data)
	if err != nil || raw == nil {
		return "", false, err
	}
	x, err := exif.Decode(bytes.NewReader(raw))
	// a broken sub-IFD still yields the tags that did decode
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return "", false, nil
	}
	tag, err := x.Get(field)
	if err != nil {
		if _, absent := err.(exif.TagNotPresentError); absent {
			return "", false, nil
		}
		return "", false, err
	}
	s, err := tag.StringVal()
	if err != nil {
		return tag.String(), true, nil
	}
	return s, true, nil
}

// exifPayload returns bytes goexif can decode: the whole file for JPEG, the
// raw eXIf chunk for PNG, nil when there is nothing to read.
func exifPayload(data []byte) ([]byte, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/jpeg"):
		return data, nil
	case mt.Is("image/png"):
		cs, err := parsePNG(data)
		if err != nil {
			return nil, err
		}
		_, raw, err := cs.Exif()
		if err != nil {
			return nil, nil
		}
		return raw, nil
	default:
		return nil, errors.NewUnsupportedFormat("", mt.String())
	}
}

func open(data []byte, name string) (container, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/jpeg"):
		sl, err := parseJPEG(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return &jpegContainer{sl: sl}, nil
	case mt.Is("image/png"):
		cs, err := parsePNG(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return &pngContainer{cs: cs}, nil
	default:
		return nil, errors.NewUnsupportedFormat(name, mt.String())
	}
}

func parseJPEG(data []byte) (*jpegstructure.SegmentList, error) {
	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, err
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("unexpected jpeg media context %T", mc)
	}
	return sl, nil
}

func parsePNG(data []byte) (*pngstructure.ChunkSlice, error) {
	mc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, err
	}
	cs, ok := mc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, fmt.Errorf("unexpected png media context %T", mc)
	}
	return cs, nil
}

func newRootBuilder() (*dexif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, err
	}
	ti := dexif.NewTagIndex()
	return dexif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

func setCaptureTime(rootIb *dexif.IfdBuilder, value string) error {
	exifIb, err := dexif.GetOrCreateIbFromRootIb(rootIb, exifIfdPath)
	if err != nil {
		return err
	}
	for _, tag := range []string{TagDateTimeOriginal, TagDateTimeDigitized} {
		if err := exifIb.SetStandardWithName(tag, value); err != nil {
			return fmt.Errorf("%s: %w", tag, err)
		}
	}
	return nil
}

// recoverInto turns a panic from the EXIF libraries into an error.
func recoverInto(err *error, name string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("edit exif of %s: %v", name, r)
	}
}

type jpegContainer struct {
	sl *jpegstructure.SegmentList
}

func (c *jpegContainer) hasExif() bool {
	for _, s := range c.sl.Segments() {
		if s.IsExif() {
			return true
		}
	}
	return false
}

func (c *jpegContainer) builder() (*dexif.IfdBuilder, error) {
	return c.sl.ConstructExifBuilder()
}

func (c *jpegContainer) setExif(ib *dexif.IfdBuilder) error {
	return c.sl.SetExif(ib)
}

// JPEG viewers read the EXIF capture time only.
func (c *jpegContainer) setCreationTime(string) {}

func (c *jpegContainer) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.sl.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type pngContainer struct {
	cs *pngstructure.ChunkSlice
}

func (c *pngContainer) hasExif() bool {
	_, ok := c.cs.Index()["eXIf"]
	return ok
}

func (c *pngContainer) builder() (*dexif.IfdBuilder, error) {
	return c.cs.ConstructExifBuilder()
}

func (c *pngContainer) setExif(ib *dexif.IfdBuilder) error {
	return c.cs.SetExif(ib)
}

// setCreationTime replaces any "Creation Time" tEXt chunk with one holding
// value, placed right after IHDR.
func (c *pngContainer) setCreationTime(value string) {
	prefix := []byte(CreationTimeKeyword + "\x00")
	data := append(append([]byte{}, prefix...), value...)
	text := &pngstructure.Chunk{
		Type:   "tEXt",
		Length: uint32(len(data)),
		Data:   data,
	}
	text.UpdateCrc32()

	var chunks []*pngstructure.Chunk
	for _, ch := range c.cs.Chunks() {
		if ch.Type == "tEXt" && bytes.HasPrefix(ch.Data, prefix) {
			continue
		}
		chunks = append(chunks, ch)
		if ch.Type == "IHDR" {
			chunks = append(chunks, text)
		}
	}
	c.cs = pngstructure.NewChunkSlice(chunks)
}

func (c *pngContainer) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.cs.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
