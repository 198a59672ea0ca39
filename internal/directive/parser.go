package directive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fhoech/goopi/internal/oplog"
)

type state int

const (
	statePassthrough state = iota
	stateHeader
	statePlaceholder
)

// passthroughChunk caps how many passthrough bytes accumulate before a
// segment is emitted.
const passthroughChunk = 64 * 1024

// Parser consumes a PostScript document stream and produces Segments.
//
// Parser reads strictly left to right and is not safe for concurrent
// use. Directive regions are buffered whole; passthrough content is
// emitted in bounded chunks.
type Parser struct {
	r       *bufio.Reader
	log     oplog.Logger
	off     int64 // offset of the next byte handed to the state machine
	pending []byte
	readErr error

	state state
	pbuf  bytes.Buffer // accumulated passthrough
	dbuf  bytes.Buffer // raw bytes of the open directive region
	cur   *Directive
	depth int // open Begin markers inside the directive region

	// continuation targets for %%+ lines
	contTag     string
	contGrayMap bool

	// nesting depth of %%BeginDocument regions inside the placeholder
	skipDoc int

	queue []*Segment
}

// NewParser returns a Parser over r. log may be nil.
func NewParser(r io.Reader, log oplog.Logger) *Parser {
	if log == nil {
		log = oplog.NopLogger{}
	}
	return &Parser{r: bufio.NewReaderSize(r, 64*1024), log: log}
}

// Next returns the next Segment, or io.EOF when the stream is exhausted.
// An open directive at end of stream yields ErrUnterminated.
func (p *Parser) Next() (*Segment, error) {
	for {
		if len(p.queue) > 0 {
			seg := p.queue[0]
			p.queue = p.queue[1:]
			return seg, nil
		}
		line, err := p.nextLine()
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			if p.state != statePassthrough {
				return nil, fmt.Errorf("%w at byte %d (reference %q)",
					ErrUnterminated, p.cur.Offset, p.cur.FileName)
			}
			if p.pbuf.Len() > 0 {
				seg := &Segment{Raw: append([]byte(nil), p.pbuf.Bytes()...)}
				p.pbuf.Reset()
				return seg, nil
			}
			return nil, io.EOF
		}
		p.process(line)
	}
}

// nextLine returns the next line including its terminator. Lines end at
// '\n', '\r' or "\r\n" (classic Mac streams use bare '\r').
func (p *Parser) nextLine() ([]byte, error) {
	for {
		if len(p.pending) > 0 {
			return p.popSubline(), nil
		}
		if p.readErr != nil {
			return nil, p.readErr
		}
		chunk, err := p.r.ReadBytes('\n')
		if err != nil {
			p.readErr = err
		}
		if len(chunk) > 0 {
			p.pending = chunk
		} else if p.readErr != nil {
			return nil, p.readErr
		}
	}
}

// popSubline splits p.pending at the first '\r' so bare-CR line endings
// inside a '\n'-delimited chunk still form their own lines.
func (p *Parser) popSubline() []byte {
	i := bytes.IndexByte(p.pending, '\r')
	if i < 0 {
		line := p.pending
		p.pending = nil
		return line
	}
	end := i + 1
	if end < len(p.pending) && p.pending[end] == '\n' {
		end++
	}
	line := p.pending[:end]
	p.pending = p.pending[end:]
	if len(p.pending) == 0 {
		p.pending = nil
	}
	return line
}

// readRaw consumes exactly n bytes from the stream (draining any pending
// line remainder first) and returns them. Used for %%BeginData regions
// whose declared byte count makes marker scanning unnecessary.
func (p *Parser) readRaw(n int64) ([]byte, error) {
	out := make([]byte, 0, n)
	if len(p.pending) > 0 {
		take := int64(len(p.pending))
		if take > n {
			take = n
		}
		out = append(out, p.pending[:take]...)
		p.pending = p.pending[take:]
		if len(p.pending) == 0 {
			p.pending = nil
		}
		n -= take
	}
	if n > 0 {
		rest := make([]byte, n)
		if _, err := io.ReadFull(p.r, rest); err != nil {
			p.readErr = io.EOF
			out = append(out, rest...)
			return out, err
		}
		out = append(out, rest...)
	}
	return out, nil
}

func (p *Parser) emitPassthrough() {
	if p.pbuf.Len() == 0 {
		return
	}
	p.queue = append(p.queue, &Segment{Raw: append([]byte(nil), p.pbuf.Bytes()...)})
	p.pbuf.Reset()
}

func (p *Parser) process(line []byte) {
	p.off += int64(len(line))
	switch p.state {
	case statePassthrough:
		p.passthroughLine(line)
	case stateHeader:
		p.headerLine(line)
	case statePlaceholder:
		p.placeholderLine(line)
	}
}

// passthroughLine scans for a begin marker. Anything before the marker,
// and any line without one, is ordinary content.
func (p *Parser) passthroughLine(line []byte) {
	i := bytes.Index(line, []byte("%ALD"))
	if i < 0 {
		i = bytes.Index(line, []byte("%%BeginOPI"))
	}
	if i < 0 {
		p.pbuf.Write(line)
		if p.pbuf.Len() >= passthroughChunk {
			p.emitPassthrough()
		}
		return
	}
	marker := line[i:]
	key, value := splitKeyValue(string(marker))
	start := p.off - int64(len(marker))
	switch key {
	case "%%BeginOPI:":
		p.pbuf.Write(line[:i])
		p.emitPassthrough()
		p.openDirective(start, marker)
		p.cur.Version20 = true
		p.depth = 1
		p.log.Debug("directive begin", oplog.String("marker", key), oplog.Int64("offset", start))
	case "%ALDImageFileName:", "%ALDImageID:":
		p.pbuf.Write(line[:i])
		p.emitPassthrough()
		p.openDirective(start, marker)
		p.cur.Version13 = true
		name := cleanFileName(value)
		if key == "%ALDImageID:" {
			p.cur.ID = name
		}
		p.cur.FileName = name
		p.log.Debug("directive begin", oplog.String("marker", key), oplog.String("ref", name))
	default:
		// Some other %ALD key with no open directive: ordinary content.
		p.pbuf.Write(line)
		if p.pbuf.Len() >= passthroughChunk {
			p.emitPassthrough()
		}
	}
}

func (p *Parser) openDirective(start int64, firstLine []byte) {
	p.state = stateHeader
	p.cur = &Directive{Offset: start, Tint: -1}
	p.depth = 0
	p.contTag = ""
	p.contGrayMap = false
	p.skipDoc = 0
	p.dbuf.Reset()
	p.dbuf.Write(firstLine)
}

// abandon treats the open directive region as ordinary content and
// returns to passthrough. reason is logged; no directive is synthesized.
func (p *Parser) abandon(reason string) {
	p.log.Warn("malformed directive treated as content",
		oplog.String("reason", reason),
		oplog.Int64("offset", p.cur.Offset))
	p.pbuf.Write(p.dbuf.Bytes())
	p.dbuf.Reset()
	p.cur = nil
	p.state = statePassthrough
	p.emitPassthrough()
}

// complete closes the directive region and queues its segment.
func (p *Parser) complete() {
	seg := &Segment{
		Raw: append([]byte(nil), p.dbuf.Bytes()...),
		Dir: p.cur,
	}
	p.queue = append(p.queue, seg)
	p.dbuf.Reset()
	p.cur = nil
	p.state = statePassthrough
}

func (p *Parser) headerLine(line []byte) {
	p.dbuf.Write(line)
	trimmed := strings.TrimSpace(string(line))
	key, value := splitKeyValue(trimmed)

	// Continuation lines extend the preceding TIFF ASCII tag or gray map.
	if key == "%%+" {
		if p.contTag != "" {
			p.cur.ASCIITags[p.contTag] = append(p.cur.ASCIITags[p.contTag], trimParens(value))
		} else if p.contGrayMap {
			p.cur.GrayMap = append(p.cur.GrayMap, intList(value))
		}
		return
	}
	p.contTag = ""
	p.contGrayMap = false

	switch key {
	case "%%BeginOPI:":
		if p.cur.Version20 {
			// Nested directives are not supported; the outer region
			// becomes ordinary content and this marker starts fresh.
			p.nestedRestart(line)
			return
		}
		p.cur.Version20 = true
		p.depth++
	case "%ALDImageFileName:", "%%ImageFileName:":
		if key == "%ALDImageFileName:" {
			p.cur.Version13 = true
		}
		p.cur.FileName = cleanFileName(value)
	case "%ALDImageID:":
		p.cur.Version13 = true
		p.cur.ID = cleanFileName(value)
		if p.cur.FileName == "" {
			p.cur.FileName = p.cur.ID
		}
	case "%%MainImage:":
		p.cur.MainImage = cleanFileName(value)
		if p.cur.FileName == "" {
			p.cur.FileName = p.cur.MainImage
		}
	case "%%Distilled":
		p.cur.Distilled = true
	case "%ALDObjectComments:":
		p.cur.ObjectComments = value
	case "%ALDImageDimensions:", "%%ImageDimensions:":
		p.cur.Dimensions = floatList(value)
	case "%ALDImageCropRect:":
		p.cur.CropRect = intList(value)
		if len(p.cur.CropFixed) == 0 {
			p.cur.CropFixed = floatList(value)
		}
	case "%ALDImageCropFixed:", "%%ImageCropRect:":
		p.cur.CropFixed = floatList(value)
		if len(p.cur.CropRect) == 0 {
			p.cur.CropRect = intList(value)
		}
	case "%ALDImagePosition:":
		p.cur.Position = floatList(value)
	case "%ALDImageResolution:":
		p.cur.Resolution = floatList(value)
	case "%ALDImageColorType:":
		p.cur.ColorType = value
	case "%ALDImageColor:":
		p.cur.Color, p.cur.ColorName = parseColor(value)
	case "%ALDImageTint:":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			p.cur.Tint = f
		}
	case "%ALDImageOverprint:", "%%ImageOverprint:":
		b := parseBool(value)
		p.cur.Overprint = &b
	case "%ALDImageType:":
		p.cur.ImageType = floatList(value)
	case "%ALDImageGrayMap:":
		p.cur.GrayMap = [][]int{intList(value)}
		p.contGrayMap = true
	case "%ALDImageTransparency:":
		b := parseBool(value)
		p.cur.Transparency = &b
	case "%%TIFFASCIITag:":
		tag, rest := splitKeyValue(value)
		p.setASCIITag(tag, trimParens(rest))
	case "%%ImageInks:":
		p.cur.Inks = value
	case "%%BeginIncludedImage":
		p.state = statePlaceholder
	case "%%BeginObject:":
		p.depth++
		if value == "image" {
			p.state = statePlaceholder
		}
	case "%%EndObject", "%%EndOPI":
		p.depth--
		if p.depth <= 0 {
			p.complete()
		}
	default:
		if strings.HasPrefix(key, "%ALDImageAsciiTag") {
			tag := strings.TrimSuffix(strings.TrimPrefix(key, "%ALDImageAsciiTag"), ":")
			p.setASCIITag(tag, value)
			return
		}
		// Anything else between the begin marker and the placeholder is
		// graphics state the replacement block must restore.
		if trimmed != "" {
			p.cur.GfxState = append(p.cur.GfxState, trimRight(string(line)))
		}
	}
}

// nestedRestart abandons the outer directive and reopens with line as a
// fresh begin marker.
func (p *Parser) nestedRestart(line []byte) {
	// The nested marker was already written to dbuf by headerLine;
	// remove it so it is not doubled when the region is flushed.
	p.dbuf.Truncate(p.dbuf.Len() - len(line))
	start := p.off - int64(len(line))
	p.abandon("nested begin marker")
	p.openDirective(start, line)
	p.cur.Version20 = true
	p.depth = 1
}

func (p *Parser) setASCIITag(tag, value string) {
	if p.cur.ASCIITags == nil {
		p.cur.ASCIITags = make(map[string][]string)
	}
	p.cur.ASCIITags[tag] = []string{value}
	p.contTag = tag
	p.contGrayMap = false
}

func (p *Parser) placeholderLine(line []byte) {
	p.dbuf.Write(line)
	trimmed := strings.TrimSpace(string(line))
	key, value := splitKeyValue(trimmed)

	if p.skipDoc > 0 {
		switch key {
		case "%%BeginDocument:":
			p.skipDoc++
		case "%%EndDocument":
			p.skipDoc--
		}
		return
	}

	switch key {
	case "%%IncludedImageDimensions:":
		p.cur.IncludedDimensions = intList(value)
	case "%%BeginDocument:":
		p.skipDoc++
	case "%%BeginData:", "%%BeginBinary:":
		p.consumeData(key, value)
	case "%%BeginObject:":
		p.depth++
	case "%%EndObject", "%%EndOPI":
		p.depth--
		if p.depth <= 0 {
			p.complete()
		}
	}
}

// consumeData swallows the body of a %%BeginData / %%BeginBinary region
// using its declared size, so binary proxy bytes can never be mistaken
// for markers. An unparsable count falls back to marker scanning.
func (p *Parser) consumeData(key, value string) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || n < 0 {
		return
	}
	unit := "Bytes"
	if len(fields) >= 3 {
		unit = fields[2]
	}
	if strings.EqualFold(unit, "Lines") {
		for i := int64(0); i < n; i++ {
			l, err := p.nextLine()
			if err != nil {
				return
			}
			p.off += int64(len(l))
			p.dbuf.Write(l)
		}
		return
	}
	raw, err := p.readRaw(n)
	p.off += int64(len(raw))
	p.dbuf.Write(raw)
	_ = err // EOF here surfaces as an unterminated directive
}

func trimParens(v string) string {
	v = strings.TrimPrefix(v, "(")
	return strings.TrimSuffix(v, ")")
}

func trimRight(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}
