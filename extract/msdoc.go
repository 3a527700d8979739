package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
)

// StageDocSalvage is recorded when the piece table is unreadable and text is
// salvaged from the raw WordDocument stream.
const StageDocSalvage = "doc-salvage"

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// maxWordStream caps each compound-file stream read into memory.
const maxWordStream = 64 << 20

func isCompoundFile(data []byte) bool {
	return bytes.HasPrefix(data, oleMagic)
}

// extractLegacyDoc reads a Word 97-2003 binary document.
func extractLegacyDoc(data []byte) (string, []Attempt, error) {
	streams, err := readWordStreams(data)
	if err != nil {
		return "", []Attempt{{Stage: StageDoc, Outcome: OutcomeFailed, Err: err}}, err
	}

	text, err := decodePieceTable(streams)
	if err == nil {
		return text, []Attempt{{Stage: StageDoc, Outcome: OutcomeSuccess, Text: text}}, nil
	}
	attempts := []Attempt{{Stage: StageDoc, Outcome: OutcomeFailed, Err: err}}
	if errors.Is(err, ErrEncrypted) {
		return "", attempts, err
	}

	salvaged := salvageText(streams["WordDocument"])
	if salvaged == "" {
		serr := errors.New("no readable text in WordDocument stream")
		attempts = append(attempts, Attempt{Stage: StageDocSalvage, Outcome: OutcomeFailed, Err: serr})
		return "", attempts, fmt.Errorf("%w; %v", err, serr)
	}
	attempts = append(attempts, Attempt{Stage: StageDocSalvage, Outcome: OutcomeSuccess, Text: salvaged})
	return salvaged, attempts, nil
}

// readWordStreams pulls the text-bearing streams out of the compound file.
func readWordStreams(data []byte) (map[string][]byte, error) {
	cf, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}
	targetStreams := map[string]bool{
		"WordDocument": true,
		"1Table":       true,
		"0Table":       true,
	}
	streams := make(map[string][]byte, len(targetStreams))
	for ent, err := cf.Next(); err == nil; ent, err = cf.Next() {
		if !targetStreams[ent.Name] {
			continue
		}
		b, rerr := io.ReadAll(io.LimitReader(ent, maxWordStream))
		if rerr != nil {
			return nil, fmt.Errorf("read %s stream: %w", ent.Name, rerr)
		}
		streams[ent.Name] = b
	}
	if len(streams["WordDocument"]) == 0 {
		return nil, errors.New("compound file has no WordDocument stream")
	}
	return streams, nil
}

// FIB offsets for Word 97 and later.
const (
	fibIdent        = 0xA5EC
	fibFlagsOffset  = 0x000A
	fibWhichTblStm  = 0x0200
	fibEncrypted    = 0x0100
	fibCcpText      = 0x004C
	fibFcClx        = 0x01A2
	fibLcbClx       = 0x01A6
	pieceCompressed = 0x40000000
)

// decodePieceTable rebuilds the main document text from the CLX piece table.
func decodePieceTable(streams map[string][]byte) (string, error) {
	doc := streams["WordDocument"]
	if len(doc) < fibLcbClx+4 {
		return "", errors.New("WordDocument stream too short for FIB")
	}
	if binary.LittleEndian.Uint16(doc) != fibIdent {
		return "", fmt.Errorf("unexpected FIB identifier 0x%04x", binary.LittleEndian.Uint16(doc))
	}
	flags := binary.LittleEndian.Uint16(doc[fibFlagsOffset:])
	if flags&fibEncrypted != 0 {
		return "", ErrEncrypted
	}
	tableName := "0Table"
	if flags&fibWhichTblStm != 0 {
		tableName = "1Table"
	}
	table := streams[tableName]
	if len(table) == 0 {
		return "", fmt.Errorf("missing %s stream", tableName)
	}

	ccpText := binary.LittleEndian.Uint32(doc[fibCcpText:])
	fcClx := binary.LittleEndian.Uint32(doc[fibFcClx:])
	lcbClx := binary.LittleEndian.Uint32(doc[fibLcbClx:])
	if lcbClx == 0 || uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) {
		return "", fmt.Errorf("CLX out of range (fc=%d lcb=%d table=%d)", fcClx, lcbClx, len(table))
	}
	plc, err := findPlcPcd(table[fcClx : fcClx+lcbClx])
	if err != nil {
		return "", err
	}

	n := (len(plc) - 4) / 12
	if n <= 0 || len(plc) != n*12+4 {
		return "", fmt.Errorf("malformed piece table of %d bytes", len(plc))
	}
	cp := func(i int) uint32 { return binary.LittleEndian.Uint32(plc[i*4:]) }
	pcdBase := (n + 1) * 4

	var raw strings.Builder
	for i := 0; i < n; i++ {
		start, end := cp(i), cp(i+1)
		if ccpText > 0 && start >= ccpText {
			break
		}
		if ccpText > 0 && end > ccpText {
			end = ccpText
		}
		if end <= start {
			continue
		}
		count := int(end - start)
		fc := binary.LittleEndian.Uint32(plc[pcdBase+i*8+2:])
		if fc&pieceCompressed != 0 {
			off := int((fc &^ pieceCompressed) / 2)
			if off+count > len(doc) {
				return "", fmt.Errorf("piece %d out of range", i)
			}
			s, err := charmap.Windows1252.NewDecoder().Bytes(doc[off : off+count])
			if err != nil {
				return "", fmt.Errorf("decode piece %d: %w", i, err)
			}
			raw.Write(s)
			continue
		}
		off := int(fc)
		if off+count*2 > len(doc) {
			return "", fmt.Errorf("piece %d out of range", i)
		}
		units := make([]uint16, count)
		for j := range units {
			units[j] = binary.LittleEndian.Uint16(doc[off+j*2:])
		}
		raw.WriteString(string(utf16.Decode(units)))
	}

	text := strings.TrimSpace(normalizeWordText(raw.String()))
	if text == "" {
		return "", errors.New("piece table produced no text")
	}
	return text, nil
}

// findPlcPcd skips the Prc entries at the head of a CLX and returns the PlcPcd body.
func findPlcPcd(clx []byte) ([]byte, error) {
	for i := 0; i < len(clx); {
		switch clx[i] {
		case 0x01:
			if i+3 > len(clx) {
				return nil, errors.New("truncated Prc in CLX")
			}
			i += 3 + int(binary.LittleEndian.Uint16(clx[i+1:]))
		case 0x02:
			if i+5 > len(clx) {
				return nil, errors.New("truncated Pcdt in CLX")
			}
			lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
			if i+5+lcb > len(clx) {
				return nil, errors.New("Pcdt length exceeds CLX")
			}
			return clx[i+5 : i+5+lcb], nil
		default:
			return nil, fmt.Errorf("unexpected CLX entry 0x%02x", clx[i])
		}
	}
	return nil, errors.New("CLX has no piece table")
}

// normalizeWordText maps Word control characters to plain text and drops field instructions.
func normalizeWordText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	// each open field is true while its instruction part is being read
	var fields []bool
	for _, r := range s {
		switch r {
		case 0x13:
			fields = append(fields, true)
			continue
		case 0x14:
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
			continue
		case 0x15:
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
			continue
		}
		if len(fields) > 0 && fields[len(fields)-1] {
			continue
		}
		switch {
		case r == '\r', r == 0x0B, r == 0x0C:
			b.WriteByte('\n')
		case r == 0x07:
			b.WriteByte('\t')
		case r == '\t', r == '\n':
			b.WriteRune(r)
		case r < 0x20:
			// other control characters carry no text
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var salvageRun = regexp.MustCompile(`[\x20-\x7e\t\r\n]{4,}`)

// salvageText keeps printable ASCII runs, first as UTF-16LE and then as single bytes.
func salvageText(data []byte) string {
	if len(data) >= 2 {
		units := make([]uint16, len(data)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(data[i*2:])
		}
		var ascii []byte
		for _, u := range units {
			if u < 0x80 {
				ascii = append(ascii, byte(u))
			} else {
				ascii = append(ascii, ' ')
			}
		}
		if s := joinRuns(ascii); len(s) >= 20 {
			return s
		}
	}
	return joinRuns(data)
}

func joinRuns(b []byte) string {
	runs := salvageRun.FindAll(b, -1)
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		if s := strings.Join(strings.Fields(string(r)), " "); len(s) >= 4 {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
