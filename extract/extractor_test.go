package extract

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsift/config"
)

func TestRegistryBuiltIns(t *testing.T) {
	reg := NewExtractorRegistry()
	for _, format := range []config.Format{config.FormatText, config.FormatWord, config.FormatEML, config.FormatMBOX} {
		_, ok := reg.GetExtractor(format)
		assert.True(t, ok, format)
	}
	_, ok := reg.GetExtractor(config.FormatPDF)
	assert.False(t, ok, "pdf is handled by the cascade")
}

func TestTextExtractorInvalidUTF8Attempt(t *testing.T) {
	_, attempts, err := (&TextExtractor{}).ExtractStaged([]byte{'o', 'k', 0xFF})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "utf-8 extraction failed: invalid utf-8 byte 0xff at position 2", attempts[0].Message())
	assert.Equal(t, OutcomeSuccess, attempts[1].Outcome)
	assert.Equal(t, "okÿ", attempts[1].Text)
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>  </w:t></w:r></w:p>
<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:t>Title</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Hello </w:t></w:r><w:r><w:t>world</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>
<w:p><w:r><w:t>line one</w:t><w:br/><w:t>line two</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell text</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
<w:p><w:hyperlink><w:r><w:t>linked</w:t></w:r></w:hyperlink></w:p>
<w:sectPr/>
</w:body>
</w:document>`

func buildDocx(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestWordExtractorDocx(t *testing.T) {
	data := buildDocx(t, map[string]string{
		"[Content_Types].xml": `<Types/>`,
		"word/document.xml":   docxBody,
	})
	text, err := (&WordExtractor{}).ExtractText(data)
	require.NoError(t, err)
	assert.Equal(t, "Title\nHello world\ttabbed\nline one\nline two\nlinked", text)
}

func TestWordExtractorMissingDocument(t *testing.T) {
	data := buildDocx(t, map[string]string{"word/styles.xml": "<styles/>"})
	_, attempts, err := (&WordExtractor{}).ExtractStaged(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word/document.xml not found")
	assert.Equal(t, []string{StageDocx}, []string{attempts[0].Stage})
}

func TestWordExtractorNotAZip(t *testing.T) {
	_, err := (&WordExtractor{}).ExtractText([]byte("plain bytes"))
	assert.ErrorContains(t, err, "open archive")
}

func TestWordExtractorBrokenCompoundFile(t *testing.T) {
	data := append(append([]byte{}, oleMagic...), bytes.Repeat([]byte{0x42}, 64)...)
	_, attempts, err := (&WordExtractor{}).ExtractStaged(data)
	require.Error(t, err)
	require.NotEmpty(t, attempts)
	assert.Equal(t, StageDoc, attempts[0].Stage)
	assert.Equal(t, OutcomeFailed, attempts[0].Outcome)
}

// wordStreams lays out a minimal FIB, a 1Table CLX with a Prc entry and the
// given pieces. Compressed pieces are stored at 0x200, UTF-16 ones at 0x300.
func wordStreams(compressed, wide string, flags uint16) map[string][]byte {
	doc := make([]byte, 0x400)
	binary.LittleEndian.PutUint16(doc, fibIdent)
	binary.LittleEndian.PutUint16(doc[fibFlagsOffset:], flags)
	copy(doc[0x200:], compressed)
	for i, u := range utf16.Encode([]rune(wide)) {
		binary.LittleEndian.PutUint16(doc[0x300+i*2:], u)
	}

	n1 := uint32(len([]rune(compressed)))
	n2 := n1 + uint32(len([]rune(wide)))
	plc := make([]byte, 28)
	binary.LittleEndian.PutUint32(plc[0:], 0)
	binary.LittleEndian.PutUint32(plc[4:], n1)
	binary.LittleEndian.PutUint32(plc[8:], n2)
	binary.LittleEndian.PutUint32(plc[12+2:], (0x200*2)|pieceCompressed)
	binary.LittleEndian.PutUint32(plc[20+2:], 0x300)

	clx := []byte{0x01, 0x02, 0x00, 0xAA, 0xBB, 0x02}
	clx = binary.LittleEndian.AppendUint32(clx, uint32(len(plc)))
	clx = append(clx, plc...)

	binary.LittleEndian.PutUint32(doc[fibCcpText:], n2)
	binary.LittleEndian.PutUint32(doc[fibFcClx:], 0)
	binary.LittleEndian.PutUint32(doc[fibLcbClx:], uint32(len(clx)))
	return map[string][]byte{"WordDocument": doc, "1Table": clx}
}

func TestDecodePieceTable(t *testing.T) {
	text, err := decodePieceTable(wordStreams("Hello\r", "World\x07", fibWhichTblStm))
	require.NoError(t, err)
	assert.Equal(t, "Hello\nWorld", text)
}

func TestDecodePieceTableEncrypted(t *testing.T) {
	_, err := decodePieceTable(wordStreams("Hello", "", fibWhichTblStm|fibEncrypted))
	assert.True(t, errors.Is(err, ErrEncrypted))
}

func TestDecodePieceTableMissingTable(t *testing.T) {
	_, err := decodePieceTable(wordStreams("Hello", "", 0))
	assert.ErrorContains(t, err, "missing 0Table stream")
}

func TestFindPlcPcdRejectsUnknownEntry(t *testing.T) {
	_, err := findPlcPcd([]byte{0x07, 0x00})
	assert.ErrorContains(t, err, "unexpected CLX entry 0x07")
	_, err = findPlcPcd([]byte{0x01, 0x00, 0x00})
	assert.ErrorContains(t, err, "no piece table")
}

func TestNormalizeWordText(t *testing.T) {
	in := "See \x13 HYPERLINK \"http://x\" \x14the link\x15 here.\rNext\x0bline\x07cell\x01"
	assert.Equal(t, "See the link here.\nNext\nline\tcell", normalizeWordText(in))
}

func TestSalvageText(t *testing.T) {
	var wide []byte
	for _, u := range utf16.Encode([]rune("This text survived in UTF-16")) {
		wide = binary.LittleEndian.AppendUint16(wide, u)
	}
	assert.Equal(t, "This text survived in UTF-16", salvageText(append([]byte{0xFF, 0xFE}, wide...)))
	assert.Equal(t, "Readable ascii run", salvageText([]byte("\x00\x01Readable ascii run\xff")))
}

const plainMail = "From: alice@example.com\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Quarterly numbers\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"The numbers are in.\r\nSee you soon.\r\n"

const htmlMail = "From: carol@example.com\r\n" +
	"Subject: Newsletter\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><head><style>p{color:red}</style></head><body><p>Hello &amp; welcome</p><p>Second</p></body></html>\r\n"

func TestEMLExtractorPlain(t *testing.T) {
	text, err := (&EMLExtractor{}).ExtractText([]byte(plainMail))
	require.NoError(t, err)
	assert.Equal(t, "Subject: Quarterly numbers\n\nThe numbers are in.\nSee you soon.", text)
}

func TestEMLExtractorHTMLFallback(t *testing.T) {
	text, err := (&EMLExtractor{}).ExtractText([]byte(htmlMail))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Subject: Newsletter\n\n"))
	assert.Contains(t, text, "Hello & welcome")
	assert.Contains(t, text, "Second")
}

func TestMBOXExtractor(t *testing.T) {
	mbox := "From alice@example.com Mon Jan  1 00:00:00 2024\n" +
		strings.ReplaceAll(plainMail, "\r\n", "\n") +
		"\nFrom carol@example.com Tue Jan  2 00:00:00 2024\n" +
		strings.ReplaceAll(htmlMail, "\r\n", "\n")
	text, err := (&MBOXExtractor{}).ExtractText([]byte(mbox))
	require.NoError(t, err)
	parts := strings.Split(text, "\n\n---\n\n")
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "Quarterly numbers")
	assert.Contains(t, parts[1], "Newsletter")
}

func TestMBOXExtractorEmpty(t *testing.T) {
	_, err := (&MBOXExtractor{}).ExtractText([]byte("no separators here"))
	assert.Error(t, err)
}

func TestCleanMarkup(t *testing.T) {
	html := "<div>One<br>Two</div><script>var x = 1;</script><p>A &lt;b&gt; &quot;c&quot;</p>"
	assert.Equal(t, "One\nTwo\nA <b> \"c\"", CleanMarkup(html))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b\n\nc", NormalizeWhitespace("  a \t b \r\n\n\n\n c  "))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", Excerpt("short\n text", 20))
	assert.Equal(t, "alpha beta…", Excerpt("alpha beta gamma delta", 13))
}
