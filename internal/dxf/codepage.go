package dxf

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// codepages maps $DWGCODEPAGE values to text encodings.
var codepages = map[string]encoding.Encoding{
	"ANSI_874":  charmap.Windows874,
	"ANSI_932":  japanese.ShiftJIS,
	"ANSI_936":  simplifiedchinese.GBK,
	"ANSI_949":  korean.EUCKR,
	"ANSI_950":  traditionalchinese.Big5,
	"ANSI_1250": charmap.Windows1250,
	"ANSI_1251": charmap.Windows1251,
	"ANSI_1252": charmap.Windows1252,
	"ANSI_1253": charmap.Windows1253,
	"ANSI_1254": charmap.Windows1254,
	"ANSI_1255": charmap.Windows1255,
	"ANSI_1256": charmap.Windows1256,
	"ANSI_1257": charmap.Windows1257,
	"ANSI_1258": charmap.Windows1258,
}

func codepageEncoding(cp string) (encoding.Encoding, bool) {
	enc, ok := codepages[strings.ToUpper(strings.TrimSpace(cp))]
	return enc, ok
}

var codepagePattern = regexp.MustCompile(`\$DWGCODEPAGE\s*\r?\n\s*3\s*\r?\n\s*(\S+)`)
var versionPattern = regexp.MustCompile(`\$ACADVER\s*\r?\n\s*1\s*\r?\n\s*(AC\d+)`)

// decodeText converts raw file bytes to UTF-8. Files from AutoCAD 2007 on
// (AC1021+) are UTF-8 already; older files use $DWGCODEPAGE.
func decodeText(raw []byte, fallback string) (string, error) {
	head := raw
	if len(head) > 8192 {
		head = head[:8192]
	}
	version := ""
	if m := versionPattern.FindSubmatch(head); m != nil {
		version = string(m[1])
	}
	if version >= "AC1021" || (version == "" && utf8.Valid(raw)) {
		return strings.TrimPrefix(string(raw), "\ufeff"), nil
	}
	cp := fallback
	if m := codepagePattern.FindSubmatch(head); m != nil {
		cp = string(m[1])
	}
	enc, ok := codepageEncoding(cp)
	if !ok {
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		enc = charmap.Windows1252
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// encodeText converts UTF-8 text for a file written with codepage cp.
// Characters the codepage cannot represent are replaced.
func encodeText(s, cp string) ([]byte, error) {
	enc, ok := codepageEncoding(cp)
	if !ok {
		return []byte(s), nil
	}
	return encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(s))
}

// Encodable reports whether every name and text of the document can be
// written in codepage cp without substitution.
func (d *Document) Encodable(cp string) bool {
	enc, ok := codepageEncoding(cp)
	if !ok {
		enc = charmap.Windows1252
	}
	e := enc.NewEncoder()
	fits := func(s string) bool {
		if isASCII(s) {
			return true
		}
		_, err := e.String(s)
		return err == nil
	}
	entsFit := func(ents []Entity) bool {
		for _, ent := range ents {
			if !fits(ent.Common().Layer) {
				return false
			}
			switch v := ent.(type) {
			case *Text:
				if !fits(v.Value) || !fits(v.Style) {
					return false
				}
			case *Insert:
				if !fits(v.Block) {
					return false
				}
			case *Raw:
				for _, t := range v.tags {
					if !fits(t.value) {
						return false
					}
				}
			}
		}
		return true
	}

	for _, l := range d.Layers.All() {
		if !fits(l.Name) || !fits(l.Linetype) {
			return false
		}
	}
	for _, lt := range d.Linetypes.All() {
		if !fits(lt.Name) || !fits(lt.Description) {
			return false
		}
	}
	for _, s := range d.Styles.All() {
		if !fits(s.Name) || !fits(s.Font) || !fits(s.BigFont) {
			return false
		}
	}
	for _, b := range d.Blocks.All() {
		if !fits(b.Name) || !entsFit(b.Entities) {
			return false
		}
	}
	return entsFit(d.Model)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
