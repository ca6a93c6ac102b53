package receipt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/image/font/sfnt"
)

//go:embed fonts/*.ttf
var bundledFonts embed.FS

const bundledFamily = "dejavu"

// Font is a TrueType face the renderer registers with the PDF. Extra fonts
// are consulted in order for text the bundled face has no glyphs for,
// typically CJK or Tamil donor names.
type Font struct {
	Family string
	styles map[string][]byte
	glyphs *sfnt.Font
}

// ParseFont validates a TrueType file and wraps it as a Font. The same file
// serves the regular, bold and italic styles.
func ParseFont(family string, data []byte) (*Font, error) {
	glyphs, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", family, err)
	}
	return &Font{
		Family: family,
		styles: map[string][]byte{"": data, "B": data, "I": data},
		glyphs: glyphs,
	}, nil
}

// LoadFonts reads every .ttf file in dir, sorted by name. An empty dir
// yields no fonts.
func LoadFonts(dir string) ([]*Font, error) {
	if dir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.ttf"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	fonts := make([]*Font, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		family := strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))))
		if family == "" || family == bundledFamily {
			family = fmt.Sprintf("extra%d", len(fonts))
		}
		f, err := ParseFont(family, data)
		if err != nil {
			return nil, err
		}
		fonts = append(fonts, f)
	}
	return fonts, nil
}

var bundledFace = sync.OnceValues(func() (*Font, error) {
	styles := map[string][]byte{}
	for style, name := range map[string]string{
		"":  "fonts/DejaVuSansCondensed.ttf",
		"B": "fonts/DejaVuSansCondensed-Bold.ttf",
		"I": "fonts/DejaVuSansCondensed-Oblique.ttf",
	} {
		data, err := bundledFonts.ReadFile(name)
		if err != nil {
			return nil, err
		}
		styles[style] = data
	}
	glyphs, err := sfnt.Parse(styles[""])
	if err != nil {
		return nil, fmt.Errorf("parse bundled font: %w", err)
	}
	return &Font{Family: bundledFamily, styles: styles, glyphs: glyphs}, nil
})

// covers reports whether the face has a glyph for every printable rune.
func (f *Font) covers(text string) bool {
	var buf sfnt.Buffer
	for _, r := range text {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			continue
		}
		idx, err := f.glyphs.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			return false
		}
	}
	return true
}

// chooseFont returns the first face able to draw text, falling back to
// the first face when none can.
func chooseFont(faces []*Font, text string) *Font {
	for _, f := range faces {
		if f.covers(text) {
			return f
		}
	}
	return faces[0]
}

// pdfText drops what the embedded fonts cannot encode: control characters
// and runes outside the Basic Multilingual Plane.
func pdfText(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF || (unicode.IsControl(r) && r != '\n') {
			return -1
		}
		return r
	}, s)
}
