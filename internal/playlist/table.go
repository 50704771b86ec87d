package playlist

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"roomplane/internal/quran"

	"gopkg.in/yaml.v3"
)

//go:embed segments.yaml
var defaultTables []byte

// Clip names a fixed liturgical audio file under the audio directory.
type Clip struct {
	Dir  string
	Name string
}

func (c Clip) String() string {
	return c.Dir + "/" + c.Name
}

// UnmarshalYAML parses the "<dir>/<name>" form.
func (c *Clip) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	dir, name, ok := strings.Cut(raw, "/")
	if !ok || dir == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("line %d: clip %q must be <dir>/<name>", node.Line, raw)
	}
	c.Dir, c.Name = dir, name
	return nil
}

// Repeated is a clip sequence played Repeat times.
type Repeated struct {
	Clips  []Clip `yaml:"clips"`
	Repeat int    `yaml:"repeat"`
}

// Table is one revision of the liturgical segment layout.
type Table struct {
	Version       string   `yaml:"version"`
	FirstOpening  []Clip   `yaml:"first_opening"`
	Opening       []Clip   `yaml:"opening"`
	Resume        []Clip   `yaml:"resume"`
	Body          []Clip   `yaml:"body"`
	Stand         []Clip   `yaml:"stand"`
	Closing       []Clip   `yaml:"closing"`
	LastClosing   []Clip   `yaml:"last_closing"`
	EndOfUnit     Repeated `yaml:"end_of_unit"`
	InterSetEvery int      `yaml:"inter_set_every"`
	InterSet      []Clip   `yaml:"inter_set"`
	Final         []Clip   `yaml:"final"`
}

type tableFile struct {
	Versions []Table `yaml:"versions"`
}

// LoadTable reads the table for version from path, or from the embedded tables when path is empty.
func LoadTable(path, version string) (*Table, error) {
	data := defaultTables
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read segment table %s: %w", path, err)
		}
		data = b
	}
	return ParseTable(data, version)
}

// ParseTable decodes a table file and selects one version.
func ParseTable(data []byte, version string) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse segment table: %w", err)
	}
	for i := range f.Versions {
		if f.Versions[i].Version == version {
			t := f.Versions[i]
			if err := t.validate(); err != nil {
				return nil, fmt.Errorf("segment table version %s: %w", version, err)
			}
			return &t, nil
		}
	}
	return nil, fmt.Errorf("segment table version %q not found", version)
}

func (t *Table) validate() error {
	if t.InterSetEvery < 0 {
		return fmt.Errorf("inter_set_every must not be negative")
	}
	if t.EndOfUnit.Repeat < 0 {
		return fmt.Errorf("end_of_unit.repeat must not be negative")
	}
	if t.InterSetEvery > 0 && len(t.InterSet) == 0 {
		return fmt.Errorf("inter_set_every is set but inter_set is empty")
	}
	return nil
}

// SegmentKind tags a planned segment.
type SegmentKind int

const (
	SegmentClip SegmentKind = iota
	SegmentAyah
)

// Segment is one planned entry: a liturgical clip or a recited ayah.
type Segment struct {
	Kind SegmentKind
	Clip Clip
	Ayah quran.AyahKey
}

func clips(cs ...Clip) []Segment {
	out := make([]Segment, 0, len(cs))
	for _, c := range cs {
		out = append(out, Segment{Kind: SegmentClip, Clip: c})
	}
	return out
}

func ayahs(ks []quran.AyahKey) []Segment {
	out := make([]Segment, 0, len(ks))
	for _, k := range ks {
		out = append(out, Segment{Kind: SegmentAyah, Ayah: k})
	}
	return out
}

// closesPair reports whether rakat i ends a two-rakat unit. A trailing odd rakat closes its own unit.
func closesPair(i, total int) bool {
	return i%2 == 1 || i == total-1
}

// Plan lays out the full program for the given per-rakat recitation chunks.
func (t *Table) Plan(chunks [][]quran.AyahKey) []Segment {
	total := len(chunks)
	fatiha := quran.Fatiha()

	var out []Segment
	for i, chunk := range chunks {
		last := i == total-1
		closing := closesPair(i, total)

		switch {
		case i == 0 && len(t.FirstOpening) > 0:
			out = append(out, clips(t.FirstOpening...)...)
		case closing && i > 0:
			out = append(out, clips(t.Resume...)...)
		default:
			out = append(out, clips(t.Opening...)...)
		}

		out = append(out, ayahs(fatiha)...)
		out = append(out, ayahs(chunk)...)
		out = append(out, clips(t.Body...)...)

		if closing {
			if last && len(t.LastClosing) > 0 {
				out = append(out, clips(t.LastClosing...)...)
			} else {
				out = append(out, clips(t.Closing...)...)
				for r := 0; r < t.EndOfUnit.Repeat; r++ {
					out = append(out, clips(t.EndOfUnit.Clips...)...)
				}
			}
		} else {
			out = append(out, clips(t.Stand...)...)
		}

		if !last && t.InterSetEvery > 0 && (i+1)%t.InterSetEvery == 0 {
			out = append(out, clips(t.InterSet...)...)
		}
		if last {
			out = append(out, clips(t.Final...)...)
		}
	}
	return out
}
