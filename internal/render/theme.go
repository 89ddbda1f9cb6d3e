package render

import (
	"encoding/json"
	"fmt"
	"horizon/internal/trade"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// ThemeFile is the theme document inside each theme directory.
const ThemeFile = "theme_setup.json"

// SectionKind is the kind of one theme layer.
type SectionKind string

const (
	KindItemSlot    SectionKind = "item-slot"
	KindStaticImage SectionKind = "static-image"
	KindText        SectionKind = "text"
	KindUnknown     SectionKind = "unknown"
)

// Section is one layer of a theme, drawn in declaration order.
type Section struct {
	Kind SectionKind
	Name string

	// item-slot
	Side trade.SideName
	Slot int // 0-based

	// static-image
	File string

	// item-slot and static-image
	Size         image.Point
	Transparency bool

	Position         image.Point
	CenterOnPosition bool

	// text
	Text        string
	FontFile    string
	FontSize    float64
	Fill        color.NRGBA
	Stroke      color.NRGBA
	StrokeWidth int
}

// Theme is a parsed theme directory.
type Theme struct {
	Dir        string
	Background string
	Sections   []Section
}

// Path resolves a file name relative to the theme directory.
func (t *Theme) Path(name string) string {
	return filepath.Join(t.Dir, name)
}

const themeSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["background_image"],
  "properties": {
    "background_image": {"type": "string", "minLength": 1},
    "give": {"$ref": "#/definitions/slots"},
    "take": {"$ref": "#/definitions/slots"},
    "drawn_images": {
      "type": "object",
      "additionalProperties": {"allOf": [{"$ref": "#/definitions/image"}], "required": ["file_name"]}
    },
    "drawn_text": {
      "type": "object",
      "additionalProperties": {"$ref": "#/definitions/text"}
    }
  },
  "definitions": {
    "pair": {"type": "array", "items": {"type": "number"}, "minItems": 2, "maxItems": 2},
    "size": {"type": "array", "items": {"type": "number", "exclusiveMinimum": 0}, "minItems": 2, "maxItems": 2},
    "rgba": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 255}, "minItems": 3, "maxItems": 4},
    "image": {
      "type": "object",
      "required": ["size", "position"],
      "properties": {
        "size": {"$ref": "#/definitions/size"},
        "position": {"$ref": "#/definitions/pair"},
        "center_on_position": {"type": "boolean"},
        "transparency": {"type": "boolean"},
        "file_name": {"type": "string", "minLength": 1}
      }
    },
    "slots": {"type": "object", "additionalProperties": {"$ref": "#/definitions/image"}},
    "text": {
      "type": "object",
      "required": ["text", "position", "font_file", "font_size"],
      "properties": {
        "text": {"type": "string"},
        "position": {"$ref": "#/definitions/pair"},
        "rgba": {"$ref": "#/definitions/rgba"},
        "font_file": {"type": "string", "minLength": 1},
        "font_size": {"type": "number", "exclusiveMinimum": 0},
        "center_on_position": {"type": "boolean"},
        "stroke_rgba": {"$ref": "#/definitions/rgba"},
        "stroke_width": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var themeSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("theme.json", strings.NewReader(themeSchemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("theme.json")
})

// LoadTheme reads and parses dir/theme_setup.json.
func LoadTheme(dir string) (*Theme, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ThemeFile))
	if err != nil {
		return nil, fmt.Errorf("read theme: %w", err)
	}
	return ParseTheme(dir, raw)
}

// ParseTheme validates and parses a theme document. Section order follows
// key order in the document.
func ParseTheme(dir string, raw []byte) (*Theme, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("theme %s: invalid json", dir)
	}

	schema, err := themeSchema()
	if err != nil {
		return nil, fmt.Errorf("compile theme schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("theme %s: %w", dir, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("theme %s: %w", dir, err)
	}

	theme := &Theme{Dir: dir}
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		switch name := key.String(); name {
		case "background_image":
			theme.Background = value.String()

		case string(trade.Give), string(trade.Take):
			value.ForEach(func(k, v gjson.Result) bool {
				theme.Sections = append(theme.Sections, parseSlot(trade.SideName(name), k.String(), v))
				return true
			})

		case "drawn_images":
			value.ForEach(func(k, v gjson.Result) bool {
				sec := parseImage(v)
				sec.Kind = KindStaticImage
				sec.Name = name + "." + k.String()
				sec.File = v.Get("file_name").String()
				theme.Sections = append(theme.Sections, sec)
				return true
			})

		case "drawn_text":
			value.ForEach(func(k, v gjson.Result) bool {
				sec := parseText(v)
				sec.Name = name + "." + k.String()
				theme.Sections = append(theme.Sections, sec)
				return true
			})

		default:
			theme.Sections = append(theme.Sections, Section{Kind: KindUnknown, Name: name})
		}
		return true
	})

	return theme, nil
}

func parseSlot(side trade.SideName, key string, v gjson.Result) Section {
	name := string(side) + "." + key

	n, err := strconv.Atoi(strings.TrimPrefix(key, "item"))
	if !strings.HasPrefix(key, "item") || err != nil || n < 1 || n > trade.MaxItems {
		return Section{Kind: KindUnknown, Name: name}
	}

	sec := parseImage(v)
	sec.Kind = KindItemSlot
	sec.Name = name
	sec.Side = side
	sec.Slot = n - 1
	return sec
}

func parseImage(v gjson.Result) Section {
	return Section{
		Size:             point(v.Get("size")),
		Position:         point(v.Get("position")),
		CenterOnPosition: v.Get("center_on_position").Bool(),
		Transparency:     v.Get("transparency").Bool(),
	}
}

func parseText(v gjson.Result) Section {
	sec := Section{
		Kind:             KindText,
		Text:             v.Get("text").String(),
		Position:         point(v.Get("position")),
		CenterOnPosition: v.Get("center_on_position").Bool(),
		FontFile:         v.Get("font_file").String(),
		FontSize:         v.Get("font_size").Float(),
		Fill:             rgba(v.Get("rgba"), color.NRGBA{A: 255}),
		StrokeWidth:      int(v.Get("stroke_width").Int()),
	}
	sec.Stroke = rgba(v.Get("stroke_rgba"), color.NRGBA{A: 255})
	return sec
}

func point(v gjson.Result) image.Point {
	arr := v.Array()
	if len(arr) < 2 {
		return image.Point{}
	}
	return image.Pt(int(arr[0].Int()), int(arr[1].Int()))
}

func rgba(v gjson.Result, fallback color.NRGBA) color.NRGBA {
	arr := v.Array()
	if len(arr) < 3 {
		return fallback
	}
	c := color.NRGBA{
		R: uint8(arr[0].Uint()),
		G: uint8(arr[1].Uint()),
		B: uint8(arr[2].Uint()),
		A: 255,
	}
	if len(arr) > 3 {
		c.A = uint8(arr[3].Uint())
	}
	return c
}
