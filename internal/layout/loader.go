package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"keypipe/internal/keysym"
)

// keymapSchema validates keymap documents before they are compiled.
const keymapSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "groups"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "modifiers": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0, "maximum": 31}
    },
    "groups": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["keys"],
        "properties": {
          "name": {"type": "string"},
          "keys": {
            "type": "object",
            "minProperties": 1,
            "additionalProperties": {
              "type": "object",
              "required": ["levels"],
              "properties": {
                "levels": {
                  "type": "array",
                  "minItems": 1,
                  "items": {"type": "array", "items": {"type": "string"}}
                },
                "caps": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("keymap.schema.json", keymapSchema)

// document is the YAML shape of a keymap file.
type document struct {
	Name      string          `yaml:"name"`
	Modifiers map[string]uint `yaml:"modifiers"`
	Groups    []struct {
		Name string `yaml:"name"`
		Keys map[string]struct {
			Levels [][]string `yaml:"levels"`
			Caps   bool       `yaml:"caps"`
		} `yaml:"keys"`
	} `yaml:"groups"`
}

// LoadKeymap reads, validates, and compiles a YAML keymap document.
func LoadKeymap(path string) (*Keymap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout: read keymap: %w", err)
	}
	return ParseKeymap(data)
}

// ParseKeymap validates a YAML keymap document against the embedded schema
// and compiles it.
func ParseKeymap(data []byte) (*Keymap, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("layout: parse keymap: %w", err)
	}
	// Round-trip through JSON so the schema validator sees JSON-typed
	// values regardless of what the YAML decoder produced.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("layout: keymap not JSON-compatible: %w", err)
	}
	var instance any
	if err := json.Unmarshal(jsonBytes, &instance); err != nil {
		return nil, fmt.Errorf("layout: keymap not JSON-compatible: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("layout: keymap schema: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("layout: decode keymap: %w", err)
	}

	km := &Keymap{Name: doc.Name, ModifierNames: doc.Modifiers}
	if km.ModifierNames == nil {
		km.ModifierNames = USKeymap().ModifierNames
	}
	for gi, g := range doc.Groups {
		group := Group{Name: g.Name, Keys: make(map[uint32]Entry, len(g.Keys))}
		for codeStr, k := range g.Keys {
			code, err := strconv.ParseUint(codeStr, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("layout: group %d: bad scancode %q", gi, codeStr)
			}
			entry := Entry{Caps: k.Caps, Levels: make([][]uint32, 0, len(k.Levels))}
			for li, level := range k.Levels {
				syms := make([]uint32, 0, len(level))
				for _, name := range level {
					sym := keysym.FromName(name)
					if sym == keysym.NoSymbol {
						return nil, fmt.Errorf("layout: group %d scancode %s level %d: unknown keysym %q",
							gi, codeStr, li, name)
					}
					syms = append(syms, sym)
				}
				entry.Levels = append(entry.Levels, syms)
			}
			group.Keys[uint32(code)] = entry
		}
		km.Groups = append(km.Groups, group)
	}
	if err := km.Compile(); err != nil {
		return nil, err
	}
	return km, nil
}
