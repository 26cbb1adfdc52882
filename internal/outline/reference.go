package outline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/hpungsan/loom/internal/errors"
	"github.com/hpungsan/loom/internal/logger"
)

// Reference document file names.
const (
	DocOutline    = "Episodic_Arc.json"
	DocWorld      = "World_Building.json"
	DocCharacters = "Characters.json"
	DocProtocols  = "Protocols.json"
	DocBasicInfo  = "Basic_Story_Info.json"
	DocStoryMap   = "Story_Map.json"
)

// Bundle is the static reference text shared by every generation job.
// It is built once at startup and never mutated.
type Bundle struct {
	// CoreLore holds the basic story info followed by the story map
	CoreLore string

	// WritingRules holds the protocols document
	WritingRules string

	Characters string
	World      string
}

// LoadBundle loads the outline and every reference document from dirs.
// Missing or malformed documents degrade to empty data; nothing here fails startup.
func LoadBundle(dirs []string, log *logger.Logger) (*Bundle, Index) {
	idx := Build(readDocument(dirs, DocOutline, log))

	basic := renderDocument(readDocument(dirs, DocBasicInfo, log))
	storyMap := renderDocument(readDocument(dirs, DocStoryMap, log))
	protocols := renderDocument(readDocument(dirs, DocProtocols, log))

	b := &Bundle{
		CoreLore:     "--- BASIC INFO ---\n" + basic + "\n\n--- STORY MAP ---\n" + storyMap,
		WritingRules: "--- PROTOCOLS & RULES ---\n" + protocols,
		Characters:   renderDocument(readDocument(dirs, DocCharacters, log)),
		World:        renderDocument(readDocument(dirs, DocWorld, log)),
	}
	return b, idx
}

// CandidatePaths lists where name is looked up: each dir, then dir/assets.
func CandidatePaths(dirs []string, name string) []string {
	paths := make([]string, 0, len(dirs)*2)
	for _, dir := range dirs {
		paths = append(paths, filepath.Join(dir, name), filepath.Join(dir, "assets", name))
	}
	return paths
}

// readDocument returns the first candidate that exists and holds valid JSON,
// or nil. Files that fail to parse are logged and skipped.
func readDocument(dirs []string, name string, log *logger.Logger) []byte {
	for _, path := range CandidatePaths(dirs, name) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if !json.Valid(data) {
			log.Warn("reference document skipped",
				"error", errors.NewMalformedReferenceData(name, nil).Message,
				"path", path)
			continue
		}
		return data
	}
	return nil
}

// renderDocument re-renders a JSON document with two-space indentation and
// unescaped non-ASCII text, keeping object keys in document order. Absent or
// malformed data renders as "{}".
func renderDocument(data []byte) string {
	value, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return "{}"
	}
	var buf bytes.Buffer
	if err := renderValue(&buf, value, typ, 0); err != nil {
		return "{}"
	}
	return buf.String()
}

func renderValue(buf *bytes.Buffer, value []byte, typ jsonparser.ValueType, depth int) error {
	switch typ {
	case jsonparser.Object:
		n := 0
		// ObjectEach hands over keys already unescaped.
		err := jsonparser.ObjectEach(value, func(key, v []byte, t jsonparser.ValueType, _ int) error {
			openItem(buf, '{', n, depth)
			n++
			writeString(buf, string(key))
			buf.WriteString(": ")
			return renderValue(buf, v, t, depth+1)
		})
		if err != nil {
			return err
		}
		closeItems(buf, '{', '}', n, depth)

	case jsonparser.Array:
		n := 0
		var itemErr error
		_, err := jsonparser.ArrayEach(value, func(v []byte, t jsonparser.ValueType, _ int, err error) {
			if itemErr != nil {
				return
			}
			if err != nil {
				itemErr = err
				return
			}
			openItem(buf, '[', n, depth)
			n++
			itemErr = renderValue(buf, v, t, depth+1)
		})
		if err != nil {
			return err
		}
		if itemErr != nil {
			return itemErr
		}
		closeItems(buf, '[', ']', n, depth)

	case jsonparser.String:
		str, err := jsonparser.ParseString(value)
		if err != nil {
			return err
		}
		writeString(buf, str)

	case jsonparser.Number, jsonparser.Boolean, jsonparser.Null:
		buf.Write(value)

	default:
		return fmt.Errorf("unexpected JSON value type %v", typ)
	}
	return nil
}

// openItem starts the n-th member of a container on its own indented line.
func openItem(buf *bytes.Buffer, open byte, n, depth int) {
	if n == 0 {
		buf.WriteByte(open)
	} else {
		buf.WriteByte(',')
	}
	indent(buf, depth+1)
}

// closeItems ends a container; an empty one renders inline as "{}" or "[]".
func closeItems(buf *bytes.Buffer, open, end byte, n, depth int) {
	if n == 0 {
		buf.WriteByte(open)
		buf.WriteByte(end)
		return
	}
	indent(buf, depth)
	buf.WriteByte(end)
}

func indent(buf *bytes.Buffer, depth int) {
	buf.WriteByte('\n')
	buf.WriteString(strings.Repeat("  ", depth))
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
}
