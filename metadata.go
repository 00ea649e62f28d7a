package aidetect

import (
	"bytes"
	"sort"
	"strings"

	"github.com/bep/imagemeta"
)

// Metadata key prefixes, one per source.
const (
	metaEXIF = "exif."
	metaXMP  = "xmp."
	metaIPTC = "iptc."
	metaPNG  = "png."
)

// maxMetaValue bounds a single stored metadata value.
const maxMetaValue = 4096

// wantedTags maps (source, tag-name) → true for every tool/application
// identifier we care about.
var wantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Software":           true,
		"ProcessingSoftware": true,
		"Make":               true,
		"Model":              true,
		"HostComputer":       true,
	},
	imagemeta.XMP: {
		"CreatorTool":   true,
		"softwareAgent": true,
	},
	imagemeta.IPTC: {
		"OriginatingProgram": true,
	},
}

// ExtractImageMetadata collects tool/application identifier tags from raw
// image bytes. format is the decoder name reported by image.Decode; PNG text
// chunks are read only for "png". Returns an empty, non-nil map when nothing
// is found. Graceful degradation: parse failures yield no tags, never an error.
func ExtractImageMetadata(data []byte, format string) map[string]string {
	meta := make(map[string]string)
	if len(data) == 0 {
		return meta
	}

	_, _ = imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := wantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			s := tagValueString(ti.Value)
			if s == "" {
				return nil
			}
			switch ti.Source {
			case imagemeta.EXIF:
				setMeta(meta, metaEXIF+ti.Tag, s)
			case imagemeta.XMP:
				setMeta(meta, metaXMP+ti.Tag, s)
			case imagemeta.IPTC:
				setMeta(meta, metaIPTC+ti.Tag, s)
			}
			return nil
		},
	})

	if format == "png" {
		for k, v := range pngTextChunks(data) {
			setMeta(meta, metaPNG+k, v)
		}
	}

	return meta
}

func setMeta(meta map[string]string, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if len(value) > maxMetaValue {
		value = value[:maxMetaValue]
	}
	meta[key] = value
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList).
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return strings.TrimRight(string(val), "\x00")
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

// MatchAISignature reports the first signature (case-insensitive substring)
// found in any metadata value, and the key it was found under. Keys are
// scanned in sorted order so the reported match is deterministic.
func MatchAISignature(meta map[string]string, signatures []string) (signature, key string, ok bool) {
	if len(meta) == 0 {
		return "", "", false
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		lower := strings.ToLower(meta[k])
		for _, sig := range signatures {
			if sig != "" && strings.Contains(lower, strings.ToLower(sig)) {
				return sig, k, true
			}
		}
	}
	return "", "", false
}

// metadataScorer flags known AI tool names in descriptive tags. Missing
// metadata is common in ordinary photos and is never evidence.
type metadataScorer struct{}

func (metadataScorer) Name() string { return ScorerMetadata }

func (metadataScorer) Score(img *DecodedImage, hc HeuristicConfig) (ScoreEntry, error) {
	entry := ScoreEntry{Flags: []string{}}
	if sig, key, ok := MatchAISignature(img.Metadata, hc.AISignatures); ok {
		entry.Score = metadataWeight
		entry.Flags = append(entry.Flags, "AI software detected in metadata: "+sig+" ("+key+")")
	}
	return entry, nil
}
