package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load parses and validates a cluster configuration document. source may
// be a map[string]interface{} (used as-is), a []byte or string holding
// JSON or YAML text, or a path to a ".json"/".yaml"/".yml" file — the
// extension picks the decoder, an unknown extension is a ConfigError.
// When source is a string that is neither an existing path nor a
// recognized extension, it is parsed directly as YAML (which also
// accepts JSON, since JSON is a YAML subset).
func Load(source interface{}) (*ClusterConfig, error) {
	raw, err := decode(source)
	if err != nil {
		return nil, err
	}
	return fromRaw(raw)
}

func decode(source interface{}) (*rawDocument, error) {
	switch v := source.(type) {
	case map[string]interface{}:
		return decodeMap(v)
	case *rawDocument:
		return v, nil
	case []byte:
		return decodeText(string(v))
	case string:
		return decodeStringSource(v)
	default:
		return nil, newConfigError("unsupported configuration source type %T", source)
	}
}

func decodeMap(m map[string]interface{}) (*rawDocument, error) {
	buf, err := yaml.Marshal(m)
	if err != nil {
		return nil, newConfigError("invalid configuration map: %s", err)
	}
	return decodeText(string(buf))
}

func decodeStringSource(s string) (*rawDocument, error) {
	if looksLikeDocument(s) {
		return decodeText(s)
	}
	if info, err := os.Stat(s); err == nil && !info.IsDir() {
		data, err := os.ReadFile(s)
		if err != nil {
			return nil, newConfigError("failed to read configuration file %q: %s", s, err)
		}
		ext := strings.ToLower(filepath.Ext(s))
		switch ext {
		case ".json", ".yaml", ".yml":
			return decodeText(string(data))
		default:
			return nil, newConfigError("unsupported configuration file extension %q", ext)
		}
	}
	return decodeText(s)
}

// looksLikeDocument is a cheap heuristic so that inline JSON/YAML text
// handed to Load as a string isn't mistaken for a file path (and so
// isn't passed to os.Stat, which would be wasted work at best and a
// confusing error at worst for a long multi-line document).
func looksLikeDocument(s string) bool {
	return strings.Contains(s, "\n") || strings.Contains(s, ":")
}

func decodeText(text string) (*rawDocument, error) {
	var raw rawDocument
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, newConfigError("failed to parse configuration: %s", err)
	}
	return &raw, nil
}
