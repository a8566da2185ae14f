// Package i18n holds the bot's user-facing texts.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

const localesDir = "locales"

// Translator resolves dot-separated keys such as "swap.prompt".
// A missing key resolves to the key itself.
type Translator interface {
	T(key string) string
	// F formats the message with fmt verbs.
	F(key string, args ...any) string
	Lang() string
}

// catalogue maps language to flattened key to text.
type catalogue map[string]map[string]string

// Manager stores all available translations.
type Manager struct {
	texts       catalogue
	defaultLang string
}

// Load loads the embedded catalogue.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(locales, localesDir, defaultLang)
}

// MustLoad is Load for callers that cannot continue without texts.
func MustLoad(defaultLang string) *Manager {
	m, err := Load(defaultLang)
	if err != nil {
		panic(err)
	}
	return m
}

// LoadFS reads every YAML file in dir. Each file has languages at the top
// level; files may split one language across several files.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	if defaultLang == "" {
		defaultLang = "en"
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	texts := make(catalogue)
	var files int
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		files++

		name := path.Join(dir, entry.Name())
		if err := texts.loadFile(fsys, name); err != nil {
			return nil, err
		}
	}
	if files == 0 {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}

	if _, ok := texts[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Manager{texts: texts, defaultLang: defaultLang}, nil
}

// Translator returns a translator for lang, or for the default language when
// lang is not loaded.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	norm := strings.ToLower(strings.TrimSpace(lang))
	if _, ok := m.texts[norm]; !ok {
		norm = m.defaultLang
	}

	return translator{lang: norm, texts: m.texts[norm], fallback: m.texts[m.defaultLang]}
}

// Languages returns the loaded languages, sorted.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	languages := make([]string, 0, len(m.texts))
	for lang := range m.texts {
		languages = append(languages, lang)
	}
	slices.Sort(languages)
	return languages
}

// Missing lists keys of the default language that lang does not translate.
func (m *Manager) Missing(lang string) []string {
	if m == nil {
		return nil
	}

	texts := m.texts[lang]
	var missing []string
	for key := range m.texts[m.defaultLang] {
		if _, ok := texts[key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return missing
}

type translator struct {
	lang     string
	texts    map[string]string
	fallback map[string]string
}

func (t translator) Lang() string {
	return t.lang
}

func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if text, ok := t.texts[key]; ok {
		return text
	}
	if text, ok := t.fallback[key]; ok {
		return text
	}
	return key
}

func (t translator) F(key string, args ...any) string {
	return fmt.Sprintf(t.T(key), args...)
}

func (c catalogue) loadFile(fsys fs.FS, name string) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("i18n: read file %s: %w", name, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("i18n: parse file %s: %w", name, err)
	}
	if len(doc.Content) == 0 {
		return nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("i18n: %s: top level must map languages to texts", name)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		lang := strings.ToLower(strings.TrimSpace(root.Content[i].Value))
		if lang == "" {
			continue
		}
		if c[lang] == nil {
			c[lang] = make(map[string]string)
		}
		if err := flatten("", root.Content[i+1], c[lang]); err != nil {
			return fmt.Errorf("i18n: %s: %w", name, err)
		}
	}
	return nil
}

// flatten joins nested mapping keys with dots. Scalars of any YAML type are kept as written.
func flatten(prefix string, node *yaml.Node, out map[string]string) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if prefix != "" {
			out[prefix] = node.Value
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flatten(key, node.Content[i+1], out); err != nil {
				return err
			}
		}
		return nil
	case yaml.AliasNode:
		return flatten(prefix, node.Alias, out)
	default:
		return fmt.Errorf("key %q: lists are not supported", prefix)
	}
}

func isYAML(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
