package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"telegram-channel-paywall/internal/domain/ports/adapter"
)

//go:embed locales
var LocalesFS embed.FS

var _ adapter.Translator = (*Translator)(nil)

// Translator holds every locale found under locales/ keyed by language code.
type Translator struct {
	bundles  map[string]map[string]string
	fallback string
}

// NewTranslator loads locales/<lang>.yaml files from fsys. Unknown languages
// resolve to fallback, which must be present.
func NewTranslator(fsys fs.FS, fallback string) (*Translator, error) {
	files, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, err
	}
	t := &Translator{bundles: make(map[string]map[string]string, len(files)), fallback: fallback}
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("failed to read translation file %s: %w", f, err)
		}
		msgs, err := parseLocale(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse translation file %s: %w", f, err)
		}
		t.bundles[strings.TrimSuffix(path.Base(f), ".yaml")] = msgs
	}
	if _, ok := t.bundles[fallback]; !ok {
		return nil, fmt.Errorf("fallback locale %q not found", fallback)
	}
	return t, nil
}

func parseLocale(data []byte) (map[string]string, error) {
	var msgs map[string]string
	if err := yaml.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// T renders key in lang, substituting {name} placeholders from params.
// Missing keys fall back to the default locale, then to the key itself.
func (t *Translator) T(lang, key string, params map[string]any) string {
	format, ok := t.bundles[lang][key]
	if !ok {
		format, ok = t.bundles[t.fallback][key]
	}
	if !ok {
		return key
	}
	if len(params) == 0 {
		return format
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(format)
}

// Languages lists the loaded locale codes.
func (t *Translator) Languages() []string {
	out := make([]string, 0, len(t.bundles))
	for l := range t.bundles {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Has reports whether lang has its own locale file.
func (t *Translator) Has(lang string) bool {
	_, ok := t.bundles[lang]
	return ok
}
