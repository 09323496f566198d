// Package voice provides a text console implementation of domain.Voice.
package voice

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed dialogs.yaml
var defaultDialogs []byte

// Catalog renders named dialogs.
type Catalog struct {
	dialogs map[string]string
}

// LoadCatalog reads the embedded dialogs and, when overridePath is set,
// replaces entries with those from that file.
func LoadCatalog(overridePath string) (*Catalog, error) {
	c := &Catalog{dialogs: map[string]string{}}
	if err := yaml.Unmarshal(defaultDialogs, &c.dialogs); err != nil {
		return nil, fmt.Errorf("parse embedded dialogs: %w", err)
	}
	if overridePath == "" {
		return c, nil
	}
	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read dialogs: %w", err)
	}
	extra := map[string]string{}
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse dialogs: %w", err)
	}
	for k, v := range extra {
		c.dialogs[k] = v
	}
	return c, nil
}

// Render fills {key} placeholders. Unknown dialogs render as their name so
// nothing is silently dropped.
func (c *Catalog) Render(name string, data map[string]string) string {
	text, ok := c.dialogs[name]
	if !ok {
		text = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(name)
	}
	if len(data) == 0 {
		return text
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.dialogs[name]
	return ok
}
