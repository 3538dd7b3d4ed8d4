package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"gopkg.in/yaml.v3"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// LoadPalette reads a YAML palette file. An empty path yields the built-in
// palette. Keys are lowercased and every color must be a hex color.
//
//	neutral: {background: "#f3f4f6", text: "#374151", border: "#d1d5db"}
//	priorities:
//	  high: {label: High, colors: {background: "#fff7ed", text: "#9a3412", border: "#fed7aa"}}
//	services:
//	  it: {label: IT support, colors: {...}}
func LoadPalette(path string) (domain.Palette, error) {
	if path == "" {
		return domain.DefaultPalette(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Palette{}, fmt.Errorf("read palette: %w", err)
	}
	return ParsePalette(data)
}

// ParsePalette decodes and validates a YAML palette.
func ParsePalette(data []byte) (domain.Palette, error) {
	var p domain.Palette
	if err := yaml.Unmarshal(data, &p); err != nil {
		return domain.Palette{}, fmt.Errorf("parse palette: %w", err)
	}

	var errs []string
	if p.Neutral == (domain.Colors{}) {
		p.Neutral = domain.NeutralColors
	} else {
		errs = append(errs, checkColors("neutral", p.Neutral)...)
	}

	var sectionErrs []string
	p.Priorities, sectionErrs = normalizeEntries("priorities", p.Priorities)
	errs = append(errs, sectionErrs...)
	p.Services, sectionErrs = normalizeEntries("services", p.Services)
	errs = append(errs, sectionErrs...)

	if len(errs) > 0 {
		return domain.Palette{}, errors.New("palette errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return p, nil
}

func normalizeEntries(section string, entries map[string]domain.PaletteEntry) (map[string]domain.PaletteEntry, []string) {
	out := make(map[string]domain.PaletteEntry, len(entries))
	var errs []string

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entry := entries[id]
		key := strings.ToLower(strings.TrimSpace(id))
		path := section + "." + id

		if key == "" {
			errs = append(errs, section+": empty id")
			continue
		}
		if _, dup := out[key]; dup {
			errs = append(errs, path+": duplicate id")
			continue
		}
		if strings.TrimSpace(entry.Label) == "" {
			errs = append(errs, path+".label: required")
		}
		errs = append(errs, checkColors(path+".colors", entry.Colors)...)
		out[key] = entry
	}
	return out, errs
}

func checkColors(path string, c domain.Colors) []string {
	var errs []string
	for name, value := range map[string]string{"background": c.Background, "text": c.Text, "border": c.Border} {
		if !hexColor.MatchString(value) {
			errs = append(errs, fmt.Sprintf("%s.%s: %q is not a hex color", path, name, value))
		}
	}
	sort.Strings(errs)
	return errs
}
