package prefs

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the YAML preferences file used to seed a store.
//
//	html_image_replacement: true
//	html_image_addrbook: false
//	safe_addresses:
//	  - newsletter@example.com
//	values:
//	  some_other_pref: "x"
type File struct {
	ImageReplacement *bool             `yaml:"html_image_replacement"`
	ImageAddrbook    *bool             `yaml:"html_image_addrbook"`
	SafeAddresses    []string          `yaml:"safe_addresses"`
	Values           map[string]string `yaml:"values"`
}

// BuiltinDefaults are used for names the file does not set.
func BuiltinDefaults() map[string]string {
	return map[string]string{
		ImageReplacement: FormatBool(true),
		ImageAddrbook:    FormatBool(true),
	}
}

// LoadDefaults reads a preferences file. A missing file returns
// ErrNotFound.
func LoadDefaults(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Map flattens the file over BuiltinDefaults. A nil File yields the
// builtin defaults.
func (f *File) Map() map[string]string {
	m := BuiltinDefaults()
	if f == nil {
		return m
	}
	for k, v := range f.Values {
		m[k] = v
	}
	if f.ImageReplacement != nil {
		m[ImageReplacement] = FormatBool(*f.ImageReplacement)
	}
	if f.ImageAddrbook != nil {
		m[ImageAddrbook] = FormatBool(*f.ImageAddrbook)
	}
	var safe string
	for _, a := range f.SafeAddresses {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			safe, _ = appendLine(safe, a)
		}
	}
	if safe != "" {
		m[SafeAddrs] = safe
	}
	return m
}
