package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lang/*.yaml
var bundledLocales embed.FS

type Locale struct {
	translations map[string]string
	locale       string
}

var globalLocale *Locale

// InitLocale initializes the global locale system
func InitLocale() error {
	locale := DetectSystemLocale()

	l, err := LoadLocale(locale)
	if err != nil {
		l, err = LoadLocale("en_US")
		if err != nil {
			return fmt.Errorf("failed to load fallback locale en_US: %w", err)
		}
	}

	globalLocale = l
	return nil
}

// DetectSystemLocale returns the locale from LANG, LC_ALL or LC_MESSAGES,
// in that order, without its encoding suffix.
func DetectSystemLocale() string {
	for _, env := range []string{"LANG", "LC_ALL", "LC_MESSAGES"} {
		if locale := os.Getenv(env); locale != "" {
			code, _, _ := strings.Cut(locale, ".")
			if code != "" && code != "C" && code != "POSIX" {
				return code
			}
		}
	}
	return "en_US"
}

// LoadLocale loads lang/<locale>.yaml next to the executable, falling back
// to the copy built into the binary.
func LoadLocale(locale string) (*Locale, error) {
	name := locale + ".yaml"

	var data []byte
	if exePath, err := os.Executable(); err == nil {
		data, _ = os.ReadFile(filepath.Join(filepath.Dir(exePath), "lang", name))
	}
	if data == nil {
		var err error
		data, err = bundledLocales.ReadFile("lang/" + name)
		if err != nil {
			return nil, fmt.Errorf("no locale file for %s: %w", locale, err)
		}
	}

	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse locale file %s: %w", name, err)
	}

	return &Locale{
		translations: translations,
		locale:       locale,
	}, nil
}

// T translates a key with optional parameters
// Usage: T("checkout_hold", 15*time.Minute)
func T(key string, params ...interface{}) string {
	if globalLocale == nil {
		return key
	}

	translation, ok := globalLocale.translations[key]
	if !ok {
		return key
	}

	if len(params) > 0 {
		return fmt.Sprintf(translation, params...)
	}

	return translation
}

// GetLocale returns the current locale code (e.g., "en_US")
func GetLocale() string {
	if globalLocale == nil {
		return "en_US"
	}
	return globalLocale.locale
}
