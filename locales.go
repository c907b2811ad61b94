package hxrender

import (
	"slices"

	"golang.org/x/text/language"
)

// fallbackLocale is used for artifact names when an app is not translated.
const fallbackLocale = "xx-XX"

// Locales lists the locales an app supports.
//
// When UsingI18n is false every page lives at an unprefixed path and is
// stored under Default (or "xx-XX" if Default is empty). When it is true
// every path must start with one of the supported locales.
type Locales struct {
	Default   string
	Others    []string
	UsingI18n bool
}

func (l Locales) normalize() Locales {
	if l.Default == "" {
		l.Default = fallbackLocale
	}
	return l
}

// All returns the default locale followed by the others.
func (l Locales) All() []string {
	if !l.UsingI18n {
		return []string{l.Default}
	}
	out := make([]string, 0, 1+len(l.Others))
	out = append(out, l.Default)
	for _, o := range l.Others {
		if o != l.Default {
			out = append(out, o)
		}
	}
	return out
}

// IsSupported reports whether locale is one of the app's locales.
func (l Locales) IsSupported(locale string) bool {
	return slices.Contains(l.All(), locale)
}

// Negotiate picks the supported locale best matching an Accept-Language
// header value, falling back to the default locale.
func (l Locales) Negotiate(acceptLanguage string) string {
	all := l.All()
	if !l.UsingI18n || acceptLanguage == "" {
		return l.Default
	}
	tags := make([]language.Tag, 0, len(all))
	for _, loc := range all {
		tag, err := language.Parse(loc)
		if err != nil {
			tag = language.Und
		}
		tags = append(tags, tag)
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return l.Default
	}
	_, idx, conf := language.NewMatcher(tags).Match(prefs...)
	if conf == language.No {
		return l.Default
	}
	return all[idx]
}
