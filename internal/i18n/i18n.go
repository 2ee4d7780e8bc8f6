// Package i18n picks the message printer used for CLI output from the
// user's locale.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language.
var DefaultLang = language.English

// SupportedLangs are the languages the CLI formats for.
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// localeVars are consulted in POSIX precedence order.
var localeVars = []string{"LC_ALL", "LC_MESSAGES", "LANG"}

// LocaleTag maps POSIX locale variables ("de_DE.UTF-8", "C") to a supported
// language tag.
func LocaleTag(getenv func(string) string) language.Tag {
	var lang string
	for _, v := range localeVars {
		if lang = getenv(v); lang != "" {
			break
		}
	}
	if i := strings.IndexAny(lang, ".@"); i != -1 {
		lang = lang[:i]
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return DefaultLang
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}

// NewCLIPrinter returns a printer for the process locale.
func NewCLIPrinter() *message.Printer {
	return message.NewPrinter(LocaleTag(os.Getenv))
}
