// Package ssml builds the synthesis markup documents submitted to the speech provider.
package ssml

import (
	"fmt"
	"strings"
)

// Document defaults.
const (
	// DefaultLocale is used when the voice identifier carries no locale.
	DefaultLocale = "en-US"
	// DefaultRate is the prosody rate used when none is selected.
	DefaultRate = "default"
	// LeadingSilence is inserted before the text so the first syllable is not clipped.
	LeadingSilence = "200ms"

	localeSeparator = "-"
	documentFormat  = `<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>
    <voice name='%s'>
        <break time='%s'/>
        <prosody rate='%s'>%s</prosody>
    </voice>
</speak>`
)

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Document describes one utterance.
type Document struct {
	Text  string
	Voice string
	Rate  string
}

// EscapeXML replaces the five XML metacharacters with their entities.
func EscapeXML(text string) string {
	return xmlReplacer.Replace(text)
}

// LocaleFromVoice derives the locale from the first two hyphen-delimited
// segments of a voice identifier ("de-DE-ChristophNeural" -> "de-DE").
func LocaleFromVoice(voiceID string) string {
	parts := strings.Split(voiceID, localeSeparator)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return DefaultLocale
	}

	return parts[0] + localeSeparator + parts[1]
}

// Build renders the markup document. Text is escaped; voice and rate are
// expected to come from the configured lists and are escaped as well.
func Build(doc Document) string {
	rate := doc.Rate
	if rate == "" {
		rate = DefaultRate
	}

	return fmt.Sprintf(
		documentFormat,
		EscapeXML(LocaleFromVoice(doc.Voice)),
		EscapeXML(doc.Voice),
		LeadingSilence,
		EscapeXML(rate),
		EscapeXML(doc.Text),
	)
}
