package orchestrator

import (
	"regexp"
	"strings"
)

// The pattern lists below are a tunable policy surface, not an exhaustive
// contract: they catch a backend that free-formed a refusal instead of
// following the structured decision contract.

var restrictedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(dosage|dose|dosing)\b`),
	regexp.MustCompile(`(?i)\b\d+\s?(mg|ml|mcg|µg)\b`),
	regexp.MustCompile(`(?i)\b(ibuprofen|paracetamol|acetaminophen|aspirin|antibiotic|insulin)\b`),
	regexp.MustCompile(`(?i)\b(prescri(be|ption)|diagnos(e|is|ed)|medication|clinical advice|medical advice)\b`),
	regexp.MustCompile(`(?i)\bshould i (take|stop taking)\b`),
}

var noContextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bno (relevant )?(context|information|documents?|results?) (was |were )?(found|available|provided)\b`),
	regexp.MustCompile(`(?i)\bi (do not|don't|cannot|can't) (seem to )?(have|find) (enough |any |the )?(context|information|documents?)\b`),
	regexp.MustCompile(`(?i)\bbased on the (provided |available )?(context|documents?),? (i|there is) (cannot|no)\b`),
	regexp.MustCompile(`(?i)\bthe (provided |available )?(context|documents?) (does|do) not (contain|mention|cover)\b`),
}

var transferPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(i('| a)m |i will |let me )?(transfer(ring)?|connect(ing)?|forward(ing)?) you\b`),
	regexp.MustCompile(`(?i)\bhand(ing)? (you )?(off|over) to\b`),
	regexp.MustCompile(`(?i)\bspeak (to|with) a (human|person|representative|colleague|agent)\b`),
	regexp.MustCompile(`(?i)\ba (human|colleague|representative) will (take over|assist|help)\b`),
}

// IsRestrictedTopic reports whether the text requests advice the system
// must not answer (medical/clinical and similar).
func IsRestrictedTopic(text string) bool {
	return anyMatch(restrictedPatterns, text)
}

// ReadsAsNoContext reports whether generated text is a "no context found"
// deflection rather than an answer.
func ReadsAsNoContext(text string) bool {
	return anyMatch(noContextPatterns, text)
}

// ReadsAsTransfer reports whether generated text is a self-referential
// transfer statement.
func ReadsAsTransfer(text string) bool {
	return anyMatch(transferPatterns, text)
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var handoffMessages = map[string]string{
	"en": "I can't help with that directly, but a colleague will pick this up and get back to you shortly.",
	"es": "No puedo ayudarte con eso directamente, pero un compañero se hará cargo y te responderá en breve.",
	"fr": "Je ne peux pas vous aider directement sur ce point, mais un collègue va prendre le relais et revenir vers vous rapidement.",
	"de": "Dabei kann ich leider nicht direkt helfen, aber ein Kollege übernimmt das und meldet sich in Kürze bei Ihnen.",
}

var (
	spanishHintRe = regexp.MustCompile(`[¿¡áéíóúñ]|\b(hola|gracias|por favor|cómo|qué|cuándo|dónde|necesito|ayuda|buenos días|buenas)\b`)
	frenchHintRe  = regexp.MustCompile(`[àâçèêëîïôùûœ]|\b(bonjour|merci|s'il vous plaît|comment|pourquoi|quand|besoin|aidez|être)\b`)
	germanHintRe  = regexp.MustCompile(`[äöüß]|\b(hallo|danke|bitte|wie|warum|wann|brauche|hilfe|können|ich)\b`)
)

// DetectLanguage applies a simple lexical heuristic (language-specific
// diacritics and keywords) to pick a handoff message language. Defaults to
// English.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	switch {
	case spanishHintRe.MatchString(lower):
		return "es"
	case frenchHintRe.MatchString(lower):
		return "fr"
	case germanHintRe.MatchString(lower):
		return "de"
	default:
		return "en"
	}
}

// HandoffMessage returns the fixed handoff message for a language code,
// falling back to English.
func HandoffMessage(lang string) string {
	if msg, ok := handoffMessages[lang]; ok {
		return msg
	}
	return handoffMessages["en"]
}
