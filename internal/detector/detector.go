// Package detector wraps the lingua-go language detector. Building the
// detector is expensive; construct once and reuse.
package detector

import (
	lingua "github.com/pemistahl/lingua-go"
)

// minDetectableRunes is the minimum rune count required for a reliable
// detection. Shorter texts return ok=false.
const minDetectableRunes = 20

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

// DetectISO returns the ISO 639-1 code of the detected language. Empty and
// very short texts return ok=false rather than an unreliable guess.
func (d *Detector) DetectISO(text string) (string, bool) {
	if len([]rune(text)) < minDetectableRunes {
		return "", false
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}
