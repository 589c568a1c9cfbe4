// Package textutil normalises user-supplied text and turns identifiers into
// filesystem-safe tokens.
//
// Submitted text and words are NFC-normalised so that visually identical input
// produces identical segment texts and word keys. Owner identifiers become path
// components via PathKey: a SanitizeToken prefix, which strips diacritics
// before replacing unsafe runes, followed by a digest of the raw identifier.
package textutil
