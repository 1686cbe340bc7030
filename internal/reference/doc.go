// Package reference holds the vowel formant tables and plot axes served to
// clients for each speaker type.
package reference
