// Package formant extracts the two dominant formant frequencies from a chunk
// of speech audio. It conditions the signal (downmix, pre-emphasis,
// normalization, Hamming window), picks spectral peaks from a fixed-size DFT
// and validates the resulting pair against physiological ranges.
package formant
