// Package audio reads and writes 16-bit PCM WAV files, resamples them and cuts
// recordings into analysis windows for offline formant extraction.
package audio
