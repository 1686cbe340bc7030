// Package vad gates incoming audio on activity before any spectral work is
// done. A chunk whose peak absolute amplitude stays under the configured
// threshold is treated as silence or background noise and dropped.
package vad
