// Package config provides configuration loading and validation for the formant service.
// File values from YAML are overlaid on Default() and validated section by section.
package config
