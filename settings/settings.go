// Package settings holds the image-attachment configuration singleton, its form sanitizer and its store.
package settings

import (
	"strings"
)

const (
	// DefaultMaxFileSizeMB is the upload cap used when none is configured.
	DefaultMaxFileSizeMB = 5
	// DefaultRequiredMessage is shown after the product name when an image is missing.
	DefaultRequiredMessage = "Please upload an image for this product."
	// DefaultInstructionMessage is shown above the upload fields at checkout.
	DefaultInstructionMessage = "Make sure your photo is sharp, well lit and shows the whole recipe. It must not be older than 15 days."
)

// DefaultExtensions returns the extensions accepted out of the box.
func DefaultExtensions() []string { return []string{"jpg", "jpeg", "png"} }

// Settings is the administrator's configuration. It is a value: callers load it once per request
// or job and pass it down.
type Settings struct {
	Categories         []int    `json:"categories"`
	MaxFileSizeMB      int      `json:"max_file_size"`
	AllowedExtensions  []string `json:"allowed_file_types"`
	ShowInEmails       bool     `json:"show_in_emails"`
	RequiredMessage    string   `json:"required_message"`
	InstructionMessage string   `json:"instruction_message"`
}

// Defaults returns the configuration written on install.
func Defaults() Settings {
	return Settings{
		Categories:         []int{},
		MaxFileSizeMB:      DefaultMaxFileSizeMB,
		AllowedExtensions:  DefaultExtensions(),
		ShowInEmails:       true,
		RequiredMessage:    DefaultRequiredMessage,
		InstructionMessage: DefaultInstructionMessage,
	}
}

// MaxFileSizeBytes is the upload cap in bytes (1 MB = 1024*1024 bytes).
func (s Settings) MaxFileSizeBytes() int64 {
	mb := s.MaxFileSizeMB
	if mb < 1 {
		mb = DefaultMaxFileSizeMB
	}
	return int64(mb) * 1024 * 1024
}

// HasCategory reports whether id is one of the image-required categories.
func (s Settings) HasCategory(id int) bool {
	for _, c := range s.Categories {
		if c == id {
			return true
		}
	}
	return false
}

// AllowsExtension reports whether ext (with or without a leading dot, any case) is accepted.
func (s Settings) AllowsExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	for _, e := range s.AllowedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// RequiredText returns the configured missing-image message, or the default when it is blank.
func (s Settings) RequiredText() string {
	if msg := strings.TrimSpace(s.RequiredMessage); msg != "" {
		return msg
	}
	return DefaultRequiredMessage
}

// ExtensionsLabel lists the accepted extensions in upper case, e.g. "JPG, JPEG, PNG".
func (s Settings) ExtensionsLabel() string {
	return strings.ToUpper(strings.Join(s.AllowedExtensions, ", "))
}
