package settings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/cppla/orderimages/utils"
)

// Form is the raw admin settings submission. Fields are loosely typed because browsers and API
// clients send numbers as strings and omit unchecked boxes.
type Form struct {
	Categories         []any  `json:"categories"`
	MaxFileSize        any    `json:"max_file_size"`
	AllowedFileTypes   []any  `json:"allowed_file_types"`
	ShowInEmails       any    `json:"show_in_emails"`
	RequiredMessage    string `json:"required_message"`
	InstructionMessage string `json:"instruction_message"`
}

// Sanitize turns a submitted form into a valid Settings value.
func Sanitize(form Form) Settings {
	out := Settings{
		Categories:         sanitizeCategories(form.Categories),
		MaxFileSizeMB:      sanitizeSize(form.MaxFileSize),
		AllowedExtensions:  sanitizeExtensions(form.AllowedFileTypes),
		ShowInEmails:       sanitizeToggle(form.ShowInEmails),
		RequiredMessage:    utils.SanitizeText(form.RequiredMessage),
		InstructionMessage: strings.TrimSpace(utils.Sanitize(form.InstructionMessage)),
	}
	return out
}

func sanitizeCategories(raw []any) []int {
	ids := make([]int, 0, len(raw))
	seen := map[int]bool{}
	for _, v := range raw {
		id, ok := toInt(v)
		if !ok || id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func sanitizeSize(raw any) int {
	if raw == nil {
		return DefaultMaxFileSizeMB
	}
	n, ok := toInt(raw)
	if !ok {
		return DefaultMaxFileSizeMB
	}
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return 1
	}
	return n
}

func sanitizeExtensions(raw []any) []string {
	if raw == nil {
		return DefaultExtensions()
	}
	exts := make([]string, 0, len(raw))
	seen := map[string]bool{}
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		ext := strings.ToLower(utils.SanitizeText(s))
		ext = strings.TrimSpace(strings.TrimLeft(ext, "."))
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		// An empty allow-list would reject every upload
		return DefaultExtensions()
	}
	return exts
}

func sanitizeToggle(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false", "no", "off":
			return false
		}
		return true
	}
	return true
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	}
	return 0, false
}
