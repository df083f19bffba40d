package service

import (
	"strings"

	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

// RenderMessage substitutes the template placeholders with recipient
// fields. Empty values render as N/A rather than leaving holes.
func RenderMessage(template string, rcp *model.Recipient) string {
	message := template
	message = strings.ReplaceAll(message, "{nome}", orNA(rcp.Name))
	message = strings.ReplaceAll(message, "{telefone}", orNA(rcp.Phone))
	return message
}

// VariableMode reports whether a template references per-recipient
// variables, which makes the 'nome' spreadsheet column mandatory.
func VariableMode(template string) bool {
	return strings.Contains(template, "{nome}")
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}
