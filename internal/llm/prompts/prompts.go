// Package prompts renders the question-generation prompts.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var files embed.FS

var templates = template.Must(template.ParseFS(files, "templates/*.txt"))

var subjectTagRegex = regexp.MustCompile(`(?i)</?\s*subject\b[^>]*>`)

const maxSubjectRunes = 200

// Lang selects the prompt language.
type Lang string

const (
	LangPortuguese Lang = "pt"
	LangEnglish    Lang = "en"
)

// IsValidLang checks if a prompt language is supported.
func IsValidLang(l string) bool {
	return Lang(l) == LangPortuguese || Lang(l) == LangEnglish
}

// System is the system message sent with every generation request.
func System(lang Lang) string {
	if lang == LangEnglish {
		return "You are an expert at writing educational questions. Always answer with valid JSON in the requested format."
	}
	return "Você é um especialista em criar questões educacionais. Sempre responda com JSON válido no formato especificado."
}

// GenerateData holds template data for generation prompts.
type GenerateData struct {
	SubjectID string
	Subject   string
	Count     int
}

// BuildGenerate renders the user prompt asking for d.Count questions.
func BuildGenerate(lang Lang, d GenerateData) (string, error) {
	if !IsValidLang(string(lang)) {
		return "", fmt.Errorf("invalid prompt language %q", lang)
	}
	d.Subject = sanitizeSubject(d.Subject)
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "generate_"+string(lang)+".txt", d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeSubject(s string) string {
	s = subjectTagRegex.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxSubjectRunes {
		s = string([]rune(s)[:maxSubjectRunes])
	}
	return s
}
