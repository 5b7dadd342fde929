// Package urlextract extrai URLs http/https do texto reconhecido.
package urlextract

import "regexp"

// Pattern aceita apenas letras, dígitos e . / ? = _ - depois do esquema.
// Não há validação de host: o texto vem de OCR e pode conter ruído.
const Pattern = `https?://[a-zA-Z0-9./?=_-]+`

var urlRE = regexp.MustCompile(Pattern)

// Extract devolve todas as ocorrências sem sobreposição, na ordem em que
// aparecem e mantendo duplicatas. Nunca devolve nil.
func Extract(text string) []string {
	found := urlRE.FindAllString(text, -1)
	if found == nil {
		return []string{}
	}
	return found
}
