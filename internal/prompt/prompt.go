// Package prompt builds the instruction sent to the language model for a post.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PortNumber53/techpost-ai/internal/parser"
)

var ErrUnknownTone = errors.New("unknown tone")

// Variant selects the output-format section appended to the instruction.
type Variant int

const (
	VariantPlain Variant = iota
	VariantMarkers
	VariantStructured
)

type Tone struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Instruction string `json:"-"`
}

// tones is the fixed tone catalog. Order is the order shown to clients.
var tones = []Tone{
	{
		Key:         "provocative",
		Label:       "Polêmico/Provocador",
		Instruction: "Crie um texto que desafie o senso comum do mercado, com uma opinião firme e argumentos técnicos que sustentem a provocação, sem ser agressivo.",
	},
	{
		Key:         "mentor",
		Label:       "Educativo/Mentor",
		Instruction: "Adote um tom de professor experiente: explique o raciocínio por trás da solução, antecipe dúvidas comuns e deixe uma lição prática para quem está começando.",
	},
	{
		Key:         "storytelling",
		Label:       "Storytelling/Pessoal",
		Instruction: "Escreva como se estivesse contando uma história pessoal: situação, conflito, decisão e aprendizado, em primeira pessoa e com detalhes concretos do caso.",
	},
	{
		Key:         "analytical",
		Label:       "Analítico/Dados",
		Instruction: "Seja direto, frio e focado em fatos: números, comparações e resultados mensuráveis do caso, sem adjetivos desnecessários.",
	},
}

var (
	Channels  = []string{"LinkedIn", "Instagram"}
	Audiences = []string{"Engenheiros", "Executivos", "Leigos"}
	Goals     = []string{"Autoridade", "Venda", "Educativo"}
)

// LookupTone resolves a tone by key or by its label.
func LookupTone(key string) (Tone, error) {
	k := strings.TrimSpace(key)
	for _, t := range tones {
		if strings.EqualFold(t.Key, k) || t.Label == k {
			return t, nil
		}
	}
	return Tone{}, fmt.Errorf("%w: %q", ErrUnknownTone, key)
}

// Tones returns a copy of the tone catalog.
func Tones() []Tone {
	out := make([]Tone, len(tones))
	copy(out, tones)
	return out
}

type Catalog struct {
	Channels  []string `json:"channels"`
	Audiences []string `json:"audiences"`
	Goals     []string `json:"goals"`
	Tones     []Tone   `json:"tones"`
}

func Options() Catalog {
	return Catalog{Channels: Channels, Audiences: Audiences, Goals: Goals, Tones: Tones()}
}

// Request carries the user's choices for one post.
type Request struct {
	Channel  string
	Audience string
	Goal     string
	Tone     string
	Context  string
}

// Compose renders the instruction for req.
func Compose(req Request, v Variant) (string, error) {
	tone, err := LookupTone(req.Tone)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Atue como um Especialista em %s e Ghostwriter Sênior, com vivência de engenharia.\n", req.Channel)
	fmt.Fprintf(&b, "CONTEXTO: %s\n", req.Context)
	fmt.Fprintf(&b, "PÚBLICO: %s | OBJETIVO: %s | TOM: %s\n", req.Audience, req.Goal, tone.Instruction)
	b.WriteString("\n---\nMISSÃO:\n")
	b.WriteString("Transformar o conteúdo bruto (e o anexo, se houver) em uma postagem de alta performance e autoridade.\n")
	if v != VariantPlain {
		b.WriteString("1. Crie um TÍTULO curto e atrativo para o histórico (máx 4 palavras).\n")
		b.WriteString("2. Crie o POST completo seguindo as regras de escrita.\n")
	}
	b.WriteString(rules)

	switch v {
	case VariantMarkers:
		b.WriteString("\n---\nFORMATO DE RESPOSTA OBRIGATÓRIO (Use exatamente estes separadores):\n\n")
		fmt.Fprintf(&b, "%s [Escreva o título aqui]\n", parser.TitleMarker)
		fmt.Fprintf(&b, "%s\n", parser.ContentMarker)
		b.WriteString("[Escreva o post aqui, com gancho, corpo fluido, sem markdown e com hashtags]\n")
	case VariantStructured:
		b.WriteString("\n---\nFORMATO DE RESPOSTA OBRIGATÓRIO:\n")
		b.WriteString("Responda apenas com um objeto JSON com dois campos: \"title\" (o título) e \"body\" (o post completo, sem markdown e com hashtags).\n")
	}
	return b.String(), nil
}

// MustCompose is Compose for tone keys fixed in code; an unknown key panics.
func MustCompose(req Request, v Variant) string {
	s, err := Compose(req, v)
	if err != nil {
		panic(err)
	}
	return s
}

const rules = `
---
REGRAS DE ESCRITA (OBRIGATÓRIO):
1. INÍCIO (HOOK): A primeira frase deve ser um gancho magnético, mas profissional.
2. CORPO (FLUIDEZ): Estruture o texto em parágrafos normais e coesos (2 a 4 frases por parágrafo). EVITE o estilo "uma frase por linha".
3. ESTILO: Seja autêntico. Evite clichês corporativos.
4. FORMATO (TEXTO LIMPO): NÃO use absolutamente nenhuma formatação de markdown (*, #). Entregue apenas o texto puro.
5. FINAL: Termine com uma pergunta (Call to Action) e 3-5 hashtags.
`
