package language

import (
	"strings"
	"testing"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/engine"
)

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"bare json", `{"intent":"PRICING"}`, `{"intent":"PRICING"}`},
		{"json fence", "```json\n{\"intent\":\"PRICING\"}\n```", `{"intent":"PRICING"}`},
		{"plain fence", "```\n{\"level\":\"HIGH\"}\n```", `{"level":"HIGH"}`},
		{"surrounding whitespace", "  {\"intent\":\"OTHER\"}\n", `{"intent":"OTHER"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFences(tc.input); got != tc.want {
				t.Errorf("stripCodeFences(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestClassifyPromptListsFullTaxonomy(t *testing.T) {
	prompt := classifyPrompt("quanto custa?", nil, domain.PhaseSituation)

	for _, intent := range domain.Intents {
		if !strings.Contains(prompt, string(intent)) {
			t.Errorf("classify prompt missing intent %s", intent)
		}
	}
	if !strings.Contains(prompt, "(sem histórico)") {
		t.Error("classify prompt should mark an empty context")
	}
}

func TestGeneratePromptIncludesPlaybookSteps(t *testing.T) {
	req := engine.GenerateRequest{
		Message:      "quanto custa a limpeza?",
		ShortContext: []string{"IN: oi", "OUT: olá, como posso ajudar?"},
		Playbook: &engine.PlaybookMatch{
			PlaybookID: "pricing-cleaning",
			Confidence: 0.92,
			Steps: []engine.PlaybookStep{
				{Order: 1, Content: "Informe o valor de R$ 250."},
				{Order: 2, Content: "Ofereça agendamento de avaliação."},
			},
		},
		Score: 25,
		Stage: domain.StageQualifying,
	}

	prompt := generatePrompt(req)
	if !strings.Contains(prompt, "1. Informe o valor de R$ 250.") {
		t.Error("generate prompt missing first playbook step")
	}
	if !strings.Contains(prompt, "2. Ofereça agendamento de avaliação.") {
		t.Error("generate prompt missing second playbook step")
	}
	if !strings.Contains(prompt, "IN: oi") {
		t.Error("generate prompt missing short context")
	}
}

func TestGeneratePromptWithoutPlaybook(t *testing.T) {
	prompt := generatePrompt(engine.GenerateRequest{
		Message: "oi",
		Stage:   domain.StageNew,
	})
	if strings.Contains(prompt, "roteiro aprovado") {
		t.Error("generate prompt should omit the playbook block when there is no match")
	}
}
