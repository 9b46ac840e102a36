package language

import (
	"fmt"
	"strings"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/engine"
)

const classifyPromptTemplate = `Você é o classificador de mensagens da recepção de uma clínica.
Classifique a mensagem do paciente em exatamente uma intenção da lista:
%s

A conversa está na fase %q do funil (SITUATION, PROBLEM, IMPLICATION, NEED_PAYOFF, READY).
Reavalie a fase com base na mensagem.

Contexto recente da conversa:
%s

Mensagem do paciente:
%s

Responda APENAS com JSON neste formato:
{"intent": "<INTENÇÃO>", "phase": "<FASE>", "confidence": <0-100>}`

const urgencyPromptTemplate = `Você avalia a gravidade clínica de mensagens recebidas por uma clínica.
Classifique a mensagem abaixo em um único nível: NONE, LOW, MEDIUM, HIGH ou CRITICAL.
CRITICAL é reservado para situações que exigem atenção imediata (sangramento ativo, falta de ar, dor extrema).
Na dúvida entre dois níveis, escolha o mais alto.

Mensagem:
%s

Responda APENAS com JSON: {"level": "<NÍVEL>"}`

const generatePromptTemplate = `Você é a recepcionista virtual de uma clínica, atendendo pelo WhatsApp.
Responda a mensagem do paciente em português, em tom acolhedor e objetivo, em no máximo três frases.
Não faça avaliação clínica nem prometa horários.

Etapa do paciente no funil: %s (pontuação %d de 100).

Contexto recente da conversa:
%s

%sMensagem do paciente:
%s`

func classifyPrompt(message string, shortContext []string, phaseHint domain.FunnelPhase) string {
	intents := make([]string, 0, len(domain.Intents))
	for _, intent := range domain.Intents {
		intents = append(intents, string(intent))
	}
	return fmt.Sprintf(classifyPromptTemplate,
		strings.Join(intents, ", "),
		phaseHint,
		contextBlock(shortContext),
		message,
	)
}

func urgencyPrompt(message string) string {
	return fmt.Sprintf(urgencyPromptTemplate, message)
}

func generatePrompt(req engine.GenerateRequest) string {
	var playbook string
	if req.Playbook != nil && len(req.Playbook.Steps) > 0 {
		var b strings.Builder
		b.WriteString("Use este roteiro aprovado como base da resposta:\n")
		for _, step := range req.Playbook.Steps {
			fmt.Fprintf(&b, "%d. %s\n", step.Order, step.Content)
		}
		b.WriteString("\n")
		playbook = b.String()
	}
	return fmt.Sprintf(generatePromptTemplate,
		req.Stage,
		req.Score,
		contextBlock(req.ShortContext),
		playbook,
		req.Message,
	)
}

func contextBlock(lines []string) string {
	if len(lines) == 0 {
		return "(sem histórico)"
	}
	return strings.Join(lines, "\n")
}
