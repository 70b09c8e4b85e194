package assistant

import (
	"fmt"
	"strings"
)

// FallbackMessage is returned to the user whenever the remote service
// fails. The chat never surfaces transport errors.
const FallbackMessage = "Desculpe, não consegui processar sua mensagem agora. Tente novamente em instantes."

// DefaultCategories seeds the known-categories list when none is
// configured. Categories stay free-form in the data model; this list only
// shapes the assistant prompt and boundary hints.
var DefaultCategories = []string{
	"Alimentação",
	"Transporte",
	"Moradia",
	"Saúde",
	"Lazer",
	"Educação",
	"Salário",
	"Outros",
}

func systemInstruction(categories []string) string {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return fmt.Sprintf(`Você é o Grão, o assistente financeiro do aplicativo Grana.

Regras de comportamento:
- Responda sempre em português, de forma curta e amigável.
- Quando o usuário relatar um gasto ou receita, registre-o chamando a função add_transaction. Nunca apenas descreva o registro: chame a função.
- Use type EXPENSE para gastos e REVENUE para receitas. O campo amount é sempre positivo.
- Escolha category entre: %s. Se nenhuma servir, use "Outros".
- Se o usuário pedir para ajustar o saldo total, chame update_balance com o novo valor.
- Se a mensagem for um áudio, transcreva a intenção antes de decidir.
- Nunca invente valores: se o valor não estiver claro, pergunte.`,
		strings.Join(categories, ", "))
}

// toolDeclarations is the fixed tool schema sent with every request.
func toolDeclarations() []genFunctionDecl {
	return []genFunctionDecl{
		{
			Name:        CallAddTransaction,
			Description: "Registra uma transação financeira (gasto ou receita) para o usuário.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount": map[string]any{
						"type":        "number",
						"description": "Valor da transação, sempre positivo.",
					},
					"type": map[string]any{
						"type":        "string",
						"enum":        []string{"REVENUE", "EXPENSE"},
						"description": "REVENUE para receita, EXPENSE para gasto.",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "Descrição curta da transação.",
					},
					"category": map[string]any{
						"type":        "string",
						"description": "Categoria da transação.",
					},
				},
				"required": []string{"amount", "type", "description", "category"},
			},
		},
		{
			Name:        CallUpdateBalance,
			Description: "Define o saldo total (patrimônio) do usuário para um novo valor.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount": map[string]any{
						"type":        "number",
						"description": "Novo saldo total desejado.",
					},
				},
				"required": []string{"amount"},
			},
		},
	}
}
