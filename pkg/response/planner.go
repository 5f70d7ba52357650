// Package response turns gathered evidence into the final answer: a
// framework prompt chosen by question type, window-fitted messages, a
// streamed generation with continuation on truncation, and citation
// closure over the produced text.
package response

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amtlich/amtlich/pkg/budget"
	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
)

const systemPrompt = `Du bist ein Assistent für deutsches Verwaltungsrecht.
Beantworte die Frage ausschließlich anhand der nummerierten Quellen.
Belege Aussagen mit Quellenverweisen in eckigen Klammern, z. B. [1].
Verweise nur auf Quellennummern, die in der Quellenliste vorkommen.
Wenn die Quellen keine Antwort hergeben, sage das offen.`

// frameworks are per-question-type answer structures appended to the
// system prompt. Types without an entry use the generic instruction.
var frameworks = map[models.QuestionType]string{
	models.QuestionFactRetrieval: "Antworte knapp und direkt. Nenne die Kernaussage im ersten Satz.",
	models.QuestionComparison:    "Stelle die Alternativen einzeln dar und schließe mit einer Gegenüberstellung der Unterschiede.",
	models.QuestionProcedural:    "Beschreibe das Verfahren als nummerierte Schritte in der Reihenfolge der Durchführung, mit zuständiger Stelle und Fristen je Schritt.",
	models.QuestionCalculation:   "Führe die Berechnung nachvollziehbar vor: Ausgangswerte, Rechenweg, Ergebnis. Nenne die Gebühren- oder Rechtsgrundlage.",
	models.QuestionTimeline:      "Ordne die Ereignisse chronologisch und nenne für jeden Punkt das maßgebliche Datum oder die Frist.",
	models.QuestionCausal:        "Erkläre zuerst die Ursache, dann die Wirkung, und benenne die rechtliche Grundlage des Zusammenhangs.",
}

// plannedPrompt is the outcome of response planning.
type plannedPrompt struct {
	messages        []llm.Message
	effectiveBudget int
	model           string
	strategy        budget.WindowStrategy
}

// planPrompt selects the framework, renders the evidence as numbered
// sources grouped by document type, and fits everything into the
// model's window. On degrade_model the suggested model replaces the
// configured one.
func planPrompt(query models.Query, hyp *models.Hypothesis, tokenBudget *models.TokenBudget, candidates []models.Citation, windows *budget.WindowManager, model string) (plannedPrompt, error) {
	system := systemPrompt
	if framework, ok := frameworks[hyp.QuestionType]; ok {
		system += "\n\n" + framework
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
	}
	if evidence := renderEvidence(candidates); evidence != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: evidence})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Frage: " + query.Text})

	allocated := models.MinTokenBudget
	if tokenBudget != nil {
		allocated = tokenBudget.Allocated
	}

	fit, err := windows.Fit(messages, allocated, model)
	if err != nil {
		return plannedPrompt{}, err
	}
	effectiveModel := model
	if fit.Strategy == budget.StrategyDegradeModel && fit.SuggestedModel != "" {
		effectiveModel = fit.SuggestedModel
	}
	return plannedPrompt{
		messages: fit.Messages,
		// Under degrade_model the fitted budget may be smaller than the
		// allocation; the generation must respect the smaller window.
		effectiveBudget: fit.ReducedBudget,
		model:           effectiveModel,
		strategy:        fit.Strategy,
	}, nil
}

// renderEvidence lists the numbered sources, clustered by document type
// so related evidence sits together in the prompt.
func renderEvidence(candidates []models.Citation) string {
	if len(candidates) == 0 {
		return ""
	}

	clusters := make(map[string][]models.Citation)
	var order []string
	for _, c := range candidates {
		if _, seen := clusters[c.Type]; !seen {
			order = append(order, c.Type)
		}
		clusters[c.Type] = append(clusters[c.Type], c)
	}
	sort.Strings(order)

	var sb strings.Builder
	sb.WriteString("Quellen:\n")
	for _, docType := range order {
		fmt.Fprintf(&sb, "\n%s:\n", clusterLabel(docType))
		for _, c := range clusters[docType] {
			fmt.Fprintf(&sb, "[%d] %s", c.ID, c.Title)
			if c.Authority != "" {
				fmt.Fprintf(&sb, " (%s)", c.Authority)
			}
			sb.WriteString("\n")
			if c.Excerpt != "" {
				sb.WriteString(c.Excerpt)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

func clusterLabel(docType string) string {
	switch docType {
	case "law":
		return "Gesetze und Verordnungen"
	case "ruling":
		return "Entscheidungen"
	case "form":
		return "Formulare und Merkblätter"
	default:
		return "Weitere Dokumente"
	}
}
