package engine

import (
	"fmt"
	"strings"

	"github.com/ashureev/vitabot/internal/catalog"
	"github.com/ashureev/vitabot/internal/domain"
)

const (
	msgWelcome = "Welcome to Vitabot! I will ask you a few quick questions about how you feel " +
		"and suggest which vitamins or minerals you may be missing.\n\n" +
		"This is not a medical diagnosis. You can send /start at any time to begin again."

	msgHelp = "Commands:\n" +
		"/start - begin a new consultation (also resets the current one)\n" +
		"/help - show this message"

	msgExamRequest = "Payment received, thank you!\n\nPlease type the results of your most recent blood exams " +
		"(for example: ferritin 15, vitamin D 18, B12 210)."

	msgUnknownCommand    = "I don't know that command. Send /start to begin a consultation or /help for help."
	msgUseButtons        = "Please answer with the Yes or No buttons below."
	msgStaleQuestion     = "That question was already answered."
	msgNoAnalysis        = "You didn't report any of the symptoms we check, so there is nothing to analyse. Great news! Send /start if you want to answer again."
	msgAnalysisHeader    = "Based on your answers, you may be low on:"
	msgPlanMenu          = "Choose how you want to continue:"
	msgPlanNotRecognized = "Sorry, I didn't recognise that plan."
	msgInvoiceExpired    = "This invoice is no longer valid. Send /start to begin again."
	msgAmountMismatch    = "The payment does not match your order."
	msgUnexpectedPayment = "We received a payment that doesn't match your current order. Please contact support and keep your receipt."
	msgExamReprompt      = "Please send your exam results as a text message."
	msgNoMarkers         = "We didn't find any markers we know in your exam, so the plan below is based on your answers."
	msgConsultationOver  = "This consultation has finished. Send /start to begin a new one."
	msgNotStarted        = "Send /start to begin your consultation."
	msgFallback          = "I didn't understand. Send /start to begin your consultation."
	msgRestartFooter     = "\n\nSend /start whenever you want a new consultation."
)

func questionText(i, total int, s domain.Symptom) string {
	return fmt.Sprintf("Question %d of %d\n\n%s", i+1, total, s.Prompt)
}

func answeredText(i, total int, s domain.Symptom, yes bool) string {
	answer := "No"
	if yes {
		answer = "Yes"
	}
	return fmt.Sprintf("%s\n\nYour answer: %s", questionText(i, total, s), answer)
}

func yesNoKeyboard(pass, i int) domain.Keyboard {
	return domain.Keyboard{{
		{Text: "Yes", Data: symptomCallback(pass, i, true)},
		{Text: "No", Data: symptomCallback(pass, i, false)},
	}}
}

func planKeyboard(c *catalog.Catalog) domain.Keyboard {
	kb := make(domain.Keyboard, 0, len(c.Plans))
	for _, p := range c.Plans {
		kb = append(kb, []domain.Button{{
			Text: fmt.Sprintf("%s (%s)", p.Title, formatPrice(p.PriceUnits, c.Currency)),
			Data: planCallback(p.Tag),
		}})
	}
	return kb
}

func planMenuText(c *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString(msgPlanMenu)
	for _, p := range c.Plans {
		fmt.Fprintf(&b, "\n\n%s - %s\n%s", p.Title, formatPrice(p.PriceUnits, c.Currency), p.Description)
	}
	return b.String()
}

// formatPrice renders minor units as a decimal amount, e.g. 4990 BRL -> "BRL 49.90".
func formatPrice(units int, currency string) string {
	if units == 0 {
		return "free"
	}
	return fmt.Sprintf("%s %d.%02d", currency, units/100, units%100)
}

// deficiencyHints returns the distinct hints of the collected symptoms, in
// the order they were collected.
func deficiencyHints(symptoms []domain.Symptom) []string {
	seen := make(map[string]bool, len(symptoms))
	var hints []string
	for _, s := range symptoms {
		if s.DeficiencyHint == "" || seen[s.DeficiencyHint] {
			continue
		}
		seen[s.DeficiencyHint] = true
		hints = append(hints, s.DeficiencyHint)
	}
	return hints
}

func analysisText(symptoms []domain.Symptom) string {
	var b strings.Builder
	b.WriteString(msgAnalysisHeader)
	for _, h := range deficiencyHints(symptoms) {
		b.WriteString("\n- ")
		b.WriteString(h)
	}
	return b.String()
}

func freePrescriptionText(p catalog.Plan) string {
	return strings.TrimSpace(p.Prescription) + msgRestartFooter
}

func paidPrescriptionText(p catalog.Plan, symptoms []domain.Symptom) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Prescription))
	b.WriteString("\n\nSupplementation to discuss with your doctor:")
	for _, h := range deficiencyHints(symptoms) {
		b.WriteString("\n- ")
		b.WriteString(h)
	}
	b.WriteString(msgRestartFooter)
	return b.String()
}

func personalizedPrescriptionText(p catalog.Plan, symptoms []domain.Symptom, advice []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Prescription))
	b.WriteString("\n\nFrom your answers:")
	for _, h := range deficiencyHints(symptoms) {
		b.WriteString("\n- ")
		b.WriteString(h)
	}
	b.WriteString("\n\nFrom your exams:")
	if len(advice) == 0 {
		b.WriteString("\n")
		b.WriteString(msgNoMarkers)
	}
	for _, a := range advice {
		b.WriteString("\n- ")
		b.WriteString(a)
	}
	b.WriteString(msgRestartFooter)
	return b.String()
}

func paymentPromptText(p catalog.Plan, currency string) string {
	return fmt.Sprintf("The %s plan costs %s. Online payment is not available at the moment; "+
		"send /start to choose again.", p.Title, formatPrice(p.PriceUnits, currency))
}

func awaitingPaymentText(p catalog.Plan, currency string) string {
	return fmt.Sprintf("Your %s plan (%s) is waiting for payment. Use the invoice above, or send /start to begin again.",
		p.Title, formatPrice(p.PriceUnits, currency))
}
