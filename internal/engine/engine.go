// Package engine implements the conversation state machine.
//
// The engine is pure: Transition takes the current session and one event and
// returns the next session plus the outbound actions that describe the
// reply. It performs no I/O and never mutates its input, so the dispatcher
// can discard the result if executing the actions fails.
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/vitabot/internal/catalog"
	"github.com/ashureev/vitabot/internal/domain"
)

const (
	callbackSymptomPrefix = "symptom:"
	callbackPlanPrefix    = "plan:"
	invoicePayloadPrefix  = "vitabot:"
)

// Options tunes engine behavior that depends on deployment configuration.
type Options struct {
	// InvoicesEnabled selects native invoices for paid plans. When false a
	// text payment prompt is sent instead.
	InvoicesEnabled bool
}

// Engine computes dialogue transitions against a fixed catalog.
type Engine struct {
	catalog *catalog.Catalog
	opts    Options
}

// New creates an engine. The catalog must already be validated.
func New(c *catalog.Catalog, opts Options) *Engine {
	return &Engine{catalog: c, opts: opts}
}

// Fresh returns the session used for a conversation seen for the first time.
func (e *Engine) Fresh(conversationID int64, now time.Time) domain.Session {
	return domain.NewSession(conversationID, now)
}

// InvoicePayload is the opaque payload attached to a plan invoice for a
// conversation. It is checked again at precheckout and after payment.
func InvoicePayload(plan domain.PlanTag, conversationID int64) string {
	return fmt.Sprintf("%s%s:%d", invoicePayloadPrefix, plan, conversationID)
}

// PlanFromPayload extracts the plan tag from an invoice payload.
func PlanFromPayload(payload string) (domain.PlanTag, bool) {
	rest, ok := strings.CutPrefix(payload, invoicePayloadPrefix)
	if !ok {
		return "", false
	}
	tag, _, ok := strings.Cut(rest, ":")
	plan := domain.PlanTag(tag)
	return plan, ok && plan.Paid()
}

func symptomCallback(pass, i int, yes bool) string {
	answer := "no"
	if yes {
		answer = "yes"
	}
	return fmt.Sprintf("%s%d:%d:%s", callbackSymptomPrefix, pass, i, answer)
}

// parseSymptomCallback decodes "symptom:<pass>:<index>:yes|no".
func parseSymptomCallback(data string) (pass, index int, yes bool, ok bool) {
	rest, found := strings.CutPrefix(data, callbackSymptomPrefix)
	if !found {
		return 0, 0, false, false
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return 0, 0, false, false
	}
	pass, err := strconv.Atoi(parts[0])
	if err != nil || pass < 0 {
		return 0, 0, false, false
	}
	index, err = strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return 0, 0, false, false
	}
	switch parts[2] {
	case "yes":
		return pass, index, true, true
	case "no":
		return pass, index, false, true
	}
	return 0, 0, false, false
}

func planCallback(tag domain.PlanTag) string {
	return callbackPlanPrefix + string(tag)
}

// turn accumulates the outcome of one transition.
type turn struct {
	ev       domain.Event
	next     domain.Session
	actions  []domain.Action
	answered bool
}

func (t *turn) send(text string, kb domain.Keyboard) {
	t.actions = append(t.actions, domain.SendText(t.ev.ConversationID, text, kb))
}

// answerCallback acknowledges the button press; it is emitted at most once
// and always first so the client stops its progress indicator.
func (t *turn) answerCallback(text string) {
	if t.ev.Kind != domain.EventCallbackAction || t.answered {
		return
	}
	t.answered = true
	t.actions = append([]domain.Action{domain.AnswerCallback(t.ev.CallbackID, text)}, t.actions...)
}

func (t *turn) answerPrecheckout(ok bool, reason string) {
	if t.ev.Kind != domain.EventPrecheckoutRequest || t.ev.Payment == nil || t.answered {
		return
	}
	t.answered = true
	t.actions = append(t.actions, domain.AnswerPrecheckout(t.ev.Payment.QueryID, ok, reason))
}

// Transition computes the next session and the actions for one event.
func (e *Engine) Transition(s domain.Session, ev domain.Event, now time.Time) (domain.Session, []domain.Action) {
	t := &turn{ev: ev, next: s.Clone()}
	if t.next.ConversationID == 0 {
		t.next.ConversationID = ev.ConversationID
	}

	outOfOrder := t.next.State != domain.StatePayment &&
		(ev.Kind == domain.EventPrecheckoutRequest || ev.Kind == domain.EventPaymentOutcome)

	switch {
	case ev.Kind == domain.EventCommand:
		e.command(t)
	case outOfOrder:
		// Payment updates only make sense while an order is pending.
		if ev.Kind == domain.EventPaymentOutcome {
			t.send(msgUnexpectedPayment, nil)
		}
	default:
		switch t.next.State {
		case domain.StateSymptomQuestion:
			e.symptomQuestion(t)
		case domain.StatePlanSelect:
			e.planSelect(t)
		case domain.StatePayment:
			e.payment(t)
		case domain.StateExam:
			e.exam(t)
		case domain.StateAnalyze:
			e.analyze(t)
		case domain.StateResult:
			e.result(t)
		default:
			e.idle(t)
		}
	}

	// Callback and precheckout queries must always be answered, whatever
	// the state decided.
	t.answerCallback("")
	t.answerPrecheckout(false, msgInvoiceExpired)

	if !t.next.State.Valid() {
		t.next.State = domain.StateWelcome
	}
	t.next.UpdatedAt = now
	return t.next, t.actions
}

func (e *Engine) command(t *turn) {
	switch t.ev.Command {
	case "start", "restart":
		e.restart(t)
	case "help":
		t.send(msgHelp, nil)
	default:
		t.send(msgUnknownCommand, nil)
	}
}

// restart resets the session in place and asks the first question.
func (e *Engine) restart(t *turn) {
	t.next.State = domain.StateSymptomQuestion
	t.next.SymptomCursor = 0
	t.next.Pass++
	t.next.CollectedSymptoms = nil
	t.next.SelectedPlan = nil
	t.next.ExamNotes = ""

	t.send(msgWelcome, nil)
	e.askQuestion(t)
}

func (e *Engine) askQuestion(t *turn) {
	i := t.next.SymptomCursor
	total := e.catalog.Len()
	t.send(questionText(i, total, e.catalog.Symptoms[i]), yesNoKeyboard(t.next.Pass, i))
}

func (e *Engine) symptomQuestion(t *turn) {
	total := e.catalog.Len()
	cursor := t.next.SymptomCursor
	if cursor >= total {
		// All questions answered but analysis never ran; finish it now.
		e.analyze(t)
		return
	}

	switch t.ev.Kind {
	case domain.EventCallbackAction:
		pass, idx, yes, ok := parseSymptomCallback(t.ev.CallbackData)
		if !ok {
			t.answerCallback(msgUseButtons)
			e.repromptQuestion(t)
			return
		}
		if pass != t.next.Pass || idx != cursor {
			t.answerCallback(msgStaleQuestion)
			return
		}

		t.answerCallback("")
		symptom := e.catalog.Symptoms[cursor]
		if t.ev.MessageID != 0 {
			t.actions = append(t.actions,
				domain.EditText(t.ev.ConversationID, t.ev.MessageID, answeredText(cursor, total, symptom, yes), nil))
		}
		if yes {
			t.next.CollectedSymptoms = append(t.next.CollectedSymptoms, symptom)
		}
		t.next.SymptomCursor = cursor + 1

		if t.next.SymptomCursor == total {
			e.analyze(t)
			return
		}
		e.askQuestion(t)

	default:
		e.repromptQuestion(t)
	}
}

func (e *Engine) repromptQuestion(t *turn) {
	i := t.next.SymptomCursor
	text := msgUseButtons + "\n\n" + questionText(i, e.catalog.Len(), e.catalog.Symptoms[i])
	t.send(text, yesNoKeyboard(t.next.Pass, i))
}

// analyze is a transient state: it immediately moves on to plan selection
// or, when nothing was collected, ends the consultation.
func (e *Engine) analyze(t *turn) {
	if len(t.next.CollectedSymptoms) == 0 {
		t.next.State = domain.StateTerminal
		t.send(msgNoAnalysis, nil)
		return
	}

	t.next.State = domain.StatePlanSelect
	t.send(analysisText(t.next.CollectedSymptoms), nil)
	t.send(planMenuText(e.catalog), planKeyboard(e.catalog))
}

func (e *Engine) planSelect(t *turn) {
	switch t.ev.Kind {
	case domain.EventCallbackAction:
		tag, ok := strings.CutPrefix(t.ev.CallbackData, callbackPlanPrefix)
		plan := domain.PlanTag(tag)
		if !ok || !plan.Valid() {
			t.answerCallback(msgPlanNotRecognized)
			e.repromptPlan(t)
			return
		}
		t.answerCallback("")
		e.choosePlan(t, plan)

	case domain.EventText:
		plan, ok := e.matchPlan(t.ev.Text)
		if !ok {
			e.repromptPlan(t)
			return
		}
		e.choosePlan(t, plan)

	default:
		e.repromptPlan(t)
	}
}

// matchPlan accepts a plan tag or title typed in any case or accent form.
func (e *Engine) matchPlan(text string) (domain.PlanTag, bool) {
	input := compact(text)
	if input == "" {
		return "", false
	}
	for _, p := range e.catalog.Plans {
		if input == compact(string(p.Tag)) || input == compact(p.Title) {
			return p.Tag, true
		}
	}
	return "", false
}

func (e *Engine) repromptPlan(t *turn) {
	t.send(msgPlanNotRecognized+"\n\n"+planMenuText(e.catalog), planKeyboard(e.catalog))
}

func (e *Engine) choosePlan(t *turn, tag domain.PlanTag) {
	plan, _ := e.catalog.Plan(tag)
	selected := tag
	t.next.SelectedPlan = &selected

	if !tag.Paid() {
		t.next.State = domain.StateTerminal
		t.send(freePrescriptionText(plan), nil)
		return
	}

	t.next.State = domain.StatePayment
	if !e.opts.InvoicesEnabled {
		t.send(paymentPromptText(plan, e.catalog.Currency), nil)
		return
	}
	t.actions = append(t.actions, domain.SendInvoice(t.ev.ConversationID, domain.Invoice{
		Title:       "Vitabot " + plan.Title,
		Description: plan.Description,
		Payload:     InvoicePayload(tag, t.ev.ConversationID),
		Currency:    e.catalog.Currency,
		PriceUnits:  plan.PriceUnits,
	}))
}

// checkPayment compares payment details against the pending order and
// returns a user-facing reason when they do not match.
func (e *Engine) checkPayment(s domain.Session, p *domain.PaymentInfo) (string, bool) {
	if p == nil || s.State != domain.StatePayment || !s.Plan().Paid() {
		return msgInvoiceExpired, false
	}
	if p.InvoicePayload != InvoicePayload(s.Plan(), s.ConversationID) {
		return msgInvoiceExpired, false
	}
	plan, _ := e.catalog.Plan(s.Plan())
	if !strings.EqualFold(p.Currency, e.catalog.Currency) || p.TotalAmount != plan.PriceUnits {
		return msgAmountMismatch, false
	}
	return "", true
}

func (e *Engine) payment(t *turn) {
	plan, _ := e.catalog.Plan(t.next.Plan())

	switch t.ev.Kind {
	case domain.EventPrecheckoutRequest:
		reason, ok := e.checkPayment(t.next, t.ev.Payment)
		t.answerPrecheckout(ok, reason)

	case domain.EventPaymentOutcome:
		if _, ok := e.checkPayment(t.next, t.ev.Payment); !ok {
			t.send(msgUnexpectedPayment, nil)
			return
		}
		if t.next.Plan() == domain.PlanTier3 {
			t.next.State = domain.StateExam
			t.send(msgExamRequest, nil)
			return
		}
		t.next.State = domain.StateTerminal
		t.send(paidPrescriptionText(plan, t.next.CollectedSymptoms), nil)

	default:
		t.send(awaitingPaymentText(plan, e.catalog.Currency), nil)
	}
}

func (e *Engine) exam(t *turn) {
	if t.ev.Kind != domain.EventText || strings.TrimSpace(t.ev.Text) == "" {
		t.send(msgExamReprompt, nil)
		return
	}
	t.next.ExamNotes = t.ev.Text
	t.next.State = domain.StateResult
	e.result(t)
}

// result is transient: it composes the personalized prescription and ends
// the consultation.
func (e *Engine) result(t *turn) {
	var advice []string
	for _, m := range e.catalog.ExamMarkers {
		if containsPhrase(t.next.ExamNotes, m.Phrase) {
			advice = append(advice, m.Advice)
		}
	}
	plan, _ := e.catalog.Plan(domain.PlanTier3)
	t.next.State = domain.StateTerminal
	t.send(personalizedPrescriptionText(plan, t.next.CollectedSymptoms, advice), nil)
}

// idle handles the welcome and terminal states, where only /start moves
// the conversation forward.
func (e *Engine) idle(t *turn) {
	switch t.ev.Kind {
	case domain.EventText:
		t.send(e.fallbackReply(t.ev.Text), nil)
	case domain.EventCallbackAction:
		if t.next.State == domain.StateTerminal {
			t.answerCallback(msgConsultationOver)
		} else {
			t.answerCallback(msgNotStarted)
		}
	}
}

// fallbackReply answers free text outside the questionnaire. The first
// greeting whose phrase appears in the text wins.
func (e *Engine) fallbackReply(text string) string {
	for _, g := range e.catalog.Greetings {
		for _, phrase := range g.Phrases {
			if containsPhrase(text, phrase) {
				return g.Reply
			}
		}
	}
	return msgFallback
}
