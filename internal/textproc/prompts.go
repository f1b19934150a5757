package textproc

import (
	"fmt"
	"strings"
)

// CalculatorPrompt drives the running-total calculator.
const CalculatorPrompt = "You are a calculator assistant that adds numbers. Follow these rules exactly:\n" +
	"1. If this is the first number in the conversation, respond with exactly: 'You entered: NUMBER'\n" +
	"2. For subsequent numbers, add the new number to the previous result and respond with: 'PREVIOUS_RESULT + NEW_NUMBER = NEW_RESULT'\n" +
	"3. Always perform addition correctly and maintain the running total\n" +
	"4. Do not include any extra explanations or text in your response\n" +
	"5. Pay close attention to the conversation history to determine the current total\n" +
	"6. If I give you number 1, then 2, then 3, your responses should be: 'You entered: 1', '1 + 2 = 3', '3 + 3 = 6'"

// ClarificationRequest is returned when an instruction arrives before any
// base text. It is never treated as the current text.
const ClarificationRequest = "Please provide some text first, then tell me how you would like it changed."

// IsClarification reports whether a model reply is the clarification
// request, ignoring case, surrounding whitespace and quotes.
func IsClarification(reply string) bool {
	return strings.EqualFold(normalizeReply(reply), normalizeReply(ClarificationRequest))
}

func normalizeReply(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "'\"`")
	return strings.TrimSpace(s)
}

// TransformPrompt is the single-step prompt. It doubles as the session's
// system message.
const TransformPrompt = "You are a text transformation assistant. Decide whether the user's message is CONTENT or an INSTRUCTION.\n" +
	"- CONTENT is a piece of text to work with. Repeat it back exactly as written.\n" +
	"- An INSTRUCTION asks to change previous text. If earlier text exists in the conversation, apply the change to the most recent text and reply with only the new text.\n" +
	"- If an INSTRUCTION arrives and there is no earlier text, reply with exactly: " + ClarificationRequest + "\n" +
	"Never add explanations, quotes or commentary.\n\n" +
	"Examples:\n" +
	"User: a bright blue cow\nAssistant: a bright blue cow\n\n" +
	"User: make it red (no earlier text)\nAssistant: " + ClarificationRequest + "\n\n" +
	"User: make it red (earlier text: a bright blue cow)\nAssistant: a bright red cow\n\n" +
	"User: the quick brown fox jumps\nAssistant: the quick brown fox jumps"

// Intent is a category of requested change.
type Intent string

const (
	IntentColorChange         Intent = "COLOR_CHANGE"
	IntentSizeChange          Intent = "SIZE_CHANGE"
	IntentObjectSubstitution  Intent = "OBJECT_SUBSTITUTION"
	IntentQuantityChange      Intent = "QUANTITY_CHANGE"
	IntentAttributeAdd        Intent = "ATTRIBUTE_ADD"
	IntentAttributeRemove     Intent = "ATTRIBUTE_REMOVE"
	IntentGrammarChange       Intent = "GRAMMAR_CHANGE"
	IntentStyleChange         Intent = "STYLE_CHANGE"
	IntentComplexModification Intent = "COMPLEX_MODIFICATION"
)

// Intents lists the taxonomy in prompt order.
var Intents = []Intent{
	IntentColorChange,
	IntentSizeChange,
	IntentObjectSubstitution,
	IntentQuantityChange,
	IntentAttributeAdd,
	IntentAttributeRemove,
	IntentGrammarChange,
	IntentStyleChange,
	IntentComplexModification,
}

var intentPrompt = func() string {
	names := make([]string, len(Intents))
	for i, in := range Intents {
		names[i] = string(in)
	}
	return "You analyze requested edits to a piece of text. Classify the request into exactly one category: " +
		strings.Join(names, ", ") + ".\n" +
		"Reply on one line in the form CATEGORY: description, where description states precisely what must change " +
		"and what must stay the same.\n\n" +
		"Examples:\n" +
		"Text: a bright blue cow | Request: make it red\n" +
		"COLOR_CHANGE: replace the color blue with red; keep 'bright' and 'cow' unchanged\n\n" +
		"Text: a small house | Request: make it huge\n" +
		"SIZE_CHANGE: replace 'small' with 'huge'; keep 'house'\n\n" +
		"Text: two cats | Request: make it a dog instead\n" +
		"OBJECT_SUBSTITUTION: replace 'cats' with a dog and adjust the count words to match"
}()

const executePrompt = "You apply a described edit to a piece of text. Reply with only the transformed text. " +
	"Do not explain, do not quote, do not keep words the edit replaces."

// IntentAnalysis is the parsed result of the intent pass.
type IntentAnalysis struct {
	Intent      Intent
	Description string
}

func (a IntentAnalysis) String() string {
	return fmt.Sprintf("%s: %s", a.Intent, a.Description)
}

// ParseIntent reads "CATEGORY: description". Unknown categories map to
// COMPLEX_MODIFICATION with the whole reply as description.
func ParseIntent(reply string) IntentAnalysis {
	reply = strings.TrimSpace(reply)
	head, tail, found := strings.Cut(reply, ":")
	if found {
		cat := Intent(strings.ToUpper(strings.TrimSpace(head)))
		for _, in := range Intents {
			if cat == in {
				return IntentAnalysis{Intent: in, Description: strings.TrimSpace(tail)}
			}
		}
	}
	return IntentAnalysis{Intent: IntentComplexModification, Description: reply}
}

func intentRequest(current, instruction string) string {
	return fmt.Sprintf("Text: %s | Request: %s", current, instruction)
}

func executeRequest(current string, analysis IntentAnalysis) string {
	return fmt.Sprintf("Text: %s\nEdit: %s\nTransformed text:", current, analysis)
}
