// Package prompts holds the instruction templates sent to language models.
package prompts

import (
	"fmt"
	"strings"
	"time"
)

// QuotationSystemMessage is the fixed instruction contract of the fallback extractor.
const QuotationSystemMessage = `You extract price quotations from business emails for a refractory and industrial materials supplier.
Reply with exactly one JSON object and nothing else. Never invent values that are not in the email.`

// QuotationEmail is the email content given to the model.
type QuotationEmail struct {
	Subject    string
	From       string
	To         string
	ReceivedAt time.Time
	Body       string
}

// BuildQuotationExtractionPrompt creates the user prompt for quotation extraction.
// catalogSample is a bounded list of known material names that the model should
// prefer when a line item clearly refers to one of them.
func BuildQuotationExtractionPrompt(email QuotationEmail, catalogSample []string) string {
	var prompt strings.Builder

	prompt.WriteString("# Quotation Extraction\n\n")
	prompt.WriteString("Extract every quoted line item from the email below.\n\n")

	prompt.WriteString("## Email\n\n")
	if email.Subject != "" {
		prompt.WriteString(fmt.Sprintf("Subject: %s\n", email.Subject))
	}
	if email.From != "" {
		prompt.WriteString(fmt.Sprintf("From: %s\n", email.From))
	}
	if email.To != "" {
		prompt.WriteString(fmt.Sprintf("To: %s\n", email.To))
	}
	if !email.ReceivedAt.IsZero() {
		prompt.WriteString(fmt.Sprintf("Received: %s\n", email.ReceivedAt.Format("2006-01-02")))
	}
	prompt.WriteString("\n```\n")
	prompt.WriteString(email.Body)
	prompt.WriteString("\n```\n\n")

	if len(catalogSample) > 0 {
		prompt.WriteString("## Known Materials\n\n")
		prompt.WriteString("Use these exact names when an item is clearly the same product:\n")
		for _, name := range catalogSample {
			prompt.WriteString(fmt.Sprintf("- %s\n", name))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- One entry in `items` per quoted material, in the order they appear.\n")
	prompt.WriteString("- `rate` is the unit price as a number without currency symbols or thousands separators.\n")
	prompt.WriteString("- `quantity` is a number or null. `unit` is the unit as written (MT, KG, NOS, BAG...).\n")
	prompt.WriteString("- `currency` is an ISO code; use INR when the email does not say.\n")
	prompt.WriteString("- `confidence` is your confidence in each item between 0 and 1.\n")
	prompt.WriteString("- `client` is the customer organisation the quotation is addressed to or received from.\n")
	prompt.WriteString("- `metadata.quotation_date` is YYYY-MM-DD or null.\n")
	prompt.WriteString("- If the email contains no quotation, return an empty `items` array.\n\n")

	prompt.WriteString("## Response Format\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "client": {"name": "", "email": "", "contact_person": ""},
  "items": [
    {
      "name": "",
      "quantity": null,
      "unit": "",
      "rate": 0,
      "currency": "INR",
      "hsn_code": "",
      "delivery_location": "",
      "confidence": 0.0
    }
  ],
  "terms": {"payment": "", "delivery": "", "validity": ""},
  "metadata": {"quotation_date": null}
}`)
	prompt.WriteString("\n```\n")

	return prompt.String()
}
