package extract

import "fmt"

// SystemInstruction is shared by every structuring call.
const SystemInstruction = "You extract line items from construction budget documents. " +
	"Return JSON only, with no markdown, no commentary, and no code fences."

// PrecisePrompt is the first, strict attempt for a text chunk.
func PrecisePrompt(text string) string {
	return fmt.Sprintf(`Extract every budget line item from the document text below.

Return exactly this JSON shape:
{"items":[{"description":"...","unit":"...","quantity":null,"unit_price":null,"total":null}],"summary":"..."}

Rules:
- One entry per budget line. Do not merge or summarize rows.
- description is the item text, required and non-empty.
- unit is the unit of measure as written (m2, m3, kg, un, vb...), or null.
- quantity, unit_price and total are numbers. When a value is absent or
  unreadable, use null. Never substitute 0 for a missing value.
- Keep headers, section totals and notes OUT of items.
- Respond with JSON only.

Document text:
%s`, text)
}

// RecoveryPrompt is the aggressive second attempt used when the precise
// prompt yielded zero items: it trades precision for recall.
func RecoveryPrompt(text string) string {
	return fmt.Sprintf(`The text below comes from a construction budget. A strict extraction
found no line items, but the document is expected to contain some.

Scan aggressively: any row that looks like a priced or measured line
(description followed by numbers, codes followed by text and amounts,
table fragments, even partially garbled rows) counts as an item.

Return JSON only:
{"items":[{"description":"...","unit":null,"quantity":null,"unit_price":null,"total":null}]}

Use null for every value you cannot read. Never invent numbers and never
use 0 as a stand-in for missing. If there is genuinely nothing resembling
a budget line, return {"items":[]}.

Text:
%s`, text)
}

// DirectPDFPrompt asks the backend to read an inlined PDF itself, bypassing
// local text-layer extraction.
func DirectPDFPrompt() string {
	return `Read the attached construction budget PDF and extract every budget
line item, including rows from tables that span pages.

Return exactly this JSON shape:
{"items":[{"description":"...","unit":"...","quantity":null,"unit_price":null,"total":null}],"summary":"..."}

Use null for any value that is absent or unreadable. Never substitute 0
for a missing value. Respond with JSON only.`
}
