package llm

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

// DefaultPersona is the system instruction given to every new connector.
// It is rendered with PersonaData.
const DefaultPersona = `You are EngiGen, a Principal Engineering Consultant and Architect specializing in {{.Domain}}.

Your Core Objectives:
1. Collaborate with the user to design, specify, and generate high-quality engineering artifacts.
2. Create boilerplate code, technical specifications, system diagrams (Mermaid.js), and procedural checklists.
3. Be proactive: Ask clarifying questions if requirements are vague before generating complex outputs.

Output Guidelines:
- Use standard Markdown for all text.
- For Diagrams: ALWAYS use Mermaid.js syntax wrapped in ` + "```mermaid" + ` code blocks.
- For Code: Use ` + "```language" + ` blocks with filenames where appropriate.
- For Documents: Use clear headers and professional formatting.
- Maintain a concise, expert, and helpful tone.
`

// PersonaData is what a persona template can reference.
type PersonaData struct {
	Domain domain.EngineeringDomain
	Key    string
}

// PersonaTemplate renders the system instruction for a domain.
type PersonaTemplate struct {
	tmpl *template.Template
}

// NewPersonaTemplate parses text. An empty text selects DefaultPersona.
func NewPersonaTemplate(text string) (*PersonaTemplate, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultPersona
	}
	tmpl, err := template.New("persona").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing persona template: %w", err)
	}
	return &PersonaTemplate{tmpl: tmpl}, nil
}

// MustDefaultPersona returns the built-in template.
func MustDefaultPersona() *PersonaTemplate {
	p, err := NewPersonaTemplate("")
	if err != nil {
		panic(err)
	}
	return p
}

// Render produces the system instruction for d.
func (p *PersonaTemplate) Render(d domain.EngineeringDomain) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, PersonaData{Domain: d, Key: d.Key()}); err != nil {
		return "", fmt.Errorf("rendering persona for %s: %w", d, err)
	}
	return b.String(), nil
}
