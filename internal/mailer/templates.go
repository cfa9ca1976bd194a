package mailer

import (
	"bytes"
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// TemplateInvitation is the catalog entry used for invitation emails.
const TemplateInvitation = "invitation"

//go:embed templates.yml
var defaultCatalog []byte

type templateSource struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
}

type compiledTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Rendered is a message ready to hand to a Sender.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// InvitationData feeds the invitation template.
type InvitationData struct {
	Email         string
	Inviter       string
	ActivationURL string
	ExpiresAt     time.Time
}

// Catalog holds the parsed email templates keyed by name.
type Catalog struct {
	templates map[string]compiledTemplate
}

// DefaultCatalog parses the embedded templates.yml.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog compiles a YAML document mapping template names to subject, text and html bodies.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var sources map[string]templateSource
	if err := yaml.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("mailer: parse catalog: %w", err)
	}

	cat := &Catalog{templates: make(map[string]compiledTemplate, len(sources))}
	for name, src := range sources {
		if src.Subject == "" || (src.Text == "" && src.HTML == "") {
			return nil, fmt.Errorf("mailer: template %q needs a subject and a body", name)
		}
		var (
			ct  compiledTemplate
			err error
		)
		if ct.subject, err = texttemplate.New(name + ".subject").Option("missingkey=error").Parse(src.Subject); err != nil {
			return nil, fmt.Errorf("mailer: template %q subject: %w", name, err)
		}
		if src.Text != "" {
			if ct.text, err = texttemplate.New(name + ".txt").Option("missingkey=error").Parse(src.Text); err != nil {
				return nil, fmt.Errorf("mailer: template %q text: %w", name, err)
			}
		}
		if src.HTML != "" {
			if ct.html, err = htmltemplate.New(name + ".html").Option("missingkey=error").Parse(src.HTML); err != nil {
				return nil, fmt.Errorf("mailer: template %q html: %w", name, err)
			}
		}
		cat.templates[name] = ct
	}
	return cat, nil
}

// Render executes the named template against data.
func (c *Catalog) Render(name string, data any) (*Rendered, error) {
	ct, ok := c.templates[name]
	if !ok {
		return nil, fmt.Errorf("mailer: unknown template %q", name)
	}

	var out Rendered
	var buf bytes.Buffer
	if err := ct.subject.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("mailer: render %q subject: %w", name, err)
	}
	out.Subject = buf.String()

	if ct.text != nil {
		buf.Reset()
		if err := ct.text.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("mailer: render %q text: %w", name, err)
		}
		out.Text = buf.String()
	}
	if ct.html != nil {
		buf.Reset()
		if err := ct.html.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("mailer: render %q html: %w", name, err)
		}
		out.HTML = buf.String()
	}
	return &out, nil
}
