package greeting

import (
	"fmt"
	"hash/fnv"
	"strings"
	"text/template"
	"time"

	"github.com/xkilldash9x/salvator/api/schemas"
)

// TemplateData is what a greeting template can reference.
type TemplateData struct {
	FirstName   string
	DisplayName string
	ProfileRef  string
}

// Composer renders greetings from a fixed set of templates. The template for
// an entry is picked by hashing its profile and the day, so reruns on the
// same day produce the same message.
type Composer struct {
	templates []*template.Template
}

// NewComposer parses every template up front.
func NewComposer(texts []string) (*Composer, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("greeting: no templates configured")
	}
	c := &Composer{}
	for i, text := range texts {
		t, err := template.New(fmt.Sprintf("greeting-%d", i)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("greeting: template %d: %w", i, err)
		}
		c.templates = append(c.templates, t)
	}
	return c, nil
}

// Compose renders the greeting for entry on day.
func (c *Composer) Compose(entry schemas.BirthdayEntry, day time.Time) (string, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entry.ProfileRef))
	_, _ = h.Write([]byte(day.Format(time.DateOnly)))
	t := c.templates[h.Sum32()%uint32(len(c.templates))]

	var b strings.Builder
	err := t.Execute(&b, TemplateData{
		FirstName:   entry.FirstName(),
		DisplayName: entry.DisplayName,
		ProfileRef:  entry.ProfileRef,
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	msg := strings.TrimSpace(b.String())
	if msg == "" {
		return "", fmt.Errorf("render %s: empty message", t.Name())
	}
	return msg, nil
}
