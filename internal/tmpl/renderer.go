// Package tmpl renders automation message templates using the Liquid
// template language. Supported placeholders are nome, telefone,
// data_consulta and horario.
package tmpl

import (
	"log"
	"sync"

	"github.com/osteele/liquid"

	"github.com/itgabriell/audicare-engine/internal/domain"
)

// Fillers used when the generic automation path has no triggering
// appointment to resolve date/time placeholders against.
const (
	DateFiller = "hoje"
	TimeFiller = "agora"
)

// Renderer renders message templates against recipient data with template
// caching. Safe for concurrent use.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a message template renderer.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render substitutes the recipient's fields into the template. The
// date/time placeholders resolve to static fillers unless an appointment
// is supplied. A template error falls back to the raw template body so a
// message is always produced.
func (r *Renderer) Render(template string, recipient domain.Recipient) string {
	bindings := map[string]interface{}{
		"nome":          recipient.Contact.Name,
		"telefone":      recipient.Contact.Phone,
		"data_consulta": DateFiller,
		"horario":       TimeFiller,
	}
	if appt := recipient.LastAppointment(); appt != nil {
		bindings["data_consulta"] = appt.ScheduledAt.Format("02/01/2006")
		bindings["horario"] = appt.ScheduledAt.Format("15:04")
	}

	tpl, err := r.parse(template)
	if err != nil {
		log.Printf("[tmpl] parse error, sending raw template: %v", err)
		return template
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		log.Printf("[tmpl] render error, sending raw template: %v", err)
		return template
	}
	return out
}

func (r *Renderer) parse(template string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(template); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(template)
	if err != nil {
		return nil, err
	}
	r.cache.Store(template, tpl)
	return tpl, nil
}
