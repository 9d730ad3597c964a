// Package personalize renders outreach templates against mapped lead
// records using the Liquid template language.
package personalize

import (
	"crypto/md5"
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/leadstream/internal/ingest"
)

// Engine renders Liquid templates with parsed-template caching. Safe
// for concurrent use.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // template hash -> *liquid.Template
}

func NewEngine() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

func (e *Engine) registerFilters() {
	// {{ first_name | default: "there" }}
	e.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		s := fmt.Sprintf("%v", value)
		if value == nil || s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ company_name | possessive }} -> "Acme's"
	e.engine.RegisterFilter("possessive", func(value string) string {
		if value == "" {
			return value
		}
		if strings.HasSuffix(value, "s") {
			return value + "'"
		}
		return value + "'s"
	})
}

// Bind exposes a record's populated fields as template variables keyed
// by business field name.
func Bind(rec *ingest.Record) map[string]interface{} {
	vars := map[string]interface{}{
		"email":        rec.Email,
		"first_name":   rec.FirstName,
		"last_name":    rec.LastName,
		"company_name": rec.Company,
		"job_title":    rec.JobTitle,
		"industry":     rec.Industry,
		"city":         rec.City,
		"state":        rec.State,
		"country":      rec.Country,
		"phone":        rec.Phone,
		"website":      rec.Website,
	}
	full := strings.TrimSpace(rec.FirstName + " " + rec.LastName)
	vars["full_name"] = full
	return vars
}

// Render executes a template against one record. The parsed template
// is cached by content hash, so rendering the same template for every
// record in a file parses it once.
func (e *Engine) Render(templateStr string, rec *ingest.Record) (string, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(templateStr)))

	var tpl *liquid.Template
	if cached, ok := e.cache.Load(key); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := e.engine.ParseString(templateStr)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		e.cache.Store(key, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(Bind(rec))
	if err != nil {
		return "", fmt.Errorf("render template for row %d: %w", rec.Row, err)
	}
	return out, nil
}

// Validate parses a template without rendering it, for upfront checks
// at template-save time.
func (e *Engine) Validate(templateStr string) error {
	if _, err := e.engine.ParseString(templateStr); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return nil
}
