// Package template renders email bodies with the Liquid template language,
// so the welcome copy lives in config instead of Go string literals.
package template

import (
	"fmt"
	"html"
	"log"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Engine wraps a Liquid engine with parsed-template caching. Rendering is
// lax: on a parse or render error the raw template string comes back, so a
// bad template degrades the copy instead of blocking a signup.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewEngine creates a template engine with the service's custom filters.
func NewEngine() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

func (e *Engine) registerFilters() {
	// Default value filter: {{ source | default: "the waitlist" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// HTML escape: {{ email | escape }}
	e.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// Capitalize first letter: {{ source | capitalize }}
	e.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})
}

// Render renders templateStr with the given variables. A non-empty cacheKey
// caches the parsed template across calls (welcome templates never change
// within a process lifetime).
func (e *Engine) Render(cacheKey string, templateStr string, vars map[string]interface{}) string {
	if cacheKey != "" {
		if cached, ok := e.cache.Load(cacheKey); ok {
			return renderCached(cached.(*liquid.Template), templateStr, vars)
		}
	}

	tpl, err := e.engine.ParseString(templateStr)
	if err != nil {
		log.Printf("template: parse error: %v", err)
		return templateStr
	}
	if cacheKey != "" {
		e.cache.Store(cacheKey, tpl)
	}
	return renderCached(tpl, templateStr, vars)
}

func renderCached(tpl *liquid.Template, original string, vars map[string]interface{}) string {
	out, err := tpl.RenderString(vars)
	if err != nil {
		log.Printf("template: render error: %v", err)
		return original
	}
	return out
}
