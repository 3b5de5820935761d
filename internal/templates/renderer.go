// Package templates renders outbound mail from Liquid templates.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/osteele/liquid"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/core"
)

//go:embed mail/*.liquid
var embedded embed.FS

type compiled struct {
	subject *liquid.Template
	body    *liquid.Template
}

// Renderer implements core.Renderer. Each message is a pair of files,
// <name>_subject.liquid and <name>_body.liquid.
type Renderer struct {
	engine    *liquid.Engine
	templates map[string]compiled
	logger    *zap.Logger
}

// NewRenderer compiles the built-in templates. When dir is set, files found
// there replace the built-in ones of the same name.
func NewRenderer(dir string, logger *zap.Logger) (*Renderer, error) {
	engine := liquid.NewEngine()
	registerFilters(engine)

	r := &Renderer{
		engine:    engine,
		templates: map[string]compiled{},
		logger:    logger,
	}

	builtin, err := fs.Sub(embedded, "mail")
	if err != nil {
		return nil, err
	}

	var override fs.FS
	if dir != "" {
		override = os.DirFS(dir)
	}

	for _, name := range []string{core.TemplateReminder, core.TemplateOutreach} {
		if err := r.load(name, builtin, override); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Render implements core.Renderer
func (r *Renderer) Render(name string, data map[string]interface{}) (string, string, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}

	subject, err := tpl.subject.RenderString(data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render %s subject: %w", name, err)
	}
	body, err := tpl.body.RenderString(data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render %s body: %w", name, err)
	}

	// Subjects must be a single line
	subject = strings.Join(strings.Fields(subject), " ")
	return subject, strings.TrimSpace(body), nil
}

func (r *Renderer) load(name string, builtin, override fs.FS) error {
	var c compiled
	for _, part := range []struct {
		file string
		dst  **liquid.Template
	}{
		{name + "_subject.liquid", &c.subject},
		{name + "_body.liquid", &c.body},
	} {
		src, err := r.read(part.file, builtin, override)
		if err != nil {
			return err
		}
		tpl, err := r.engine.ParseTemplate(src)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", part.file, err)
		}
		*part.dst = tpl
	}
	r.templates[name] = c
	return nil
}

func (r *Renderer) read(file string, builtin, override fs.FS) ([]byte, error) {
	if override != nil {
		src, err := fs.ReadFile(override, file)
		if err == nil {
			r.logger.Info("Using template override", zap.String("file", file))
			return src, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
	}
	src, err := fs.ReadFile(builtin, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in %s: %w", file, err)
	}
	return src, nil
}

// registerFilters adds the date filter used by the mail templates
func registerFilters(engine *liquid.Engine) {
	// {{ deadline_date | ukdate }} renders 2024-02-01 as 1 February 2024
	engine.RegisterFilter("ukdate", func(s string) string {
		t, err := time.Parse(core.DayFormat, s)
		if err != nil {
			return s
		}
		return t.Format("2 January 2006")
	})
}
