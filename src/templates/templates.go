package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	texttemplate "text/template"
	"time"

	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/parsing"
	"github.com/Masterminds/sprig"
	"github.com/google/uuid"
)

//go:embed src
var embeddedTemplateFs embed.FS

var (
	initOnce      sync.Once
	htmlTemplates map[string]*template.Template
	textTemplates map[string]*texttemplate.Template
)

// HTML templates end in .html and share the files in src/include. Every other
// file is an export template, rendered as plain text.
func getTemplatesFromFS(templateFS fs.ReadDirFS) (map[string]*template.Template, map[string]*texttemplate.Template, map[string]error) {
	htmls := make(map[string]*template.Template)
	texts := make(map[string]*texttemplate.Template)
	errs := make(map[string]error)

	files, err := templateFS.ReadDir("src")
	if err != nil {
		errs["src"] = err
		return nil, nil, errs
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if strings.HasSuffix(f.Name(), ".html") {
			t := template.New(f.Name())
			t = t.Funcs(sprig.FuncMap())
			t = t.Funcs(EduTemplateFuncs)
			t, err := t.ParseFS(templateFS, "src/include/*", "src/"+f.Name())
			if err != nil {
				errs[f.Name()] = err
				continue
			}
			htmls[f.Name()] = t
		} else {
			t := texttemplate.New(f.Name())
			t = t.Funcs(sprig.TxtFuncMap())
			t = t.Funcs(texttemplate.FuncMap(EduTextFuncs))
			t, err := t.ParseFS(templateFS, "src/"+f.Name())
			if err != nil {
				errs[f.Name()] = err
				continue
			}
			texts[f.Name()] = t
		}
	}

	return htmls, texts, errs
}

// Parses the embedded templates. Panics if any of them is broken, which can
// only be a programming error.
func Init() {
	initOnce.Do(func() {
		var errs map[string]error
		htmlTemplates, textTemplates, errs = getTemplatesFromFS(embeddedTemplateFs)
		if len(errs) > 0 {
			names := make([]string, 0, len(errs))
			for name := range errs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				logging.Error().Str("filename", name).Err(errs[name]).Msg("Failed to parse template")
			}
			panic("Failed to parse templates; see above")
		}
	})
}

func RenderHTML(w io.Writer, name string, data any) error {
	Init()
	t, ok := htmlTemplates[name]
	if !ok {
		return oops.New(nil, "template not found: %s", name)
	}
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		return oops.New(err, "failed to execute template %s", name)
	}
	return nil
}

func RenderText(w io.Writer, name string, data any) error {
	Init()
	t, ok := textTemplates[name]
	if !ok {
		return oops.New(nil, "template not found: %s", name)
	}
	if err := t.Execute(w, data); err != nil {
		return oops.New(err, "failed to execute template %s", name)
	}
	return nil
}

var controlCharRegex = regexp.MustCompile(`\p{Cc}`)

var EduTemplateFuncs = template.FuncMap{
	"add": func(a int, b ...int) int {
		for _, num := range b {
			a += num
		}
		return a
	},
	"absolutedate": func(t time.Time) string {
		return t.UTC().Format("January 2, 2006, 3:04pm")
	},
	"absoluteshortdate": func(t time.Time) string {
		return t.UTC().Format("January 2, 2006")
	},
	"rfc3339": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
	"string2uuid": func(s string) string {
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(s)).URN()
	},
	"timehtml": func(formatted string, t time.Time) template.HTML {
		iso := t.UTC().Format(time.RFC3339)
		return template.HTML(fmt.Sprintf(`<time datetime="%s">%s</time>`, iso, formatted))
	},
	"cleancontrolchars": func(str template.HTML) template.HTML {
		return template.HTML(controlCharRegex.ReplaceAllString(string(str), ""))
	},
	"relurl": func(from, to string) string {
		return RelativeURL(from, to)
	},
}

var EduTextFuncs = map[string]any{
	"latex": parsing.EscapeLaTeX,
	"absoluteshortdate": func(t time.Time) string {
		return t.UTC().Format("January 2, 2006")
	},
}

// Link from the page at path from to the page at path to, both relative to
// the published root.
func RelativeURL(from, to string) string {
	var fromDirs []string
	if dir := path.Dir(from); dir != "." {
		fromDirs = strings.Split(dir, "/")
	}
	toParts := strings.Split(to, "/")

	common := 0
	for common < len(fromDirs) && common < len(toParts)-1 && fromDirs[common] == toParts[common] {
		common++
	}
	return strings.Repeat("../", len(fromDirs)-common) + strings.Join(toParts[common:], "/")
}
