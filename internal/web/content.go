package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"reflect"

	"github.com/kabili207/pda-messenger/internal/web/components"
)

//go:embed templates static
var ContentFS embed.FS

func GetHTMLTemplate(name string) (*template.Template, error) {

	funcMap := template.FuncMap{
		"reverse":   reverseFunc,
		"roundTime": components.FormatRoundTime,
	}
	templateFS, _ := fs.Sub(ContentFS, "templates")

	return template.New(name).Funcs(funcMap).ParseFS(templateFS, "common/*.tmpl.*", name+".tmpl.html")
}

// indirectInterface returns the concrete value in an interface value,
// or else the zero reflect.Value.
func indirectInterface(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Interface {
		return v
	}
	if v.IsNil() {
		return reflect.Value{}
	}
	return v.Elem()
}

// reverseFunc returns the elements of a slice or array last to first.
func reverseFunc(item reflect.Value) ([]any, error) {
	v := indirectInterface(item)
	switch v.Kind() {
	case reflect.Array, reflect.Slice:
		out := make([]any, 0, v.Len())
		for i := v.Len(); i != 0; i-- {
			out = append(out, v.Index(i-1).Interface())
		}
		return out, nil
	case reflect.Invalid:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported type, found %q", v.Kind().String())
}
