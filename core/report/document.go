package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	appfs "github.com/trezcool/academia/fs"
)

const documentTemplatePath = "assets/templates/report/performance.gohtml"

var (
	documentTmpl     *template.Template
	documentTmplErr  error
	documentTmplOnce sync.Once
)

func loadDocumentTemplate() (*template.Template, error) {
	documentTmplOnce.Do(func() {
		documentTmpl, documentTmplErr = template.New("performance.gohtml").
			Funcs(template.FuncMap{"average": formatAverage}).
			ParseFS(appfs.FS, documentTemplatePath)
	})
	return documentTmpl, documentTmplErr
}

type documentData struct {
	Report Report
	Period string
}

// RenderDocument renders rep as a printable HTML page.
func RenderDocument(rep Report) (Document, error) {
	tmpl, err := loadDocumentTemplate()
	if err != nil {
		return Document{}, errors.Wrap(err, "parsing report template")
	}

	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, documentData{Report: rep, Period: periodLabel(rep.Filters)}); err != nil {
		return Document{}, errors.Wrap(err, "rendering report")
	}
	return Document{
		Filename:    documentFilename(rep),
		ContentType: "text/html; charset=utf-8",
		Content:     buf.Bytes(),
	}, nil
}

func formatAverage(avg null.Float64) string {
	if !avg.Valid {
		return "-"
	}
	return strconv.FormatFloat(avg.Float64, 'f', 2, 64)
}

func periodLabel(f Filters) string {
	switch {
	case f.Year == nil:
		return "All time"
	case f.Semester == nil:
		return fmt.Sprintf("Academic year %d-%d", *f.Year, *f.Year+1)
	default:
		return fmt.Sprintf("Academic year %d-%d, semester %d", *f.Year, *f.Year+1, *f.Semester)
	}
}

func documentFilename(rep Report) string {
	var b strings.Builder
	b.WriteString("report-")
	lastDash := true
	for _, r := range strings.ToLower(rep.Student.Name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	name += "-" + optInt(rep.Filters.Year)
	if rep.Filters.Semester != nil {
		name += "-s" + strconv.Itoa(*rep.Filters.Semester)
	}
	return name + ".html"
}
