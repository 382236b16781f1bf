package server

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/aicvlab/frameseek/internal/search"
)

// resultsTemplate renders the keyframe grid. Images load through
// get_img so missing files fall back to the placeholder.
var resultsTemplate = template.Must(template.New("results").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>frameseek</title>
<style>
body { font-family: sans-serif; margin: 1rem; background: #111; color: #eee; }
form { margin-bottom: 1rem; }
input[type=text] { width: 24rem; padding: 0.3rem; }
.grid { display: flex; flex-wrap: wrap; gap: 8px; }
.cell { text-align: center; font-size: 0.75rem; }
.cell img { height: 160px; display: block; }
.pager { margin-top: 1rem; }
</style>
</head>
<body>
<form method="get" action="/keyframe/">
  <input type="text" name="query" placeholder="query" value="{{.Query}}">
  <input type="text" name="asr" placeholder="speech text" value="{{.ASR}}">
  <input type="text" name="ocr" placeholder="on-screen text" value="{{.OCR}}">
  <input type="hidden" name="page" value="1">
  <button type="submit">search</button>
</form>
<div class="grid">
{{range .Results}}
  <div class="cell">
    <a href="/keyframe/imgsearch?imgid={{.ID}}"><img src="/keyframe/get_img?fpath={{.Path}}" alt="{{.ID}}"></a>
    <span>{{.ID}}</span>
  </div>
{{else}}
  <p>no results</p>
{{end}}
</div>
<div class="pager">page {{.Page}} / {{.TotalPage}}</div>
</body>
</html>`))

type pageData struct {
	Query     string
	ASR       string
	OCR       string
	Page      int
	TotalPage int
	Results   []search.Result
}

func (s *Server) renderResultsPage(w http.ResponseWriter, r *http.Request, req *search.UnifiedRequest, page *search.Page) {
	data := pageData{
		Query:     req.Query,
		ASR:       req.ASR,
		OCR:       req.OCR,
		Page:      req.Page,
		TotalPage: page.TotalPage,
		Results:   page.Results,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := resultsTemplate.Execute(w, data); err != nil {
		s.logger.Error("render results page failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
}
