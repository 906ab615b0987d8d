package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/tessera/internal/engine"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/scope"
	"github.com/conneroisu/tessera/internal/version"
)

// liveReloadScript reloads the page when any template changes.
const liveReloadScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onmessage = function (ev) {
      try {
        if (JSON.parse(ev.data).type === "reload") { location.reload(); }
      } catch (e) {}
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// Templates lists every registered template in name order.
func (s *PreviewServer) Templates() []engine.TemplateInfo {
	return s.engine.Templates()
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"templates": s.engine.Registry().Count(),
		"clients":   s.ClientCount(),
		"errors":    len(s.diagnostics.GetErrors()),
		"version":   version.GetVersion(),
	})
}

func (s *PreviewServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Templates())
}

func (s *PreviewServer) handleRender(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.engine.HasTemplate(name) {
		http.Error(w, "template not found: "+name, http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := s.engine.RenderNamed(name, scopeFromQuery(r.URL.Query()), &buf); err != nil {
		s.logger.Warn(r.Context(), err, "Render failed", "template", name)
		s.writePage(w, http.StatusInternalServerError, s.errorPage(name, err))
		return
	}
	s.writePage(w, http.StatusOK, injectScript(buf.String(), s.staleOverlay(name)))
}

// staleOverlay lists the load errors of the file behind name. A template
// whose latest edit failed to parse keeps rendering its previous version,
// and the overlay says so.
func (s *PreviewServer) staleOverlay(name string) string {
	h, ok := s.engine.GetTemplate(name)
	if !ok || h.Path() == "" {
		return ""
	}
	diagnostics := s.diagnostics.GetErrorsByFile(h.Path())
	if len(diagnostics) == 0 {
		return ""
	}
	overlay := errors.NewErrorCollector()
	for _, d := range diagnostics {
		overlay.Add(d)
	}
	return overlay.ErrorOverlay()
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>Tessera</title></head><body>\n<h1>Templates</h1>\n<ul>\n")
	for _, info := range s.Templates() {
		fmt.Fprintf(&b, `<li><a href="/render/%s">%s</a>`, html.EscapeString(url.PathEscape(info.Name)), html.EscapeString(info.Name))
		if len(info.Slots) > 0 {
			fmt.Fprintf(&b, " <small>slots: %s</small>", html.EscapeString(strings.Join(info.Slots, ", ")))
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ul>\n")
	b.WriteString(s.diagnostics.ErrorOverlay())
	b.WriteString("</body></html>\n")
	s.writePage(w, http.StatusOK, b.String())
}

func (s *PreviewServer) errorPage(name string, err error) string {
	overlay := errors.NewErrorCollector()
	d := errors.DiagnosticFrom(err)
	if d.Template == "" {
		d.Template = name
	}
	overlay.Add(d)
	for _, loadErr := range s.diagnostics.GetErrors() {
		overlay.Add(loadErr)
	}
	return "<!DOCTYPE html>\n<html><head><title>" + html.EscapeString(name) +
		"</title></head><body>\n" + overlay.ErrorOverlay() + "\n</body></html>\n"
}

// writePage writes an HTML response, adding the live reload client when
// enabled.
func (s *PreviewServer) writePage(w http.ResponseWriter, status int, page string) {
	if s.config.Server.LiveReload {
		page = injectScript(page, liveReloadScript)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(page))
}

// injectScript inserts script before the last </body>, or appends it.
func injectScript(page, script string) string {
	if i := strings.LastIndex(strings.ToLower(page), "</body>"); i >= 0 {
		return page[:i] + script + page[i:]
	}
	return page + script
}

// scopeFromQuery binds each query parameter into a fresh scope. Repeated
// parameters become lists.
func scopeFromQuery(q url.Values) *scope.Scope {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := scope.NewBuilder()
	for _, k := range keys {
		vs := q[k]
		if len(vs) == 1 {
			b.Put(k, vs[0])
			continue
		}
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		b.PutList(k, items...)
	}
	return b.Build()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
