package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/1ureka/pageshare/internal/livereload"
	"github.com/1ureka/pageshare/internal/util"
)

// ReloadPath is the reserved endpoint pages connect to for live reload.
// The prefix keeps it out of the way of user content.
const ReloadPath = "/__pageshare/reload"

// reloadScript reconnects the page to the reload endpoint and refreshes it
// whenever the hub broadcasts.
const reloadScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "` + ReloadPath + `");
  ws.onmessage = function (ev) { if (ev.data === "reload") location.reload(); };
})();
</script>`

// NewHandler builds the root handler: the static file server for root, plus
// the reload endpoint when hub is non-nil. Path resolution, traversal
// rejection, index files, directory listings and MIME inference are all
// net/http's standard static-file semantics.
func NewHandler(root string, hub *livereload.Hub) http.Handler {
	files := http.FileServer(http.Dir(root))

	var h http.Handler = files
	if hub != nil {
		h = injectReload(files)
	}
	h = observe(h)

	if hub == nil {
		return h
	}

	mux := http.NewServeMux()
	mux.Handle(ReloadPath, hub)
	mux.Handle("/", h)
	return mux
}

// ---------------------------------------------------------------------------
// Request observation (debug log + stats)
// ---------------------------------------------------------------------------

// statusWriter records the response status and body size.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		util.Stats.AddRequest()
		util.Stats.AddSent(sw.bytes)
		if sw.status == http.StatusNotFound {
			util.Stats.AddNotFound()
		}
		util.LogDebug("%s %s -> %d (%d bytes)", r.Method, r.URL.Path, sw.status, sw.bytes)
	})
}

// ---------------------------------------------------------------------------
// Live reload script injection
// ---------------------------------------------------------------------------

// htmlInjector buffers successful HTML responses so the reload script can be
// appended with a correct Content-Length. Everything else passes through.
type htmlInjector struct {
	http.ResponseWriter
	buffering   bool
	wroteHeader bool
	status      int
	buf         bytes.Buffer
}

func (w *htmlInjector) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code

	ct := w.Header().Get("Content-Type")
	if code == http.StatusOK && strings.HasPrefix(ct, "text/html") {
		w.buffering = true
		return // header goes out in flush, with the adjusted length
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *htmlInjector) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.buffering {
		return w.buf.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *htmlInjector) flush() error {
	if !w.buffering {
		return nil
	}
	w.Header().Set("Content-Length", fmt.Sprint(w.buf.Len()+len(reloadScript)))
	w.ResponseWriter.WriteHeader(w.status)
	if _, err := w.ResponseWriter.Write(w.buf.Bytes()); err != nil {
		return err
	}
	_, err := w.ResponseWriter.Write([]byte(reloadScript))
	return err
}

func injectReload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HEAD bodies are empty and range requests would be thrown off by a
		// shifted length, so only plain GETs get the script.
		if r.Method != http.MethodGet || r.Header.Get("Range") != "" {
			next.ServeHTTP(w, r)
			return
		}

		inj := &htmlInjector{ResponseWriter: w}
		next.ServeHTTP(inj, r)
		if err := inj.flush(); err != nil {
			util.LogDebug("reload injection: %v", err)
		}
	})
}
