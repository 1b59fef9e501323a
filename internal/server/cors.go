package server

import (
	"net/http"
	"strings"
)

const corsMethods = "GET, POST, PUT, DELETE, OPTIONS, PATCH"

// withCORS applies the origin allow-list. Entries may use a leading
// wildcard host label, e.g. https://*.example.com. Preflight requests are
// answered directly with 200.
func withCORS(origins []string, next http.Handler) http.Handler {
	allow := newOriginMatcher(origins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()
		if origin != "" {
			h.Add("Vary", "Origin")
			if allow(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if h.Get("Access-Control-Allow-Origin") == "" {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		headers := r.Header.Get("Access-Control-Request-Headers")
		if headers == "" {
			headers = "*"
		}
		h.Set("Access-Control-Allow-Headers", headers)
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}\n"))
	})
}

type wildcard struct {
	scheme string // "https://"
	suffix string // ".example.com"
}

func newOriginMatcher(origins []string) func(string) bool {
	exact := make(map[string]struct{}, len(origins))
	var wild []wildcard
	for _, o := range origins {
		o = strings.TrimRight(o, "/")
		if o == "*" {
			return func(string) bool { return true }
		}
		if scheme, host, ok := strings.Cut(o, "://*."); ok {
			wild = append(wild, wildcard{scheme: scheme + "://", suffix: "." + host})
			continue
		}
		exact[o] = struct{}{}
	}
	return func(origin string) bool {
		if _, ok := exact[origin]; ok {
			return true
		}
		for _, w := range wild {
			host, ok := strings.CutPrefix(origin, w.scheme)
			if ok && strings.HasSuffix(host, w.suffix) && len(host) > len(w.suffix) {
				return true
			}
		}
		return false
	}
}
