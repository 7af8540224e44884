package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. An empty list or "*" allows any
	// origin. An entry like "https://*.volty.dz" allows every subdomain of
	// volty.dz over https, but not volty.dz itself.
	AllowOrigins []string
	// AllowMethods defaults to every method the API routes use.
	AllowMethods []string
	// AllowHeaders defaults to echoing Access-Control-Request-Headers.
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, a negative value sends "0".
	MaxAge int
}

type originMatcher struct {
	any      bool
	exact    map[string]string // lowercase -> configured
	suffixes []subdomainPattern
}

type subdomainPattern struct {
	scheme string // "https://"
	suffix string // ".volty.dz"
}

func newOriginMatcher(origins []string, credentials bool) originMatcher {
	m := originMatcher{any: len(origins) == 0, exact: map[string]string{}}
	for _, o := range origins {
		if o == "*" {
			m.any = true
			continue
		}
		if scheme, host, ok := strings.Cut(o, "://*."); ok {
			m.suffixes = append(m.suffixes, subdomainPattern{
				scheme: strings.ToLower(scheme) + "://",
				suffix: "." + strings.ToLower(host),
			})
			continue
		}
		m.exact[strings.ToLower(o)] = o
	}
	// Browsers reject a wildcard origin on credentialed requests.
	if credentials {
		m.any = false
	}
	return m
}

// match returns the Access-Control-Allow-Origin value for origin, or "" if
// it is not allowed.
func (m originMatcher) match(origin string) string {
	if m.any {
		return "*"
	}
	lower := strings.ToLower(origin)
	if o, ok := m.exact[lower]; ok {
		return o
	}
	for _, p := range m.suffixes {
		host, ok := strings.CutPrefix(lower, p.scheme)
		if ok && strings.HasSuffix(host, p.suffix) && len(host) > len(p.suffix) {
			return origin
		}
	}
	return ""
}

// CORS handles Cross-Origin Resource Sharing for the storefront and admin
// frontends. Preflights are answered directly with 204.
func CORS(cfg CORSConfig) Middleware {
	origins := newOriginMatcher(cfg.AllowOrigins, cfg.AllowCredentials)

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	if allowMethods == "" {
		allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")

	var maxAge string
	switch {
	case cfg.MaxAge > 0:
		maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			if !origins.any {
				h.Add("Vary", "Origin")
			}
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin := origins.match(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if origins.any {
					h.Add("Vary", "Origin")
				}
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowOrigin == "" {
					w.WriteHeader(http.StatusNoContent)
					return
				}

				h.Set("Access-Control-Allow-Origin", allowOrigin)
				h.Set("Access-Control-Allow-Methods", allowMethods)
				if allowHeaders != "" {
					h.Set("Access-Control-Allow-Headers", allowHeaders)
				} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
					h.Set("Access-Control-Allow-Headers", rh)
				}
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if maxAge != "" {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if exposeHeaders != "" {
					h.Set("Access-Control-Expose-Headers", exposeHeaders)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
