package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware injects a localizer into every request context. The language
// is negotiated from Accept-Language against the loaded locales, falling
// back to def.
func Middleware(def string) func(http.Handler) http.Handler {
	supported := Languages()
	var matcher language.Matcher
	if len(supported) > 0 {
		matcher = language.NewMatcher(supported)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := def
			if matcher != nil {
				if accept := r.Header.Get("Accept-Language"); accept != "" {
					lang = Negotiate(matcher, accept, def)
				}
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang, def))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Negotiate picks the best supported language for an Accept-Language value.
func Negotiate(m language.Matcher, accept, def string) string {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return def
	}
	tag, _, conf := m.Match(tags...)
	if conf == language.No {
		return def
	}
	base, _ := tag.Base()
	return base.String()
}
