package i18n

import (
	"net/http"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// supportedLangs lists the locales shipped in locales/, in matcher order.
var supportedLangs = []string{"en", "zh"}

var matcher = language.NewMatcher([]language.Tag{language.English, language.Chinese})

// Middleware injects a localizer into every request context. The language
// comes from the lang query parameter, then Accept-Language, then defaultLang.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(defaultLang)
	locs := make(map[string]*i18n.Localizer, len(supportedLangs))
	for _, l := range supportedLangs {
		locs[l] = NewLocalizer(l, defaultLang)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if lang, ok := requestLang(r); ok {
				loc = locs[lang]
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLang matches the languages a request asks for against the shipped
// locales.
func requestLang(r *http.Request) (string, bool) {
	var tags []language.Tag
	if q := r.URL.Query().Get("lang"); q != "" {
		if t, err := language.Parse(q); err == nil {
			tags = append(tags, t)
		}
	}
	if accept, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil {
		tags = append(tags, accept...)
	}
	if len(tags) == 0 {
		return "", false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return supportedLangs[idx], true
}
