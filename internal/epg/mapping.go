// Package epg feeds the favourites and tab caches from the receiver's
// web API, an XMLTV guide, or an epg.dat snapshot, and maps guide
// channels onto services by name.
package epg

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// similarityThreshold is the Jaro-Winkler score a residual pair must
// reach after the equality join failed for it.
const similarityThreshold = 0.92

// winklerPrefix caps the common-prefix bonus.
const winklerPrefix = 4

// translitLocales are the locales whose guides commonly mix Cyrillic
// and Latin spellings of the same channel.
var translitLocales = map[string]bool{"ru": true, "by": true, "ua": true, "rs": true}

// TransliterateLocale reports whether names under the given locale
// should be transliterated before matching.
func TransliterateLocale(locale string) bool {
	locale = strings.ToLower(locale)
	if i := strings.IndexAny(locale, "_-."); i > 0 {
		locale = locale[:i]
	}
	return translitLocales[locale]
}

var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "i", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'і': "i", 'ї': "yi", 'є': "ye", 'ґ': "g", 'ў': "u",
	'ј': "j", 'љ': "lj", 'њ': "nj", 'ћ': "c", 'џ': "dz", 'ђ': "dj",
}

// Transliterate rewrites Cyrillic runes to their Latin spellings,
// leaving everything else alone.
func Transliterate(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if lat, ok := cyrillic[r]; ok {
			b.WriteString(lat)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize reduces a channel name to its comparable form: NFC,
// optional transliteration, upper case, alphanumerics only.
func Normalize(name string, translit bool) string {
	name = norm.NFC.String(name)
	if translit {
		name = Transliterate(name)
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// jaroWinkler scores two strings in [0,1]. Standard Jaro with the
// Winkler common-prefix bonus, prefix capped at winklerPrefix.
func jaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j == 0 {
		return 0
	}
	prefix := 0
	for i := 0; i < len(a) && i < len(b) && i < winklerPrefix; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaro(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	window := max(la, lb)/2 - 1
	if window < 0 {
		window = 0
	}

	matchedA := make([]bool, la)
	matchedB := make([]bool, lb)
	matches := 0
	for i := 0; i < la; i++ {
		lo := max(0, i-window)
		hi := min(lb-1, i+window)
		for j := lo; j <= hi; j++ {
			if matchedB[j] || a[i] != b[j] {
				continue
			}
			matchedA[i] = true
			matchedB[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	j := 0
	for i := 0; i < la; i++ {
		if !matchedA[i] {
			continue
		}
		for !matchedB[j] {
			j++
		}
		if a[i] != b[j] {
			transpositions++
		}
		j++
	}

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions)/2)/m) / 3
}

// AutoMap assigns a guide channel id to each service name. Equal
// normalized names join first; leftovers take the best Jaro-Winkler
// candidate at or above the threshold. Channels already claimed by the
// equality pass are not reused.
func AutoMap(serviceNames []string, channels map[string][]string, translit bool) map[string]string {
	type candidate struct {
		id   string
		norm string
	}
	byNorm := make(map[string]string)
	var pool []candidate
	for id, names := range channels {
		for _, name := range names {
			n := Normalize(name, translit)
			if n == "" {
				continue
			}
			if _, ok := byNorm[n]; !ok {
				byNorm[n] = id
			}
			pool = append(pool, candidate{id: id, norm: n})
		}
	}

	out := make(map[string]string)
	claimed := make(map[string]bool)
	var residual []string
	for _, svc := range serviceNames {
		n := Normalize(svc, translit)
		if id, ok := byNorm[n]; ok {
			out[svc] = id
			claimed[id] = true
			continue
		}
		residual = append(residual, svc)
	}

	for _, svc := range residual {
		n := Normalize(svc, translit)
		bestScore := 0.0
		bestID := ""
		for _, c := range pool {
			if claimed[c.id] {
				continue
			}
			if score := jaroWinkler(n, c.norm); score > bestScore {
				bestScore = score
				bestID = c.id
			}
		}
		if bestScore >= similarityThreshold {
			out[svc] = bestID
			claimed[bestID] = true
		}
	}
	return out
}
