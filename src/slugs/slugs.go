package slugs

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"git.handmade.network/hmn/edu/src/oops"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Matches errors from Validate. Kept distinct from manifest errors so that
// callers can tell a bad title from a bad document.
var ErrInvalidSlug = errors.New("invalid slug")

const DefaultMaxSize = 150

var (
	reValidSlug  = regexp.MustCompile(`^[a-z0-9_-]+$`)
	reUnwanted   = regexp.MustCompile(`[^a-z0-9_\s-]`)
	reSeparators = regexp.MustCompile(`[-\s]+`)
	validate     = newValidator()
	stripAccents = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		slug := fl.Field().String()
		return reValidSlug.MatchString(slug) && strings.Trim(slug, "-_") != ""
	})
	return v
}

/*
Turns a title into a slug: accents are folded to their base letters, the result
is lowercased, anything that is not a letter, digit, underscore, hyphen or
space is dropped, and runs of spaces and hyphens become a single hyphen.

The result can be empty (for a title like "..."), which Check rejects.
*/
func Slugify(title string) string {
	folded, _, err := transform.String(stripAccents, title)
	if err != nil {
		folded = title
	}
	s := strings.ToLower(folded)
	s = reUnwanted.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = reSeparators.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}

// Reports whether slug is usable: non-empty, only [a-z0-9_-], not made only of
// separators, and at most maxSize bytes. A maxSize of 0 means DefaultMaxSize.
func Check(slug string, maxSize int) bool {
	return Validate(slug, maxSize) == nil
}

// Like Check, but returns an error wrapping ErrInvalidSlug.
func Validate(slug string, maxSize int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := validate.Var(slug, "required,slug,max="+strconv.Itoa(maxSize)); err != nil {
		return oops.New(ErrInvalidSlug, "%q is not a valid slug", slug)
	}
	return nil
}

/*
Returns a slug for title that does not collide with any of taken. Collisions
get a numeric suffix, starting at 1. An empty title slugifies to "" and is
returned as is; callers validate afterwards.
*/
func Unique(title string, taken func(slug string) bool) string {
	base := Slugify(title)
	if base == "" || !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}
