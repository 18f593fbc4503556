package moderation

import (
	"regexp"
	"strings"
)

// Placeholder is the neutral token substituted for kinship and age terms
// before text is sent to the classifiers. It must never appear in
// familyTerms, otherwise Normalize would not be idempotent.
const Placeholder = "lover"

// familyTerms is the kinship/age vocabulary rewritten before classification.
// Both moderation models over-associate ordinary familial narration with the
// prohibited category, so these terms (including the common misspellings seen
// in production traffic) are collapsed to a neutral token. The list is applied
// only to classifier input; the pattern matchers always see the raw text.
var familyTerms = []string{
	"mom", "mother", "mum", "mama", "mommy", "momy", "mumy", "mummy", "momma", "momm", "mumzy",
	"dad", "father", "papa", "daddy", "dady", "pappy", "dadd", "dada", "fater", "faher",
	"daughter", "son", "dauter", "sunn", "daugther", "daughtr", "daugter", "dauther",
	"doughtor", "dughter", "daughteer", "daugthter",
	"sister", "sis", "sissy", "sist",
	"sistr", "siser", "siste", "sistter", "sistor", "sistur", "sistir", "sisterr",
	"brother", "bro", "bruv", "brther",
	"brothr", "broter", "broher", "brohter", "brothre", "brotther", "brothur", "brothir",
	"fathr", "fathre", "fatherr", "fatther", "fathur", "fathir", "fathar",
	"aunt", "auntie", "uncle", "ant", "untie",
	"cousin", "niece", "nephew", "cusin", "neice", "nefew",
	"grandma", "grandmother", "granny", "nana", "granma", "gramma",
	"grandpa", "grandfather", "gramps", "granpa", "grampa",
	"family", "families", "parent", "parents", "famly", "parrent",
	"girl", "boy", "teen", "teenager", "teenie",
}

// familyPattern matches any vocabulary term as a whole word, case-insensitive.
// Compiled once at package init, like the other patterns in this package.
var familyPattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(dedupe(familyTerms), "|") + `)\b`)

// dedupe removes repeated terms so the alternation stays minimal. The raw
// vocabulary carries duplicates (misspelling variants were collected from
// several sources).
func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Normalize replaces every whole-word occurrence of a kinship or age term
// with Placeholder. Sentence structure is preserved so that explicit sexual
// vocabulary elsewhere in the text still surfaces to the classifiers.
// Normalize is idempotent.
func Normalize(text string) string {
	return familyPattern.ReplaceAllString(text, Placeholder)
}
