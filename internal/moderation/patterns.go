package moderation

import "regexp"

// Compiled patterns for the deterministic lexical layer.
// Compiled once at package init and reused for every call, making them safe
// and efficient for concurrent use. Both patterns run against the raw message,
// never the normalized form.
var (
	// sensitivePattern matches unambiguous bestiality and coprophilia
	// vocabulary: root terms plus the common fetish-phrase variants with
	// whitespace, hyphen or underscore separators. A match is a certain
	// block; no classifier gets invoked. Bare animal names do not match,
	// the phrase variants all require an explicit act or fetish term.
	sensitivePattern = regexp.MustCompile(`(?i)\b(zoophilia|coprophilia|coprophagia|scat[\s_-]?fetish|copro[\s_-]?fetish|feces[\s_-]?fetish|excrement[\s_-]?fetish|scat[\s_-]?play|copro[\s_-]?play|feces[\s_-]?play|excrement[\s_-]?play|feces[\s_-]?eating|excrement[\s_-]?eating|feces[\s_-]?consumption|excrement[\s_-]?consumption)\b|\b(zoophile|zoosexual|zoophilic|beast[\s_-]?sex|animal[\s_-]?sex|animal[\s_-]?rape|animal[\s_-]?intercourse|sexual[\s_-]?acts?[\s_-]?with[\s_-]?animals?|sexual[\s_-]?contact[\s_-]?with[\s_-]?animals?|animal[\s_-]?porn|zoo[\s_-]?porn|beast[\s_-]?porn|zoosexual[\s_-]?fetish|animal[\s_-]?fetish)\b`)

	// underagePattern matches age/minor descriptor vocabulary and the
	// "N year old" / "N y/o" forms for N in 0..17. A match alone never
	// blocks; it is combined with classifier signals and serves as the
	// fallback trigger when the classifiers are unavailable.
	underagePattern = regexp.MustCompile(`(?i)\b(child|pedo|raped|underage|infant|toddler|preadolescent|juvenile|preteen|adolescent|young[\s-]?one|youngster|(?:1[0-7]|[0-9])[\s-]?(year[\s-]?old|y[\s/]o))\b`)
)

// MatchSensitive reports whether raw contains explicit bestiality or
// coprophilia terminology.
func MatchSensitive(raw string) bool {
	return sensitivePattern.MatchString(raw)
}

// MatchUnderage reports whether raw contains an underage or child reference.
func MatchUnderage(raw string) bool {
	return underagePattern.MatchString(raw)
}
