// Package moderation implements the decision policy for high-risk content
// screening. It combines a deterministic lexical layer (a kinship-vocabulary
// normalizer and two compiled pattern matchers) with the verdicts of two
// remote classifiers, and fuses them into a single block/approve decision
// with an auditable reason.
package moderation
